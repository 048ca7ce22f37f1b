// bar.go - Fortschrittsbalken mit Prozent und ETA
package progress

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

const defaultTermWidth = 80

// Bar renders as "<message>| 42% |██████    | ETA 00:01:23".
type Bar struct {
	mu sync.Mutex

	message  string
	maxValue int
	current  int

	started time.Time
	stopped time.Time

	// width overrides the terminal width when > 0
	width int
}

// NewBar creates a bar that completes at maxValue.
func NewBar(message string, maxValue int) *Bar {
	return &Bar{
		message:  message,
		maxValue: maxValue,
		started:  time.Now(),
	}
}

// SetWidth fixes the rendered width instead of querying the terminal.
func (b *Bar) SetWidth(w int) *Bar {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.width = w
	return b
}

// Set updates the current value.
func (b *Bar) Set(value int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = min(value, b.maxValue)
	if b.current >= b.maxValue && b.stopped.IsZero() {
		b.stopped = time.Now()
	}
}

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stderr.Fd()))
	if err != nil || w <= 0 {
		return defaultTermWidth
	}
	return w
}

func (b *Bar) percent() float64 {
	if b.maxValue <= 0 {
		return 100
	}
	return float64(b.current) * 100 / float64(b.maxValue)
}

func (b *Bar) eta() time.Duration {
	if b.current <= 0 || b.current >= b.maxValue {
		return 0
	}
	elapsed := time.Since(b.started)
	remaining := float64(elapsed) * float64(b.maxValue-b.current) / float64(b.current)
	return time.Duration(remaining).Round(time.Second)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	return fmt.Sprintf("%02d:%02d:%02d", h, m, d/time.Second)
}

func (b *Bar) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	width := b.width
	if width <= 0 {
		width = termWidth()
	}

	pre := fmt.Sprintf("%s| %3.0f%% |", b.message, b.percent())

	var suf string
	if !b.stopped.IsZero() {
		suf = "| Time " + formatDuration(b.stopped.Sub(b.started))
	} else {
		suf = "| ETA  " + formatDuration(b.eta())
	}

	barWidth := width - runewidth.StringWidth(pre) - runewidth.StringWidth(suf) - 1
	if barWidth <= 0 {
		return pre + suf
	}

	filled := int(float64(barWidth) * b.percent() / 100)
	return pre + strings.Repeat("█", filled) + strings.Repeat(" ", barWidth-filled) + suf
}
