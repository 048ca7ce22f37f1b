// progress.go - Terminal-Fortschrittsanzeige
//
// Dieses Modul enthaelt:
// - State: alles, was sich als Zeile darstellen laesst
// - Progress: rendert registrierte States periodisch auf einen Writer
// - Stop/StopAndClear: letzte Ausgabe bzw. Aufraeumen
package progress

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"time"
)

// State is one line of progress output.
type State interface {
	String() string
}

// Progress redraws its states in place every 100ms.
type Progress struct {
	mu sync.Mutex
	w  io.Writer

	// lines rendered by the previous frame
	lines  int
	states []State

	ticker *time.Ticker
	done   chan struct{}
}

// NewProgress starts rendering to w.
func NewProgress(w io.Writer) *Progress {
	p := &Progress{
		w:      w,
		ticker: time.NewTicker(100 * time.Millisecond),
		done:   make(chan struct{}),
	}
	go p.start()
	return p
}

// Add registers a state. key is reserved for replacing states and ignored
// for now.
func (p *Progress) Add(key string, state State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.states = append(p.states, state)
}

func (p *Progress) stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ticker == nil {
		return false
	}
	p.ticker.Stop()
	p.ticker = nil
	close(p.done)
	return true
}

// Stop draws a final frame and stops rendering.
func (p *Progress) Stop() bool {
	stopped := p.stop()
	if stopped {
		p.render()

		p.mu.Lock()
		fmt.Fprintln(p.w)
		p.mu.Unlock()
	}
	return stopped
}

// StopAndClear stops rendering and erases the progress lines.
func (p *Progress) StopAndClear() bool {
	stopped := p.stop()
	if stopped {
		p.mu.Lock()
		defer p.mu.Unlock()

		// Cursor an den Anfang der ersten Zeile und bis zum Ende loeschen
		fmt.Fprint(p.w, "\r")
		if p.lines > 1 {
			fmt.Fprintf(p.w, "\033[%dA", p.lines-1)
		}
		fmt.Fprint(p.w, "\033[J")
		p.lines = 0
	}
	return stopped
}

func (p *Progress) render() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.draw()
}

// draw expects p.mu to be held.
func (p *Progress) draw() {
	if len(p.states) == 0 {
		return
	}

	bw := bufio.NewWriter(p.w)
	defer bw.Flush()

	// Cursor verstecken und zur ersten Zeile des letzten Frames
	fmt.Fprint(bw, "\033[?25l")
	defer fmt.Fprint(bw, "\033[?25h")

	fmt.Fprint(bw, "\r")
	if p.lines > 1 {
		fmt.Fprintf(bw, "\033[%dA", p.lines-1)
	}

	for i, state := range p.states {
		fmt.Fprint(bw, state.String(), "\033[K")
		if i < len(p.states)-1 {
			fmt.Fprint(bw, "\n")
		}
	}
	p.lines = len(p.states)
}

func (p *Progress) start() {
	for {
		select {
		case <-p.done:
			return
		default:
		}

		p.mu.Lock()
		ticker := p.ticker
		p.mu.Unlock()
		if ticker == nil {
			return
		}

		select {
		case <-ticker.C:
			p.mu.Lock()
			if p.ticker != nil {
				p.draw()
			}
			p.mu.Unlock()
		case <-p.done:
			return
		}
	}
}
