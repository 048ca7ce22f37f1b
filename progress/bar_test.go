// bar_test.go - Tests fuer den Fortschrittsbalken
package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"
)

func TestBarString(t *testing.T) {
	b := NewBar("epoch #0", 10).SetWidth(60)
	b.Set(5)

	s := b.String()
	if !strings.HasPrefix(s, "epoch #0|  50% |") {
		t.Errorf("unerwarteter Anfang: %q", s)
	}
	if !strings.Contains(s, "ETA") {
		t.Errorf("ETA fehlt: %q", s)
	}
	if w := runewidth.StringWidth(s); w != 59 {
		t.Errorf("Breite = %d, erwartet 59", w)
	}
}

func TestBarComplete(t *testing.T) {
	b := NewBar("epoch #1", 4).SetWidth(50)
	b.Set(7)

	s := b.String()
	if !strings.Contains(s, "100%") {
		t.Errorf("erwartet 100%%: %q", s)
	}
	if !strings.Contains(s, "Time") {
		t.Errorf("abgeschlossener Balken sollte die Laufzeit zeigen: %q", s)
	}
}

func TestBarNarrowTerminal(t *testing.T) {
	b := NewBar("ein sehr langer Text", 10).SetWidth(10)
	if s := b.String(); strings.Contains(s, "█") {
		t.Errorf("kein Platz fuer den Balken, trotzdem gezeichnet: %q", s)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[time.Duration]string{
		0:                                          "00:00:00",
		90 * time.Second:                           "00:01:30",
		2*time.Hour + 3*time.Minute + 4*time.Second: "02:03:04",
	}
	for d, want := range cases {
		if got := formatDuration(d); got != want {
			t.Errorf("formatDuration(%v) = %q, erwartet %q", d, got, want)
		}
	}
}

func TestProgressStop(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf)
	p.Add("", NewBar("epoch #0", 1).SetWidth(40))

	if !p.Stop() {
		t.Fatal("erster Stop sollte true liefern")
	}
	if p.Stop() {
		t.Error("zweiter Stop sollte false liefern")
	}
	if !strings.Contains(buf.String(), "epoch #0") {
		t.Errorf("Ausgabe enthaelt den Balken nicht: %q", buf.String())
	}
}
