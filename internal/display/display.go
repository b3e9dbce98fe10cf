// Package display renders tuner readings as single terminal lines.
package display

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ColonelBlimp/stringtuner/internal/catalog"
	"github.com/ColonelBlimp/stringtuner/internal/tuner"
)

var indicators = map[tuner.Indicator]string{
	tuner.Idle:      "[     |     ]",
	tuner.InTune:    "[  >> | << ]",
	tuner.NearFlat:  "[  > |     ]",
	tuner.NearSharp: "[     | <  ]",
	tuner.FarFlat:   "[ >> |     ]",
	tuner.FarSharp:  "[     | << ]",
}

// Indicator returns the arrow gauge for i. Arrows point toward the target:
// right of center when flat, left when sharp, both when in tune.
func Indicator(i tuner.Indicator) string {
	if s, ok := indicators[i]; ok {
		return s
	}
	return indicators[tuner.Idle]
}

// Frequency formats a frequency with two decimals.
func Frequency(hz float64) string {
	return fmt.Sprintf("%.2f Hz", hz)
}

// Line renders one reading:
//
//	E2 - 82.41 Hz  [  >> | << ]  82.50 Hz  E2 +2¢
//
// An error reading renders the idle gauge followed by the error.
func Line(r tuner.Reading) string {
	var b strings.Builder
	b.WriteString(r.Target.String())
	b.WriteString("  ")
	b.WriteString(Indicator(r.Indicator))

	if r.Err != nil {
		fmt.Fprintf(&b, "  error: %v", r.Err)
		return b.String()
	}
	if r.Indicator == tuner.Idle {
		return b.String()
	}

	b.WriteString("  ")
	b.WriteString(Frequency(r.Frequency))
	if p, ok := catalog.Nearest(r.Frequency); ok {
		b.WriteString("  ")
		b.WriteString(p.String())
	}
	return b.String()
}

// Renderer writes readings to a terminal, redrawing one line in place.
type Renderer struct {
	mu      sync.Mutex
	w       io.Writer
	inPlace bool
	width   int
}

// NewRenderer writes to w. With inPlace set each line overwrites the
// previous one using a carriage return; otherwise lines are appended.
func NewRenderer(w io.Writer, inPlace bool) *Renderer {
	return &Renderer{w: w, inPlace: inPlace}
}

// Render draws r.
func (d *Renderer) Render(r tuner.Reading) error {
	return d.print(Line(r))
}

// Message prints a line of text above the gauge.
func (d *Renderer) Message(format string, args ...any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.clear(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(d.w, format+"\n", args...)
	return err
}

func (d *Renderer) print(line string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.inPlace {
		_, err := fmt.Fprintln(d.w, line)
		return err
	}

	pad := ""
	if n := d.width - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	d.width = len(line)
	_, err := fmt.Fprintf(d.w, "\r%s%s", line, pad)
	return err
}

// clear blanks the in-place line so a message can be printed over it.
func (d *Renderer) clear() error {
	if !d.inPlace || d.width == 0 {
		return nil
	}
	_, err := fmt.Fprintf(d.w, "\r%s\r", strings.Repeat(" ", d.width))
	d.width = 0
	return err
}
