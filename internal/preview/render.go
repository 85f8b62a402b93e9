package preview

import (
	"errors"
	"fmt"
	"image/color"
)

const (
	BeatWeight    = 1
	SectionWeight = 3
)

var (
	BeatColor    = color.RGBA{R: 0xcc, G: 0xcc, B: 0xcc, A: 0xff}
	SectionColor = color.RGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff}
)

type Section struct {
	Time  float64 `json:"time"`
	Label string  `json:"label,omitempty"`
}

// Data is the /preview.json payload for one job.
type Data struct {
	OK        bool      `json:"ok"`
	BeatTimes []float64 `json:"beatTimes"`
	Sections  []Section `json:"sections"`
	Error     string    `json:"error,omitempty"`
}

// Canvas receives full-height vertical lines. Implementations decide what
// to do with x outside [0, Width()].
type Canvas interface {
	Width() int
	Height() int
	VLine(x float64, weight int, c color.Color)
}

var ErrInvalidDuration = errors.New("duration must be positive")

// PixelX maps a time in seconds onto a canvas of the given width.
func PixelX(seconds float64, durationMs float64, width int) float64 {
	return (seconds * 1000 / durationMs) * float64(width)
}

// Render draws every beat first and every section afterwards so sections
// end up on top regardless of time. Nothing is clipped here.
func Render(c Canvas, beatTimes []float64, sections []Section, durationMs float64) error {
	if c == nil {
		return errors.New("canvas is required")
	}
	if durationMs <= 0 {
		return fmt.Errorf("render preview: %w (got %v ms)", ErrInvalidDuration, durationMs)
	}
	w := c.Width()
	for _, t := range beatTimes {
		c.VLine(PixelX(t, durationMs, w), BeatWeight, BeatColor)
	}
	for _, s := range sections {
		c.VLine(PixelX(s.Time, durationMs, w), SectionWeight, SectionColor)
	}
	return nil
}

// Panel tracks whether the preview has ever rendered successfully. It
// starts hidden and stays hidden after failures.
type Panel struct {
	visible bool
	beats   int
	section int
	lastErr error
}

func (p *Panel) Visible() bool { return p.visible }

func (p *Panel) LastErr() error { return p.lastErr }

func (p *Panel) Counts() (beats, sections int) { return p.beats, p.section }

// Show renders data onto c. Failures are recorded and returned but never
// make a previously hidden panel visible.
func (p *Panel) Show(c Canvas, data Data, durationMs float64) error {
	if !data.OK {
		p.lastErr = errors.New("preview response not ok")
		return p.lastErr
	}
	if err := Render(c, data.BeatTimes, data.Sections, durationMs); err != nil {
		p.lastErr = err
		return err
	}
	p.visible = true
	p.lastErr = nil
	p.beats = len(data.BeatTimes)
	p.section = len(data.Sections)
	return nil
}

// Fail records a fetch failure without altering visibility.
func (p *Panel) Fail(err error) {
	p.lastErr = err
}

// Hide resets the panel for a new job.
func (p *Panel) Hide() {
	p.visible = false
	p.beats = 0
	p.section = 0
	p.lastErr = nil
}
