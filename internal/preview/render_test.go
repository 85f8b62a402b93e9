package preview

import (
	"bytes"
	"errors"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type line struct {
	x      float64
	weight int
	color  color.Color
}

type recordingCanvas struct {
	w, h  int
	lines []line
}

func (c *recordingCanvas) Width() int  { return c.w }
func (c *recordingCanvas) Height() int { return c.h }
func (c *recordingCanvas) VLine(x float64, weight int, col color.Color) {
	c.lines = append(c.lines, line{x: x, weight: weight, color: col})
}

func TestPixelXEndpointsAndMonotonic(t *testing.T) {
	assert.Equal(t, 0.0, PixelX(0, 180000, 1000))
	assert.InDelta(t, 1000.0, PixelX(180, 180000, 1000), 1e-9)

	prev := -1.0
	for s := 0.0; s <= 180; s += 0.37 {
		x := PixelX(s, 180000, 1000)
		require.Greater(t, x, prev)
		prev = x
	}
}

func TestRenderDrawsBeatsThenSections(t *testing.T) {
	c := &recordingCanvas{w: 1000, h: 80}
	beats := []float64{10, 0.5, 170}
	sections := []Section{{Time: 0}, {Time: 5, Label: "verse"}}

	require.NoError(t, Render(c, beats, sections, 180000))
	require.Len(t, c.lines, 5)
	for i, l := range c.lines[:3] {
		assert.Equal(t, BeatWeight, l.weight, "line %d", i)
		assert.Equal(t, BeatColor, l.color)
	}
	for _, l := range c.lines[3:] {
		assert.Equal(t, SectionWeight, l.weight)
		assert.Equal(t, SectionColor, l.color)
	}
	assert.InDelta(t, PixelX(10, 180000, 1000), c.lines[0].x, 1e-9)
	assert.InDelta(t, PixelX(5, 180000, 1000), c.lines[4].x, 1e-9)
}

func TestRenderIssuesOutOfRangeLines(t *testing.T) {
	c := &recordingCanvas{w: 100, h: 10}
	require.NoError(t, Render(c, []float64{-1, 20}, nil, 10000))
	require.Len(t, c.lines, 2)
	assert.Less(t, c.lines[0].x, 0.0)
	assert.Greater(t, c.lines[1].x, 100.0)
}

func TestRenderRejectsNonPositiveDuration(t *testing.T) {
	c := &recordingCanvas{w: 100, h: 10}
	err := Render(c, []float64{1}, nil, 0)
	require.ErrorIs(t, err, ErrInvalidDuration)
	assert.Empty(t, c.lines)
}

func TestRenderSteadyTempoScenario(t *testing.T) {
	beats := make([]float64, 0, 360)
	for i := 0; i < 360; i++ {
		beats = append(beats, float64(i)*0.5)
	}
	sections := []Section{{Time: 0}, {Time: 30}, {Time: 60}, {Time: 90}, {Time: 120}, {Time: 150}}
	c := &recordingCanvas{w: 1000, h: 80}
	require.NoError(t, Render(c, beats, sections, 180000))
	require.Len(t, c.lines, 366)
	assert.Equal(t, SectionWeight, c.lines[360].weight)
}

func TestPanelStaysHiddenOnFailure(t *testing.T) {
	var p Panel
	assert.False(t, p.Visible())

	err := p.Show(&recordingCanvas{w: 10, h: 1}, Data{OK: false, Error: "boom"}, 1000)
	require.Error(t, err)
	assert.False(t, p.Visible())

	p.Fail(errors.New("network"))
	assert.False(t, p.Visible())
	assert.EqualError(t, p.LastErr(), "network")

	require.Error(t, p.Show(&recordingCanvas{w: 10, h: 1}, Data{OK: true}, 0))
	assert.False(t, p.Visible())

	require.NoError(t, p.Show(&recordingCanvas{w: 10, h: 1}, Data{OK: true, BeatTimes: []float64{0.1}}, 1000))
	assert.True(t, p.Visible())
	beats, sections := p.Counts()
	assert.Equal(t, 1, beats)
	assert.Equal(t, 0, sections)

	p.Hide()
	assert.False(t, p.Visible())
}

func TestStripCanvasSectionsOverwriteBeats(t *testing.T) {
	c := NewStripCanvas(10, 2)
	require.NoError(t, Render(c, []float64{0, 0.5, 1}, []Section{{Time: 0.5}}, 1000))
	assert.Equal(t, "│····┃···│", c.Row())
	assert.Equal(t, "│····┃···│\n│····┃···│", c.String())
}

func TestStripCanvasDropsOutOfRange(t *testing.T) {
	c := NewStripCanvas(4, 1)
	c.VLine(-0.5, BeatWeight, BeatColor)
	c.VLine(9, SectionWeight, SectionColor)
	assert.Equal(t, "····", c.Row())
}

func TestRasterCanvasWritesPNG(t *testing.T) {
	c := NewRasterCanvas(200, 40)
	require.NoError(t, Render(c, []float64{1}, []Section{{Time: 5, Label: "chorus"}}, 10000))
	c.LabelSections([]Section{{Time: 5, Label: "chorus"}}, 10000)

	img := c.Image()
	r, g, b, _ := img.At(20, 30).RGBA()
	assert.Equal(t, uint32(0xcccc), r)
	assert.Equal(t, uint32(0xcccc), g)
	assert.Equal(t, uint32(0xcccc), b)
	r, _, _, _ = img.At(100, 39).RGBA()
	assert.Equal(t, uint32(0x3333), r)
	r, _, _, _ = img.At(50, 39).RGBA()
	assert.Equal(t, uint32(0xffff), r)

	var buf bytes.Buffer
	require.NoError(t, c.EncodePNG(&buf))
	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 200, decoded.Bounds().Dx())

	path := filepath.Join(t.TempDir(), "out", "preview.png")
	require.NoError(t, c.WritePNG(path))
}
