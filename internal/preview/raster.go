package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var rasterBackground = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

// RasterCanvas draws onto an in-memory RGBA image. Pixels outside the image
// bounds are dropped by the image itself.
type RasterCanvas struct {
	img *image.RGBA
}

func NewRasterCanvas(width, height int) *RasterCanvas {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(img, img.Bounds(), &image.Uniform{rasterBackground}, image.Point{}, xdraw.Src)
	return &RasterCanvas{img: img}
}

func (c *RasterCanvas) Width() int { return c.img.Bounds().Dx() }

func (c *RasterCanvas) Height() int { return c.img.Bounds().Dy() }

func (c *RasterCanvas) Image() image.Image { return c.img }

func (c *RasterCanvas) VLine(x float64, weight int, col color.Color) {
	if weight < 1 {
		weight = 1
	}
	left := int(math.Round(x)) - weight/2
	rect := image.Rect(left, 0, left+weight, c.Height()).Intersect(c.img.Bounds())
	if rect.Empty() {
		return
	}
	xdraw.Draw(c.img, rect, &image.Uniform{col}, image.Point{}, xdraw.Src)
}

// Label writes text with its left edge at x, near the top of the canvas.
func (c *RasterCanvas) Label(x float64, text string, col color.Color) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  c.img,
		Src:  &image.Uniform{col},
		Face: face,
		Dot:  fixed.P(int(math.Round(x))+3, face.Metrics().Ascent.Ceil()+2),
	}
	d.DrawString(text)
}

// LabelSections annotates each labelled section marker. Call after Render
// so labels sit above the lines.
func (c *RasterCanvas) LabelSections(sections []Section, durationMs float64) {
	if durationMs <= 0 {
		return
	}
	for _, s := range sections {
		if s.Label == "" {
			continue
		}
		c.Label(PixelX(s.Time, durationMs, c.Width()), s.Label, SectionColor)
	}
}

func (c *RasterCanvas) EncodePNG(w io.Writer) error {
	return png.Encode(w, c.img)
}

func (c *RasterCanvas) WritePNG(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", path, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := c.EncodePNG(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode png %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
