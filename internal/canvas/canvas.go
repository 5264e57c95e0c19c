// Package canvas implements the overlay drawing surface on top of fogleman/gg.
package canvas

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// LabelSize is the point size of track labels.
const LabelSize = 14

// GG is a raster canvas. Each method is safe for concurrent use on its own;
// a caller that needs a whole frame in a snapshot must keep drawing and
// Snapshot from interleaving. Snapshot returns a copy.
type GG struct {
	mu   sync.Mutex
	dc   *gg.Context
	face font.Face
}

// New returns a canvas of the given size using the Go Regular face for labels.
func New(width, height int) (*GG, error) {
	face, err := labelFace(LabelSize)
	if err != nil {
		return nil, err
	}
	c := &GG{face: face}
	c.Resize(width, height)
	return c, nil
}

func labelFace(size float64) (font.Face, error) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse label font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("label font face: %w", err)
	}
	return face, nil
}

// Resize replaces the raster with a blank one of the given size.
func (c *GG) Resize(width, height int) {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dc = gg.NewContext(width, height)
	c.dc.SetFontFace(c.face)
}

// Size returns the raster dimensions.
func (c *GG) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dc.Width(), c.dc.Height()
}

// DrawFrame blits frame over the whole raster, scaling if its size differs.
func (c *GG) DrawFrame(frame image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dst, ok := c.dc.Image().(*image.RGBA)
	if !ok {
		c.dc.DrawImage(frame, 0, 0)
		return
	}
	if frame.Bounds().Size() == dst.Bounds().Size() {
		draw.Draw(dst, dst.Bounds(), frame, frame.Bounds().Min, draw.Src)
		return
	}
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame, frame.Bounds(), draw.Src, nil)
}

// StrokeRect outlines a rectangle.
func (c *GG) StrokeRect(x, y, w, h, lineWidth float64, col color.Color) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dc.SetColor(col)
	c.dc.SetLineWidth(lineWidth)
	c.dc.DrawRectangle(x, y, w, h)
	c.dc.Stroke()
}

// FillText draws text with its baseline starting at (x, y).
func (c *GG) FillText(text string, x, y float64, col color.Color) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dc.SetColor(col)
	c.dc.DrawString(text, x, y)
}

// FillCircle draws a filled disc.
func (c *GG) FillCircle(cx, cy, r float64, col color.Color) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dc.SetColor(col)
	c.dc.DrawCircle(cx, cy, r)
	c.dc.Fill()
}

// Snapshot returns a copy of the raster.
func (c *GG) Snapshot() image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()

	src := c.dc.Image()
	out := image.NewRGBA(src.Bounds())
	draw.Draw(out, out.Bounds(), src, src.Bounds().Min, draw.Src)
	return out
}
