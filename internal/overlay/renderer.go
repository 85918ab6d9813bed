// Package overlay draws detection results onto the overlay surface.
//
// Each render is a complete repaint: the surface is cleared in full and
// every face is redrawn, scaled from model input coordinates to the
// display size. There is no incremental diffing between ticks.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/visiona/moodcam/internal/types"
)

// boxPalette cycles per face index so adjacent faces stay visually
// distinct.
var boxPalette = []color.RGBA{
	{R: 0x00, G: 0xe5, B: 0x76, A: 0xff}, // green
	{R: 0x2f, G: 0x9b, B: 0xff, A: 0xff}, // blue
	{R: 0xff, G: 0xb3, B: 0x00, A: 0xff}, // amber
	{R: 0xff, G: 0x4d, B: 0x6a, A: 0xff}, // red
}

var landmarkColor = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xe0}

// Renderer owns the overlay surface exclusively; nothing else writes
// it. The surface exists only while mounted, mirroring a display
// surface that may not be attached yet.
type Renderer struct {
	mu      sync.Mutex
	surface *image.RGBA

	renders      uint64
	renderErrors uint64
}

// NewRenderer creates a renderer with no surface mounted.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Mount attaches an overlay surface of the given display size.
func (r *Renderer) Mount(width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surface = image.NewRGBA(image.Rect(0, 0, width, height))
}

// Unmount detaches the surface; renders fail with a RenderError until
// the next Mount.
func (r *Renderer) Unmount() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surface = nil
}

// Surface returns a copy of the current overlay pixels, or nil when
// not mounted.
func (r *Renderer) Surface() *image.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.surface == nil {
		return nil
	}
	out := image.NewRGBA(r.surface.Bounds())
	copy(out.Pix, r.surface.Pix)
	return out
}

// Scale maps a rectangle from model input space to display space via
// linear scaling on each axis.
func Scale(rect types.Rect, inputW, inputH, displayW, displayH int) types.Rect {
	sx := float64(displayW) / float64(inputW)
	sy := float64(displayH) / float64(inputH)
	return types.Rect{
		X:      rect.X * sx,
		Y:      rect.Y * sy,
		Width:  rect.Width * sx,
		Height: rect.Height * sy,
	}
}

// Render clears the entire surface and repaints every face in result,
// scaled to the given display size. Zero faces clears and draws
// nothing. An unmounted surface or an unusable input space is a
// RenderError, fatal to this tick only.
func (r *Renderer) Render(result *types.DetectionResult, displayW, displayH int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.surface == nil {
		r.renderErrors++
		return &types.RenderError{Reason: "surface not mounted"}
	}

	// Reallocate when the display size changed since the last tick
	bounds := r.surface.Bounds()
	if bounds.Dx() != displayW || bounds.Dy() != displayH {
		r.surface = image.NewRGBA(image.Rect(0, 0, displayW, displayH))
		bounds = r.surface.Bounds()
	}

	// Full-surface clear; every tick is a complete repaint
	draw.Draw(r.surface, bounds, image.Transparent, image.Point{}, draw.Src)

	if len(result.Faces) == 0 {
		r.renders++
		return nil
	}

	if result.InputWidth <= 0 || result.InputHeight <= 0 {
		r.renderErrors++
		return &types.RenderError{Reason: "result has no model input dimensions"}
	}

	sx := float64(displayW) / float64(result.InputWidth)
	sy := float64(displayH) / float64(result.InputHeight)

	for i, face := range result.Faces {
		col := boxPalette[i%len(boxPalette)]

		box := Scale(face.Box, result.InputWidth, result.InputHeight, displayW, displayH)
		r.drawRect(box, col)

		for _, pt := range face.Landmarks {
			r.drawDot(int(pt.X*sx), int(pt.Y*sy))
		}

		mood := face.Expressions.Dominant()
		label := fmt.Sprintf("%s %.0f%%", mood, face.Expressions[mood]*100)
		r.drawLabel(int(box.X), int(box.Y)-4, label, col)
	}

	r.renders++
	return nil
}

// Stats returns render counters.
func (r *Renderer) Stats() (renders, renderErrors uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renders, r.renderErrors
}

// drawRect draws a 2px rectangle outline clipped to the surface.
func (r *Renderer) drawRect(rect types.Rect, col color.RGBA) {
	x0, y0 := int(rect.X), int(rect.Y)
	x1, y1 := int(rect.X+rect.Width), int(rect.Y+rect.Height)

	for t := 0; t < 2; t++ {
		for x := x0; x <= x1; x++ {
			r.setPixel(x, y0+t, col)
			r.setPixel(x, y1-t, col)
		}
		for y := y0; y <= y1; y++ {
			r.setPixel(x0+t, y, col)
			r.setPixel(x1-t, y, col)
		}
	}
}

// drawDot draws a 2x2 landmark point.
func (r *Renderer) drawDot(x, y int) {
	for dy := 0; dy < 2; dy++ {
		for dx := 0; dx < 2; dx++ {
			r.setPixel(x+dx, y+dy, landmarkColor)
		}
	}
}

// drawLabel draws the expression indicator above the face box.
func (r *Renderer) drawLabel(x, y int, text string, col color.RGBA) {
	if y < basicfont.Face7x13.Ascent {
		y = basicfont.Face7x13.Ascent
	}
	d := font.Drawer{
		Dst:  r.surface,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func (r *Renderer) setPixel(x, y int, col color.RGBA) {
	if !(image.Point{X: x, Y: y}).In(r.surface.Bounds()) {
		return
	}
	r.surface.SetRGBA(x, y, col)
}
