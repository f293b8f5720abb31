// Package raster draws a scene.State into an RGBA surface on the CPU.
//
// It is a small scanline-free rasterizer: triangles are filled with edge
// functions over their screen bounding box, depth tested against a float
// z-buffer and shaded with per-vertex lighting (Gouraud) and per-pixel
// texture lookup.
package raster

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/ivlev/scenereel/internal/scene"
	"github.com/ivlev/scenereel/internal/system"
)

// Renderer owns the canvas surface. Size is in logical pixels; the
// surface holds size × pixel ratio device pixels.
type Renderer struct {
	width, height int
	pixelRatio    float64

	surface *image.RGBA
	depth   []float64
	frames  uint64
}

func New(width, height int, pixelRatio float64) *Renderer {
	r := &Renderer{width: width, height: height, pixelRatio: pixelRatio}
	r.allocate()
	return r
}

func (r *Renderer) SetSize(width, height int) {
	if width == r.width && height == r.height {
		return
	}
	r.width, r.height = width, height
	r.allocate()
}

func (r *Renderer) SetPixelRatio(ratio float64) {
	if ratio <= 0 {
		ratio = 1
	}
	if ratio == r.pixelRatio {
		return
	}
	r.pixelRatio = ratio
	r.allocate()
}

// Size returns the surface size in device pixels.
func (r *Renderer) Size() (int, int) {
	b := r.surface.Bounds()
	return b.Dx(), b.Dy()
}

func (r *Renderer) PixelRatio() float64 { return r.pixelRatio }

// Frames counts completed Render calls.
func (r *Renderer) Frames() uint64 { return r.frames }

// Surface exposes the canvas. It is overwritten by the next Render.
func (r *Renderer) Surface() *image.RGBA { return r.surface }

func (r *Renderer) allocate() {
	ratio := r.pixelRatio
	if ratio <= 0 {
		ratio = 1
	}
	w := int(math.Floor(float64(r.width) * ratio))
	h := int(math.Floor(float64(r.height) * ratio))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	rect := image.Rect(0, 0, w, h)
	if r.surface != nil {
		if r.surface.Rect == rect {
			return
		}
		system.PutImage(r.surface)
	}
	r.surface = system.GetImage(rect)
	r.depth = make([]float64, w*h)
}

// Render draws s into the surface.
func (r *Renderer) Render(s *scene.State) {
	r.clear(s.Background)

	right, up, forward := s.Camera.Basis()
	view := viewer{
		cam:     s.Camera,
		right:   right,
		up:      up,
		forward: forward,
		w:       float64(r.surface.Rect.Dx()),
		h:       float64(r.surface.Rect.Dy()),
	}
	for _, m := range s.Meshes {
		if !m.Visible || m.Geometry == nil || m.Material == nil {
			continue
		}
		r.drawMesh(s, m, &view)
	}
	r.frames++
}

func (r *Renderer) clear(bg scene.Color) {
	c := bg.RGBA()
	c.A = 255
	pix := r.surface.Pix
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = c.R, c.G, c.B, c.A
	}
	for i := range r.depth {
		r.depth[i] = math.Inf(1)
	}
}

// Capture encodes the current surface as a single still image.
func (r *Renderer) Capture(format string, quality int) ([]byte, error) {
	buf := system.GetBuffer()
	defer system.PutBuffer(buf)

	var err error
	switch format {
	case "jpeg", "jpg":
		err = jpeg.Encode(buf, r.surface, &jpeg.Options{Quality: quality})
	case "png":
		err = png.Encode(buf, r.surface)
	default:
		return nil, fmt.Errorf("unsupported capture format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", format, err)
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// MIMEType returns the MIME type of captures in format.
func MIMEType(format string) string {
	if format == "png" {
		return "image/png"
	}
	return "image/jpeg"
}
