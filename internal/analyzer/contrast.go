package analyzer

import (
	"image"
	"image/color"
	"math"
)

// EdgeDetector marks pixels whose Sobel gradient exceeds Threshold, joins
// nearby marks by dilating Passes times with a square of side 2*Reach+1,
// and reports the bounding boxes of the resulting components.
type EdgeDetector struct {
	Threshold float64
	Reach     int
	Passes    int
	MinArea   int
}

func NewEdgeDetector() *EdgeDetector {
	return &EdgeDetector{Threshold: 30, Reach: 2, Passes: 2, MinArea: 500}
}

func (d *EdgeDetector) Detect(img image.Image) []Region {
	g := luma(img)
	mask := d.edges(g)
	for i := 0; i < d.Passes; i++ {
		mask = dilate(mask, d.Reach)
	}
	var out []Region
	for _, r := range components(mask) {
		if r.Area >= d.MinArea {
			out = append(out, r)
		}
	}
	return out
}

// grid is a dense row-major plane of values anchored at an image origin.
type grid[T any] struct {
	min  image.Point
	w, h int
	v    []T
}

func newGrid[T any](b image.Rectangle) *grid[T] {
	return &grid[T]{min: b.Min, w: b.Dx(), h: b.Dy(), v: make([]T, b.Dx()*b.Dy())}
}

func (g *grid[T]) at(x, y int) T     { return g.v[y*g.w+x] }
func (g *grid[T]) set(x, y int, v T) { g.v[y*g.w+x] = v }

func luma(img image.Image) *grid[float64] {
	b := img.Bounds()
	g := newGrid[float64](b)
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			c := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			g.set(x, y, float64(c.Y))
		}
	}
	return g
}

func (d *EdgeDetector) edges(g *grid[float64]) *grid[bool] {
	m := &grid[bool]{min: g.min, w: g.w, h: g.h, v: make([]bool, len(g.v))}
	for y := 1; y < g.h-1; y++ {
		for x := 1; x < g.w-1; x++ {
			gx := g.at(x+1, y-1) + 2*g.at(x+1, y) + g.at(x+1, y+1) -
				g.at(x-1, y-1) - 2*g.at(x-1, y) - g.at(x-1, y+1)
			gy := g.at(x-1, y+1) + 2*g.at(x, y+1) + g.at(x+1, y+1) -
				g.at(x-1, y-1) - 2*g.at(x, y-1) - g.at(x+1, y-1)
			m.set(x, y, math.Hypot(gx, gy) > d.Threshold)
		}
	}
	return m
}

// dilate is separable: a horizontal then a vertical max over ±r.
func dilate(m *grid[bool], r int) *grid[bool] {
	if r <= 0 {
		return m
	}
	tmp := &grid[bool]{min: m.min, w: m.w, h: m.h, v: make([]bool, len(m.v))}
	for y := 0; y < m.h; y++ {
		for x := 0; x < m.w; x++ {
			if m.at(x, y) {
				for k := max(0, x-r); k <= min(m.w-1, x+r); k++ {
					tmp.set(k, y, true)
				}
			}
		}
	}
	out := &grid[bool]{min: m.min, w: m.w, h: m.h, v: make([]bool, len(m.v))}
	for y := 0; y < m.h; y++ {
		for x := 0; x < m.w; x++ {
			if tmp.at(x, y) {
				for k := max(0, y-r); k <= min(m.h-1, y+r); k++ {
					out.set(x, k, true)
				}
			}
		}
	}
	return out
}

// components labels 4-connected set pixels and returns one region each,
// with Area counting the set pixels.
func components(m *grid[bool]) []Region {
	seen := make([]bool, len(m.v))
	var out []Region
	var stack []image.Point
	for y := 0; y < m.h; y++ {
		for x := 0; x < m.w; x++ {
			if !m.at(x, y) || seen[y*m.w+x] {
				continue
			}
			r := image.Rect(x, y, x+1, y+1)
			n := 0
			seen[y*m.w+x] = true
			stack = append(stack[:0], image.Pt(x, y))
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				n++
				r = r.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))
				for _, q := range [4]image.Point{{p.X + 1, p.Y}, {p.X - 1, p.Y}, {p.X, p.Y + 1}, {p.X, p.Y - 1}} {
					if q.X < 0 || q.Y < 0 || q.X >= m.w || q.Y >= m.h {
						continue
					}
					i := q.Y*m.w + q.X
					if m.v[i] && !seen[i] {
						seen[i] = true
						stack = append(stack, q)
					}
				}
			}
			out = append(out, Region{Rect: r.Add(m.min), Area: n})
		}
	}
	return out
}
