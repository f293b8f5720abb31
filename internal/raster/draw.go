package raster

import (
	"image"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ivlev/scenereel/internal/scene"
)

type viewer struct {
	cam                *scene.Camera
	right, up, forward r3.Vec
	w, h               float64
}

type vertex struct {
	sx, sy float64
	invZ   float64
	ok     bool
	u, v   float64
}

type lit struct {
	diffuse, specular scene.Color
}

func (r *Renderer) drawMesh(s *scene.State, m *scene.Mesh, view *viewer) {
	positions, normals := m.WorldGeometry()
	mat := m.Material
	eye := view.cam.Position

	verts := make([]vertex, len(positions))
	for i, p := range positions {
		x, y, depth, ok := view.cam.Project(p, view.right, view.up, view.forward)
		vx := vertex{ok: ok}
		if ok {
			vx.sx = (x + 1) * 0.5 * view.w
			vx.sy = (1 - y) * 0.5 * view.h
			vx.invZ = 1 / depth
		}
		if i < len(m.Geometry.UVs) {
			vx.u, vx.v = m.Geometry.UVs[i][0], m.Geometry.UVs[i][1]
		}
		verts[i] = vx
	}

	front := make([]lit, len(positions))
	for i, p := range positions {
		front[i] = shade(s, mat, p, normals[i], eye)
	}

	for _, tri := range m.Geometry.Indices {
		a, b, c := &verts[tri[0]], &verts[tri[1]], &verts[tri[2]]
		if !a.ok || !b.ok || !c.ok {
			continue
		}
		pa := positions[tri[0]]
		faceN := r3.Cross(r3.Sub(positions[tri[1]], pa), r3.Sub(positions[tri[2]], pa))
		back := r3.Dot(faceN, r3.Sub(pa, eye)) > 0
		if back && !mat.DoubleSided {
			continue
		}
		l := [3]lit{front[tri[0]], front[tri[1]], front[tri[2]]}
		if back {
			for k, idx := range tri {
				l[k] = shade(s, mat, positions[idx], r3.Scale(-1, normals[idx]), eye)
			}
		}
		r.fill([3]*vertex{a, b, c}, l, mat)
	}
}

// shade evaluates ambient, directional and area lights at p with normal n.
func shade(s *scene.State, mat *scene.Material, p, n, eye r3.Vec) lit {
	var out lit
	if r3.Norm(n) == 0 {
		return out
	}
	n = r3.Unit(n)
	v := r3.Sub(eye, p)
	if r3.Norm(v) > 0 {
		v = r3.Unit(v)
	}

	if s.Ambient != nil {
		out.diffuse = s.Ambient.Color.Scale(s.Ambient.Intensity)
	}

	shininess := shininessFor(mat.Roughness)
	specStrength := 1 - clamp(mat.Roughness, 0, 1)

	for _, l := range s.Directional {
		dir := l.Direction()
		ndl := r3.Dot(n, dir)
		if ndl <= 0 {
			continue
		}
		radiance := l.Color.Scale(l.Intensity / math.Pi)
		out.diffuse = out.diffuse.Add(radiance.Scale(ndl))
		if specStrength > 0 {
			h := r3.Add(dir, v)
			if r3.Norm(h) > 0 {
				nh := math.Max(0, r3.Dot(n, r3.Unit(h)))
				out.specular = out.specular.Add(radiance.Scale(math.Pow(nh, shininess) * specStrength * ndl))
			}
		}
	}

	for _, l := range s.RectAreas {
		toLight := r3.Sub(l.Position, p)
		d2 := r3.Dot(toLight, toLight)
		if d2 == 0 {
			continue
		}
		dir := r3.Unit(toLight)
		ndl := r3.Dot(n, dir)
		facing := -r3.Dot(l.Normal(), dir)
		if ndl <= 0 || facing <= 0 {
			continue
		}
		area := l.Width * l.Height
		e := l.Intensity * facing * area / (math.Pi*d2 + area)
		out.diffuse = out.diffuse.Add(l.Color.Scale(e * ndl))
	}
	return out
}

func shininessFor(roughness float64) float64 {
	r := clamp(roughness, 0.05, 1)
	return 2/(r*r*r*r) - 2
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func edge(ax, ay, bx, by, px, py float64) float64 {
	return (px-ax)*(by-ay) - (py-ay)*(bx-ax)
}

func (r *Renderer) fill(t [3]*vertex, l [3]lit, mat *scene.Material) {
	a, b, c := t[0], t[1], t[2]
	area := edge(a.sx, a.sy, b.sx, b.sy, c.sx, c.sy)
	if area == 0 {
		return
	}

	W, H := r.surface.Rect.Dx(), r.surface.Rect.Dy()
	minX := int(math.Max(0, math.Floor(math.Min(a.sx, math.Min(b.sx, c.sx)))))
	maxX := int(math.Min(float64(W-1), math.Ceil(math.Max(a.sx, math.Max(b.sx, c.sx)))))
	minY := int(math.Max(0, math.Floor(math.Min(a.sy, math.Min(b.sy, c.sy)))))
	maxY := int(math.Min(float64(H-1), math.Ceil(math.Max(a.sy, math.Max(b.sy, c.sy)))))

	pix := r.surface.Pix
	stride := r.surface.Stride
	for y := minY; y <= maxY; y++ {
		py := float64(y) + 0.5
		for x := minX; x <= maxX; x++ {
			px := float64(x) + 0.5
			w0 := edge(b.sx, b.sy, c.sx, c.sy, px, py)
			w1 := edge(c.sx, c.sy, a.sx, a.sy, px, py)
			w2 := edge(a.sx, a.sy, b.sx, b.sy, px, py)
			if area > 0 {
				if w0 < 0 || w1 < 0 || w2 < 0 {
					continue
				}
			} else if w0 > 0 || w1 > 0 || w2 > 0 {
				continue
			}
			l0, l1, l2 := w0/area, w1/area, w2/area
			iz := l0*a.invZ + l1*b.invZ + l2*c.invZ
			if iz <= 0 {
				continue
			}
			depth := 1 / iz
			di := y*W + x
			if depth >= r.depth[di] {
				continue
			}
			r.depth[di] = depth

			// perspective-correct weights
			p0, p1, p2 := l0*a.invZ/iz, l1*b.invZ/iz, l2*c.invZ/iz

			base := mat.Color
			if mat.Texture != nil {
				u := p0*a.u + p1*b.u + p2*c.u
				v := p0*a.v + p1*b.v + p2*c.v
				base = base.Mul(sample(mat.Texture, u, v))
			}
			diffuse := l[0].diffuse.Scale(p0).Add(l[1].diffuse.Scale(p1)).Add(l[2].diffuse.Scale(p2))
			specular := l[0].specular.Scale(p0).Add(l[1].specular.Scale(p1)).Add(l[2].specular.Scale(p2))
			col := base.Mul(diffuse).Scale(mat.Intensity).Add(specular).RGBA()

			o := y*stride + x*4
			pix[o], pix[o+1], pix[o+2], pix[o+3] = col.R, col.G, col.B, 255
		}
	}
}

// sample reads tex bilinearly. v=1 is the top row.
func sample(tex *image.RGBA, u, v float64) scene.Color {
	b := tex.Rect
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return scene.RGB(1, 1, 1)
	}
	x := clamp(u, 0, 1)*float64(w) - 0.5
	y := (1-clamp(v, 0, 1))*float64(h) - 0.5
	x0, y0 := math.Floor(x), math.Floor(y)
	fx, fy := x-x0, y-y0

	at := func(ix, iy int) scene.Color {
		if ix < 0 {
			ix = 0
		} else if ix >= w {
			ix = w - 1
		}
		if iy < 0 {
			iy = 0
		} else if iy >= h {
			iy = h - 1
		}
		o := iy*tex.Stride + ix*4
		p := tex.Pix[o : o+4 : o+4]
		return scene.Color{R: float64(p[0]) / 255, G: float64(p[1]) / 255, B: float64(p[2]) / 255, A: float64(p[3]) / 255}
	}

	ix, iy := int(x0), int(y0)
	c00, c10 := at(ix, iy), at(ix+1, iy)
	c01, c11 := at(ix, iy+1), at(ix+1, iy+1)
	top := c00.Scale(1 - fx).Add(c10.Scale(fx))
	bottom := c01.Scale(1 - fx).Add(c11.Scale(fx))
	out := top.Scale(1 - fy).Add(bottom.Scale(fy))
	out.A = 1
	return out
}
