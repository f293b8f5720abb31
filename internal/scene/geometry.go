package scene

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Geometry is an indexed triangle list with per-vertex normals and UVs.
type Geometry struct {
	Positions []r3.Vec
	Normals   []r3.Vec
	UVs       [][2]float64
	Indices   [][3]int
}

func (g *Geometry) Triangles() int { return len(g.Indices) }

// TorusKnot builds a (p,q) torus knot tube, vertex for vertex the layout
// three.js uses for TorusKnotGeometry.
func TorusKnot(radius, tube float64, tubularSegments, radialSegments, p, q int) *Geometry {
	g := &Geometry{}
	knot := func(u float64) r3.Vec {
		cu, su := math.Cos(u), math.Sin(u)
		quOverP := float64(q) / float64(p) * u
		cs := math.Cos(quOverP)
		return r3.Vec{
			X: radius * (2 + cs) * 0.5 * cu,
			Y: radius * (2 + cs) * su * 0.5,
			Z: radius * math.Sin(quOverP) * 0.5,
		}
	}

	for i := 0; i <= tubularSegments; i++ {
		u := float64(i) / float64(tubularSegments) * float64(p) * math.Pi * 2
		p1 := knot(u)
		p2 := knot(u + 0.01)

		t := r3.Sub(p2, p1)
		n := r3.Add(p2, p1)
		b := r3.Unit(r3.Cross(t, n))
		n = r3.Unit(r3.Cross(b, t))

		for j := 0; j <= radialSegments; j++ {
			v := float64(j) / float64(radialSegments) * math.Pi * 2
			cx := -tube * math.Cos(v)
			cy := tube * math.Sin(v)

			vertex := r3.Add(p1, r3.Add(r3.Scale(cx, n), r3.Scale(cy, b)))
			g.Positions = append(g.Positions, vertex)
			g.Normals = append(g.Normals, r3.Unit(r3.Sub(vertex, p1)))
			g.UVs = append(g.UVs, [2]float64{
				float64(i) / float64(tubularSegments),
				float64(j) / float64(radialSegments),
			})
		}
	}

	for j := 1; j <= tubularSegments; j++ {
		for i := 1; i <= radialSegments; i++ {
			a := (radialSegments+1)*(j-1) + (i - 1)
			b := (radialSegments+1)*j + (i - 1)
			c := (radialSegments+1)*j + i
			d := (radialSegments+1)*(j-1) + i
			g.Indices = append(g.Indices, [3]int{a, b, d}, [3]int{b, c, d})
		}
	}
	return g
}

// Plane builds a width x height plane in the XY plane facing +Z.
// UV (0,1) is the top-left corner.
func Plane(width, height float64, widthSegments, heightSegments int) *Geometry {
	if widthSegments < 1 {
		widthSegments = 1
	}
	if heightSegments < 1 {
		heightSegments = 1
	}
	g := &Geometry{}
	segW := width / float64(widthSegments)
	segH := height / float64(heightSegments)
	gridX1 := widthSegments + 1

	for iy := 0; iy <= heightSegments; iy++ {
		y := float64(iy)*segH - height/2
		for ix := 0; ix <= widthSegments; ix++ {
			x := float64(ix)*segW - width/2
			g.Positions = append(g.Positions, r3.Vec{X: x, Y: -y})
			g.Normals = append(g.Normals, r3.Vec{Z: 1})
			g.UVs = append(g.UVs, [2]float64{
				float64(ix) / float64(widthSegments),
				1 - float64(iy)/float64(heightSegments),
			})
		}
	}

	for iy := 0; iy < heightSegments; iy++ {
		for ix := 0; ix < widthSegments; ix++ {
			a := ix + gridX1*iy
			b := ix + gridX1*(iy+1)
			c := (ix + 1) + gridX1*(iy+1)
			d := (ix + 1) + gridX1*iy
			g.Indices = append(g.Indices, [3]int{a, b, d}, [3]int{b, c, d})
		}
	}
	return g
}
