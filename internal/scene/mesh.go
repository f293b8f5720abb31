package scene

import (
	"image"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Euler holds rotation angles in radians, applied in X, Y, Z order
// (the rotation matrix is Rx·Ry·Rz).
type Euler struct {
	X, Y, Z float64
}

func (e *Euler) Set(x, y, z float64) {
	e.X, e.Y, e.Z = x, y, z
}

// Matrix returns the rotation matrix Rx·Ry·Rz.
func (e Euler) Matrix() Matrix3 {
	a, b := math.Cos(e.X), math.Sin(e.X)
	c, d := math.Cos(e.Y), math.Sin(e.Y)
	ce, f := math.Cos(e.Z), math.Sin(e.Z)
	ae, af, be, bf := a*ce, a*f, b*ce, b*f
	return Matrix3{
		{c * ce, -c * f, d},
		{af + be*d, ae - bf*d, -b * c},
		{bf - ae*d, be + af*d, a * c},
	}
}

// Rotate applies the rotation to v.
func (e Euler) Rotate(v r3.Vec) r3.Vec {
	return e.Matrix().Apply(v)
}

// Matrix3 is a row-major 3x3 matrix.
type Matrix3 [3][3]float64

func (m Matrix3) Apply(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Material is a simplified standard material. Intensity is a uniform
// multiplier on the base color, used by image planes to fade in and out.
type Material struct {
	Color       Color
	Roughness   float64
	Texture     *image.RGBA
	Intensity   float64
	DoubleSided bool
}

func NewStandardMaterial(c Color) *Material {
	return &Material{Color: c, Roughness: 1, Intensity: 1}
}

type Mesh struct {
	Name     string
	Geometry *Geometry
	Material *Material
	Position r3.Vec
	Rotation Euler
	Visible  bool

	CastShadow    bool
	ReceiveShadow bool
}

func NewMesh(name string, g *Geometry, m *Material) *Mesh {
	return &Mesh{Name: name, Geometry: g, Material: m, Visible: true}
}

// WorldGeometry returns the mesh's positions and normals in world space.
func (m *Mesh) WorldGeometry() (positions, normals []r3.Vec) {
	rot := m.Rotation.Matrix()
	positions = make([]r3.Vec, len(m.Geometry.Positions))
	normals = make([]r3.Vec, len(m.Geometry.Normals))
	for i, p := range m.Geometry.Positions {
		positions[i] = r3.Add(rot.Apply(p), m.Position)
	}
	for i, n := range m.Geometry.Normals {
		normals[i] = rot.Apply(n)
	}
	return positions, normals
}
