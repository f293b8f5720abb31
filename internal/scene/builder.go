package scene

import (
	"image"

	"gonum.org/v1/gonum/spatial/r3"
)

// Names of the meshes and lights the builders create. Timeline bindings
// look objects up by these names.
const (
	KnotMesh = "Torus Knot"
	KeyLight = "Key Light"
)

// BuildKnot assembles the torus-knot scene: a blue knot lit by a soft
// white ambient, a strong red directional light and a yellow area light.
func BuildKnot(aspect float64) *State {
	cam := NewPerspectiveCamera(70, aspect, 10, 200)
	cam.Position = r3.Vec{Z: 50}
	cam.LookAt(r3.Vec{})

	s := &State{
		Camera:     cam,
		Background: RGB(0, 0, 0),
	}

	mat := NewStandardMaterial(MustHex("#049ef4"))
	mat.Roughness = 0.5
	knot := NewMesh(KnotMesh, TorusKnot(10, 3, 300, 16, 2, 3), mat)
	knot.CastShadow = true
	knot.ReceiveShadow = true
	s.Add(knot)

	s.Ambient = &AmbientLight{Color: MustHex("#ffffff"), Intensity: 0.5}

	s.Directional = append(s.Directional, &DirectionalLight{
		Color:     MustHex("#ff0000"),
		Intensity: 30,
		Position:  r3.Vec{Y: 20, Z: 20},
	})

	area := &RectAreaLight{
		Color:     MustHex("#ff0"),
		Intensity: 1,
		Width:     50,
		Height:    50,
		Position:  r3.Vec{X: -20, Y: -40, Z: 10},
	}
	area.LookAt(r3.Vec{})
	s.RectAreas = append(s.RectAreas, area)

	return s
}

// PlaneSpec describes one textured plane of the image-plane variant.
type PlaneSpec struct {
	Name     string
	Texture  *image.RGBA
	Width    float64
	Height   float64
	Position r3.Vec
}

// BuildPlanes assembles one textured, double-sided plane per spec in
// front of a neutral camera. A zero Width derives it from the texture
// aspect at Height (default 10).
func BuildPlanes(aspect float64, planes []PlaneSpec) *State {
	cam := NewPerspectiveCamera(50, aspect, 0.1, 200)
	cam.Position = r3.Vec{Z: 30}
	cam.LookAt(r3.Vec{})

	s := &State{
		Camera:     cam,
		Background: MustHex("#111111"),
		Ambient:    &AmbientLight{Color: MustHex("#ffffff"), Intensity: 1},
	}

	for _, p := range planes {
		h := p.Height
		if h <= 0 {
			h = 10
		}
		w := p.Width
		if w <= 0 {
			w = h
			if p.Texture != nil && p.Texture.Bounds().Dy() > 0 {
				b := p.Texture.Bounds()
				w = h * float64(b.Dx()) / float64(b.Dy())
			}
		}
		mat := NewStandardMaterial(RGB(1, 1, 1))
		mat.Texture = p.Texture
		mat.DoubleSided = true
		m := NewMesh(p.Name, Plane(w, h, 1, 1), mat)
		m.Position = p.Position
		s.Add(m)
	}
	return s
}
