// Package binding connects timeline objects to scene state.
//
// Each attribute group gets exactly one handler. Handlers write every field
// of the value set they receive straight into the scene, without clamping,
// so the next render reflects the timeline.
package binding

import (
	"fmt"
	"math"

	"github.com/ivlev/scenereel/internal/scene"
	"github.com/ivlev/scenereel/internal/timeline"
	"gonum.org/v1/gonum/spatial/r3"
)

// Object keys on the sheet.
const (
	CameraObject = "Camera"
	SceneObject  = "Scene"
	PlanePrefix  = "Plane "
)

// Bindings holds the subscriptions of one scene. Close releases them all.
type Bindings struct {
	subs []*timeline.Subscription
}

func (b *Bindings) add(s *timeline.Subscription) {
	b.subs = append(b.subs, s)
}

// Len reports the number of live subscriptions.
func (b *Bindings) Len() int { return len(b.subs) }

func (b *Bindings) Close() {
	for _, s := range b.subs {
		s.Close()
	}
	b.subs = nil
}

// BindKnot declares the knot scene's objects on sheet and subscribes their
// handlers. The scene must come from scene.BuildKnot.
func BindKnot(sheet *timeline.Sheet, s *scene.State) (*Bindings, error) {
	knot := s.Mesh(scene.KnotMesh)
	if knot == nil {
		return nil, fmt.Errorf("bind knot: mesh %q missing", scene.KnotMesh)
	}
	if len(s.Directional) == 0 {
		return nil, fmt.Errorf("bind knot: no directional light")
	}
	b := &Bindings{}

	obj, err := sheet.Object(scene.KnotMesh, timeline.Compound{
		"rotation": timeline.Compound{
			"x": timeline.NumberInRange(0, -2, 2),
			"y": timeline.NumberInRange(0, -2, 2),
			"z": timeline.NumberInRange(0, -2, 2),
		},
	})
	if err != nil {
		return nil, err
	}
	b.add(obj.OnValuesChange(func(v timeline.Values) {
		x, y, z := v.Vec3("rotation")
		knot.Rotation.Set(x*math.Pi, y*math.Pi, z*math.Pi)
	}))

	if err := bindCommon(b, sheet, s); err != nil {
		b.Close()
		return nil, err
	}

	light := s.Directional[0]
	obj, err = sheet.Object(scene.KeyLight, timeline.Compound{
		"intensity": timeline.NumberInRange(light.Intensity, 0, 100),
		"color":     rgbaProp(light.Color),
	})
	if err != nil {
		b.Close()
		return nil, err
	}
	b.add(obj.OnValuesChange(func(v timeline.Values) {
		light.Intensity = v.Number("intensity")
		light.Color = colorOf(v, "color")
	}))
	return b, nil
}

// BindPlanes declares the camera, the scene and one "Plane <name>" object
// per mesh of a scene built by scene.BuildPlanes.
func BindPlanes(sheet *timeline.Sheet, s *scene.State) (*Bindings, error) {
	b := &Bindings{}
	if err := bindCommon(b, sheet, s); err != nil {
		return nil, err
	}
	for _, m := range s.Meshes {
		m := m
		obj, err := sheet.Object(PlanePrefix+m.Name, timeline.Compound{
			"intensity": timeline.NumberInRange(m.Material.Intensity, 0, 2),
			"position":  vec3Prop(m.Position),
			"rotation":  timeline.Vec3(m.Rotation.X, m.Rotation.Y, m.Rotation.Z),
		})
		if err != nil {
			b.Close()
			return nil, err
		}
		b.add(obj.OnValuesChange(func(v timeline.Values) {
			m.Material.Intensity = v.Number("intensity")
			m.Position = vecOf(v, "position")
			x, y, z := v.Vec3("rotation")
			m.Rotation.Set(x, y, z)
		}))
	}
	return b, nil
}

func bindCommon(b *Bindings, sheet *timeline.Sheet, s *scene.State) error {
	cam := s.Camera
	obj, err := sheet.Object(CameraObject, timeline.Compound{
		"position": vec3Prop(cam.Position),
		"lookAt":   vec3Prop(cam.Target),
	})
	if err != nil {
		return err
	}
	b.add(obj.OnValuesChange(func(v timeline.Values) {
		cam.Position = vecOf(v, "position")
		cam.LookAt(vecOf(v, "lookAt"))
	}))

	obj, err = sheet.Object(SceneObject, timeline.Compound{
		"background": rgbaProp(s.Background),
	})
	if err != nil {
		return err
	}
	b.add(obj.OnValuesChange(func(v timeline.Values) {
		s.Background = colorOf(v, "background")
	}))
	return nil
}

func vec3Prop(p r3.Vec) timeline.Compound {
	return timeline.Vec3(p.X, p.Y, p.Z)
}

func rgbaProp(c scene.Color) timeline.RGBAProp {
	return timeline.RGBA(c.R, c.G, c.B, c.A)
}

func vecOf(v timeline.Values, path string) r3.Vec {
	x, y, z := v.Vec3(path)
	return r3.Vec{X: x, Y: y, Z: z}
}

func colorOf(v timeline.Values, path string) scene.Color {
	r, g, b, a := v.RGBA(path)
	return scene.Color{R: r, G: g, B: b, A: a}
}
