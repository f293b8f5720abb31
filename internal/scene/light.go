package scene

import "gonum.org/v1/gonum/spatial/r3"

type AmbientLight struct {
	Color     Color
	Intensity float64
}

// DirectionalLight shines from Position towards Target.
type DirectionalLight struct {
	Color     Color
	Intensity float64
	Position  r3.Vec
	Target    r3.Vec
}

// Direction is the unit vector pointing from the lit surface towards the light.
func (l *DirectionalLight) Direction() r3.Vec {
	d := r3.Sub(l.Position, l.Target)
	if r3.Norm(d) == 0 {
		return r3.Vec{Y: 1}
	}
	return r3.Unit(d)
}

// RectAreaLight is a one-sided rectangular emitter centered at Position
// and facing Target.
type RectAreaLight struct {
	Color     Color
	Intensity float64
	Width     float64
	Height    float64
	Position  r3.Vec
	Target    r3.Vec
}

func (l *RectAreaLight) LookAt(target r3.Vec) {
	l.Target = target
}

// Normal is the emitting side's unit normal.
func (l *RectAreaLight) Normal() r3.Vec {
	d := r3.Sub(l.Target, l.Position)
	if r3.Norm(d) == 0 {
		return r3.Vec{Z: -1}
	}
	return r3.Unit(d)
}
