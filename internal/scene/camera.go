package scene

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Camera is a perspective camera looking from Position towards Target.
type Camera struct {
	FOV    float64 // vertical field of view, degrees
	Aspect float64
	Near   float64
	Far    float64

	Position r3.Vec
	Target   r3.Vec
	Up       r3.Vec

	// focal lengths derived by UpdateProjectionMatrix
	fx, fy float64
}

func NewPerspectiveCamera(fov, aspect, near, far float64) *Camera {
	c := &Camera{
		FOV:    fov,
		Aspect: aspect,
		Near:   near,
		Far:    far,
		Up:     r3.Vec{Y: 1},
	}
	c.UpdateProjectionMatrix()
	return c
}

// UpdateProjectionMatrix must be called after FOV or Aspect change.
func (c *Camera) UpdateProjectionMatrix() {
	aspect := c.Aspect
	if aspect <= 0 {
		aspect = 1
	}
	c.fy = 1 / math.Tan(c.FOV*math.Pi/360)
	c.fx = c.fy / aspect
}

func (c *Camera) LookAt(target r3.Vec) {
	c.Target = target
}

// Basis returns the camera's right, up and forward unit vectors.
func (c *Camera) Basis() (right, up, forward r3.Vec) {
	forward = r3.Sub(c.Target, c.Position)
	if r3.Norm(forward) == 0 {
		forward = r3.Vec{Z: -1}
	}
	forward = r3.Unit(forward)
	worldUp := c.Up
	if r3.Norm(worldUp) == 0 {
		worldUp = r3.Vec{Y: 1}
	}
	right = r3.Cross(forward, worldUp)
	if r3.Norm(right) < 1e-12 {
		// looking straight along Up
		right = r3.Cross(forward, r3.Vec{Z: 1})
	}
	right = r3.Unit(right)
	up = r3.Cross(right, forward)
	return right, up, forward
}

// Project maps a world point to normalized device coordinates. depth is
// the distance along the view direction. ok is false for points in front
// of the near plane or beyond the far plane.
func (c *Camera) Project(p r3.Vec, right, up, forward r3.Vec) (x, y, depth float64, ok bool) {
	d := r3.Sub(p, c.Position)
	depth = r3.Dot(d, forward)
	if depth < c.Near || depth > c.Far {
		return 0, 0, depth, false
	}
	x = c.fx * r3.Dot(d, right) / depth
	y = c.fy * r3.Dot(d, up) / depth
	return x, y, depth, true
}
