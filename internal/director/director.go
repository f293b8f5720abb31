// Package director plans a camera tour over the objects of a scene and
// writes it as a project state the timeline can play.
package director

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ivlev/scenereel/internal/scene"
)

// Stop is one place the camera visits.
type Stop struct {
	Name   string
	Center r3.Vec
	Width  float64
	Height float64
}

// Shot is the camera at one keyframe of the tour.
type Shot struct {
	Time     float64
	Focus    string
	Position r3.Vec
	LookAt   r3.Vec
}

// Plan is a complete tour: an overview, every stop held for Dwell seconds,
// and the overview again.
type Plan struct {
	Length float64
	Dwell  float64
	Shots  []Shot
}

// Director frames stops for a camera with the given vertical FOV (degrees)
// and aspect.
type Director struct {
	FOV    float64
	Aspect float64

	MinDwell float64
	MaxDwell float64
	Travel   float64 // seconds spent moving between shots
	Fill     float64 // share of the view a framed stop covers
}

func New(cam *scene.Camera) *Director {
	return &Director{
		FOV:      cam.FOV,
		Aspect:   cam.Aspect,
		MinDwell: 1,
		MaxDwell: 3,
		Travel:   1,
		Fill:     0.9,
	}
}

// StopsFromScene makes a stop of every visible mesh, framed on its world
// space bounding box.
func StopsFromScene(s *scene.State) []Stop {
	var stops []Stop
	for _, m := range s.Meshes {
		if !m.Visible || m.Geometry == nil || len(m.Geometry.Positions) == 0 {
			continue
		}
		pos, _ := m.WorldGeometry()
		lo, hi := pos[0], pos[0]
		for _, p := range pos[1:] {
			lo = r3.Vec{X: math.Min(lo.X, p.X), Y: math.Min(lo.Y, p.Y), Z: math.Min(lo.Z, p.Z)}
			hi = r3.Vec{X: math.Max(hi.X, p.X), Y: math.Max(hi.Y, p.Y), Z: math.Max(hi.Z, p.Z)}
		}
		stops = append(stops, Stop{
			Name:   m.Name,
			Center: r3.Scale(0.5, r3.Add(lo, hi)),
			Width:  hi.X - lo.X,
			Height: hi.Y - lo.Y,
		})
	}
	return stops
}

// Plan lays out a tour of stops that lasts about total seconds. Stops are
// visited in reading order: rows from the top, left to right in a row.
func (d *Director) Plan(stops []Stop, total float64) (*Plan, error) {
	if len(stops) == 0 {
		return nil, errors.New("no stops to visit")
	}
	if d.FOV <= 0 || d.FOV >= 180 {
		return nil, fmt.Errorf("invalid field of view %g", d.FOV)
	}
	ordered := readingOrder(stops)
	dwell := d.dwell(total, len(ordered))

	overview := union(ordered)
	overview.Name = "overview"

	p := &Plan{Dwell: dwell}
	t := 0.0
	p.Shots = append(p.Shots, d.frame(overview, t))
	for _, s := range ordered {
		t += d.Travel
		p.Shots = append(p.Shots, d.frame(s, t))
		t += dwell
		p.Shots = append(p.Shots, d.frame(s, t))
	}
	t += d.Travel
	p.Shots = append(p.Shots, d.frame(overview, t))
	p.Length = t
	return p, nil
}

// dwell shares what travel leaves of total between n stops.
func (d *Director) dwell(total float64, n int) float64 {
	if total <= 0 {
		return d.MaxDwell
	}
	dw := (total - d.Travel*float64(n+1)) / float64(n)
	return math.Max(d.MinDwell, math.Min(d.MaxDwell, dw))
}

// frame places the camera on the +Z side of s, far enough for s to cover
// Fill of the view on its tighter axis.
func (d *Director) frame(s Stop, t float64) Shot {
	fill := d.Fill
	if fill <= 0 || fill > 1 {
		fill = 1
	}
	aspect := d.Aspect
	if aspect <= 0 {
		aspect = 1
	}
	tanHalf := math.Tan(d.FOV * math.Pi / 360)
	dist := math.Max(s.Height/2/tanHalf, s.Width/2/(tanHalf*aspect)) / fill
	if dist <= 0 {
		dist = 1
	}
	return Shot{
		Time:     t,
		Focus:    s.Name,
		Position: r3.Add(s.Center, r3.Vec{Z: dist}),
		LookAt:   s.Center,
	}
}

// rowTolerance is how far apart two stop tops may be and still share a row.
const rowTolerance = 1.0

func readingOrder(stops []Stop) []Stop {
	out := append([]Stop(nil), stops...)
	sort.SliceStable(out, func(i, j int) bool {
		ti := out[i].Center.Y + out[i].Height/2
		tj := out[j].Center.Y + out[j].Height/2
		if math.Abs(ti-tj) > rowTolerance {
			return ti > tj
		}
		return out[i].Center.X < out[j].Center.X
	})
	return out
}

func union(stops []Stop) Stop {
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	z := 0.0
	for _, s := range stops {
		minX = math.Min(minX, s.Center.X-s.Width/2)
		maxX = math.Max(maxX, s.Center.X+s.Width/2)
		minY = math.Min(minY, s.Center.Y-s.Height/2)
		maxY = math.Max(maxY, s.Center.Y+s.Height/2)
		z += s.Center.Z
	}
	return Stop{
		Center: r3.Vec{X: (minX + maxX) / 2, Y: (minY + maxY) / 2, Z: z / float64(len(stops))},
		Width:  maxX - minX,
		Height: maxY - minY,
	}
}
