// Package analyzer finds the regions of a texture that carry content, so
// page margins can be trimmed before the texture is mapped onto a plane.
package analyzer

import (
	"fmt"
	"image"
)

// Region is a connected area of edges found in an image.
type Region struct {
	Rect image.Rectangle
	Area int
}

// Detector finds content regions in an image.
type Detector interface {
	Detect(img image.Image) []Region
}

// NewDetector returns the detector registered under name. An empty name
// selects the edge detector.
func NewDetector(name string) (Detector, error) {
	switch name {
	case "", "edges":
		return NewEdgeDetector(), nil
	}
	return nil, fmt.Errorf("unknown detector %q", name)
}

// ContentBounds is the union of all regions d finds in img, grown by pad
// pixels and clipped to the image. It reports false when nothing is found.
func ContentBounds(d Detector, img image.Image, pad int) (image.Rectangle, bool) {
	var r image.Rectangle
	for _, reg := range d.Detect(img) {
		r = r.Union(reg.Rect)
	}
	if r.Empty() {
		return image.Rectangle{}, false
	}
	return r.Inset(-pad).Intersect(img.Bounds()), true
}
