package binding

import (
	"image"
	"math"
	"strings"
	"testing"

	"github.com/ivlev/scenereel/internal/scene"
	"github.com/ivlev/scenereel/internal/timeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

const sheetName = "Animated scene"

func project(t *testing.T, js string) *timeline.Sheet {
	t.Helper()
	var st *timeline.State
	if js != "" {
		var err error
		st, err = timeline.ReadState(strings.NewReader(js))
		require.NoError(t, err)
	}
	return timeline.NewProject("test", st, nil).Sheet(sheetName)
}

func TestBindKnotDefaults(t *testing.T) {
	s := scene.BuildKnot(16.0 / 9)
	sheet := project(t, "")
	b, err := BindKnot(sheet, s)
	require.NoError(t, err)
	assert.Equal(t, 4, b.Len())
	assert.Equal(t, []string{scene.KnotMesh, CameraObject, SceneObject, scene.KeyLight}, sheet.Objects())

	knot := s.Mesh(scene.KnotMesh)
	assert.Equal(t, scene.Euler{}, knot.Rotation)
	assert.Equal(t, r3.Vec{Z: 50}, s.Camera.Position)
	assert.Equal(t, 30.0, s.Directional[0].Intensity)
	assert.Equal(t, scene.RGB(1, 0, 0), s.Directional[0].Color)
}

func TestBindKnotAppliesTrack(t *testing.T) {
	s := scene.BuildKnot(1)
	sheet := project(t, `{
	  "sheetsById": {"Animated scene": {
	    "staticOverrides": {"byObject": {
	      "Torus Knot": {"rotation": {"z": 3}},
	      "Key Light": {"intensity": 5, "color": {"r": 0, "g": 1, "b": 0, "a": 1}},
	      "Camera": {"position": {"x": 1, "y": 2, "z": 40}}
	    }},
	    "sequence": {"length": 2, "tracksByObject": {"Torus Knot": {
	      "trackIdByPropPath": {"[\"rotation\",\"x\"]": "t1"},
	      "trackData": {"t1": {"type": "BasicKeyframedTrack", "keyframes": [
	        {"id": "a", "position": 0, "connectedRight": true, "handles": [0.5, 1, 0.25, 0.25], "value": 0},
	        {"id": "b", "position": 2, "connectedRight": true, "handles": [0.75, 0.75, 0.5, 0], "value": 1}
	      ]}}
	    }}}
	  }}
	}`)
	b, err := BindKnot(sheet, s)
	require.NoError(t, err)
	defer b.Close()

	knot := s.Mesh(scene.KnotMesh)
	assert.InDelta(t, 3*math.Pi, knot.Rotation.Z, 1e-12, "values outside the editor range pass through")
	assert.Equal(t, 5.0, s.Directional[0].Intensity)
	assert.Equal(t, scene.RGB(0, 1, 0), s.Directional[0].Color)
	assert.Equal(t, r3.Vec{X: 1, Y: 2, Z: 40}, s.Camera.Position)

	sheet.Sequence().SetPosition(1)
	assert.InDelta(t, 0.5*math.Pi, knot.Rotation.X, 1e-9)
	sheet.Sequence().SetPosition(2)
	assert.InDelta(t, math.Pi, knot.Rotation.X, 1e-12)
}

func TestBindKnotBackground(t *testing.T) {
	s := scene.BuildKnot(1)
	sheet := project(t, `{"sheetsById": {"Animated scene": {"staticOverrides": {"byObject": {
	  "Scene": {"background": {"r": 0.2, "g": 0.4, "b": 0.6, "a": 1}}
	}}}}}`)
	_, err := BindKnot(sheet, s)
	require.NoError(t, err)
	assert.Equal(t, scene.RGB(0.2, 0.4, 0.6), s.Background)
}

func TestCloseStopsUpdates(t *testing.T) {
	s := scene.BuildKnot(1)
	sheet := project(t, `{"sheetsById": {"Animated scene": {"sequence": {"length": 1, "tracksByObject": {
	  "Torus Knot": {"trackIdByPropPath": {"[\"rotation\",\"y\"]": "t"}, "trackData": {"t": {"keyframes": [
	    {"id": "a", "position": 0, "connectedRight": true, "value": 0},
	    {"id": "b", "position": 1, "connectedRight": true, "value": 1}
	  ]}}}
	}}}}}`)
	b, err := BindKnot(sheet, s)
	require.NoError(t, err)
	b.Close()
	assert.Equal(t, 0, b.Len())

	sheet.Sequence().SetPosition(1)
	assert.Equal(t, 0.0, s.Mesh(scene.KnotMesh).Rotation.Y)
}

func TestBindKnotMissingMesh(t *testing.T) {
	s := &scene.State{Camera: scene.NewPerspectiveCamera(50, 1, 0.1, 10)}
	_, err := BindKnot(project(t, ""), s)
	assert.Error(t, err)
}

func TestBindPlanes(t *testing.T) {
	tex := image.NewRGBA(image.Rect(0, 0, 4, 2))
	s := scene.BuildPlanes(1, []scene.PlaneSpec{
		{Name: "cover", Texture: tex},
		{Name: "logo", Texture: tex, Position: r3.Vec{X: 5}},
	})
	sheet := project(t, `{"sheetsById": {"Animated scene": {"staticOverrides": {"byObject": {
	  "Plane logo": {"intensity": 0.25, "rotation": {"y": 1.5}}
	}}}}}`)
	b, err := BindPlanes(sheet, s)
	require.NoError(t, err)
	assert.Equal(t, 4, b.Len())
	assert.Contains(t, sheet.Objects(), "Plane cover")

	cover, logo := s.Mesh("cover"), s.Mesh("logo")
	assert.Equal(t, 1.0, cover.Material.Intensity)
	assert.Equal(t, 0.25, logo.Material.Intensity)
	assert.Equal(t, r3.Vec{X: 5}, logo.Position, "position defaults to the built layout")
	assert.Equal(t, 1.5, logo.Rotation.Y)
}

func TestBindPlanesTwiceFails(t *testing.T) {
	s := scene.BuildPlanes(1, []scene.PlaneSpec{{Name: "a"}})
	sheet := project(t, "")
	_, err := BindPlanes(sheet, s)
	require.NoError(t, err)
	_, err = BindPlanes(sheet, s)
	assert.Error(t, err)
}
