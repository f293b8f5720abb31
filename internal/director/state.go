package director

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/ivlev/scenereel/internal/binding"
	"github.com/ivlev/scenereel/internal/timeline"
)

// easeHandles is the studio's default ease-in-out curve.
var easeHandles = []float64{0.5, 1, 0.5, 0}

// State turns the plan into a project state with keyframed camera
// position and lookAt tracks on the named sheet.
func (p *Plan) State(sheet string) (*timeline.State, error) {
	tracks := timeline.ObjectTrackState{
		TrackIDByPropPath: map[string]string{},
		TrackData:         map[string]timeline.TrackState{},
	}
	axes := []struct {
		prop, axis string
		pick       func(Shot) float64
	}{
		{"position", "x", func(s Shot) float64 { return s.Position.X }},
		{"position", "y", func(s Shot) float64 { return s.Position.Y }},
		{"position", "z", func(s Shot) float64 { return s.Position.Z }},
		{"lookAt", "x", func(s Shot) float64 { return s.LookAt.X }},
		{"lookAt", "y", func(s Shot) float64 { return s.LookAt.Y }},
		{"lookAt", "z", func(s Shot) float64 { return s.LookAt.Z }},
	}
	for _, a := range axes {
		key, err := json.Marshal([]string{a.prop, a.axis})
		if err != nil {
			return nil, err
		}
		id := fmt.Sprintf("camera-%s-%s", a.prop, a.axis)
		tr := timeline.TrackState{Type: "BasicKeyframedTrack", DebugName: "Camera:" + string(key)}
		for i, s := range p.Shots {
			v, err := json.Marshal(a.pick(s))
			if err != nil {
				return nil, err
			}
			tr.Keyframes = append(tr.Keyframes, timeline.KeyframeState{
				ID:             fmt.Sprintf("%s-%d", id, i),
				Position:       s.Time,
				Value:          v,
				ConnectedRight: i < len(p.Shots)-1,
				Handles:        easeHandles,
			})
		}
		tracks.TrackIDByPropPath[string(key)] = id
		tracks.TrackData[id] = tr
	}
	return &timeline.State{
		DefinitionVersion: "0.4.0",
		SheetsByID: map[string]timeline.SheetState{
			sheet: {
				Sequence: &timeline.SequenceState{
					Type:            "PositionalSequence",
					Length:          p.Length,
					SubUnitsPerUnit: 30,
					TracksByObject: map[string]timeline.ObjectTrackState{
						binding.CameraObject: tracks,
					},
				},
			},
		},
	}, nil
}

// StatePath names a new project state file in dir after the time it was
// generated.
func StatePath(dir string, now time.Time) string {
	return filepath.Join(dir, "project-state-"+now.Format("2006-01-02_15-04-05")+".json")
}
