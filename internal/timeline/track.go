package timeline

import (
	"fmt"
	"sort"
)

// defaultHandles is what the studio writes for a fresh keyframe.
var defaultHandles = [4]float64{0.5, 1, 0.5, 0}

// Keyframe is one authored value on a track.
type Keyframe struct {
	Position       float64
	Value          map[string]float64 // "" for scalars, component names otherwise
	ConnectedRight bool
	Handles        [4]float64
	Hold           bool
}

// Track is the keyframed curve of one prop path.
type Track struct {
	Path      string
	Keyframes []Keyframe
}

func newTrack(path string, st TrackState) (*Track, error) {
	if st.Type != "" && st.Type != "BasicKeyframedTrack" {
		return nil, fmt.Errorf("track %s: unsupported type %q", path, st.Type)
	}
	t := &Track{Path: path}
	for _, ks := range st.Keyframes {
		v, err := decodeKeyValue(ks.Value)
		if err != nil {
			return nil, fmt.Errorf("track %s keyframe %s: %w", path, ks.ID, err)
		}
		kf := Keyframe{
			Position:       ks.Position,
			Value:          v,
			ConnectedRight: ks.ConnectedRight,
			Handles:        defaultHandles,
			Hold:           ks.Type == "hold",
		}
		if len(ks.Handles) == 4 {
			copy(kf.Handles[:], ks.Handles)
		}
		t.Keyframes = append(t.Keyframes, kf)
	}
	sort.SliceStable(t.Keyframes, func(i, j int) bool {
		return t.Keyframes[i].Position < t.Keyframes[j].Position
	})
	return t, nil
}

// ValueAt evaluates the track at position. ok is false for an empty track.
//
// Before the first keyframe the first value holds; after the last the last
// value holds. Between two keyframes the left one's ConnectedRight decides
// whether the value holds or eases along the bezier built from the left
// keyframe's right handle and the right keyframe's left handle.
func (t *Track) ValueAt(position float64) (map[string]float64, bool) {
	n := len(t.Keyframes)
	if n == 0 {
		return nil, false
	}
	if position <= t.Keyframes[0].Position {
		return t.Keyframes[0].Value, true
	}
	// index of the last keyframe at or before position
	i := sort.Search(n, func(i int) bool { return t.Keyframes[i].Position > position }) - 1
	left := t.Keyframes[i]
	if i == n-1 || !left.ConnectedRight || left.Hold {
		return left.Value, true
	}
	right := t.Keyframes[i+1]
	span := right.Position - left.Position
	if span <= 0 {
		return right.Value, true
	}
	progress := (position - left.Position) / span
	eased := newBezier(left.Handles[2], left.Handles[3], right.Handles[0], right.Handles[1]).Ease(progress)

	out := make(map[string]float64, len(left.Value))
	for k, a := range left.Value {
		b, ok := right.Value[k]
		if !ok {
			out[k] = a
			continue
		}
		out[k] = lerp(a, b, eased)
	}
	return out, true
}
