package timeline

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// State is an authored project state as written by the Theatre.js studio
// ("Export project state"). Only the parts needed for playback are decoded.
type State struct {
	SheetsByID        map[string]SheetState `json:"sheetsById"`
	DefinitionVersion string                `json:"definitionVersion"`
	RevisionHistory   []string              `json:"revisionHistory"`
}

type SheetState struct {
	StaticOverrides StaticOverrides `json:"staticOverrides"`
	Sequence        *SequenceState  `json:"sequence"`
}

type StaticOverrides struct {
	ByObject map[string]json.RawMessage `json:"byObject"`
}

type SequenceState struct {
	Type            string                      `json:"type"`
	Length          float64                     `json:"length"`
	SubUnitsPerUnit int                         `json:"subUnitsPerUnit"`
	TracksByObject  map[string]ObjectTrackState `json:"tracksByObject"`
}

type ObjectTrackState struct {
	TrackIDByPropPath map[string]string     `json:"trackIdByPropPath"`
	TrackData         map[string]TrackState `json:"trackData"`
}

type TrackState struct {
	Type      string          `json:"type"`
	DebugName string          `json:"__debugName"`
	Keyframes []KeyframeState `json:"keyframes"`
}

type KeyframeState struct {
	ID             string          `json:"id"`
	Position       float64         `json:"position"`
	Value          json.RawMessage `json:"value"`
	ConnectedRight bool            `json:"connectedRight"`
	Handles        []float64       `json:"handles"`
	Type           string          `json:"type"`
}

// DefaultLength is the sequence length used when a sheet has no sequence.
const DefaultLength = 10.0

// ReadState decodes a project state.
func ReadState(r io.Reader) (*State, error) {
	var st State
	if err := json.NewDecoder(r).Decode(&st); err != nil {
		return nil, fmt.Errorf("decode project state: %w", err)
	}
	return &st, nil
}

// LoadStateFile reads a project state JSON file.
func LoadStateFile(path string) (*State, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := ReadState(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return st, nil
}

// WriteStateFile writes st as indented JSON.
func WriteStateFile(path string, st *State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// ParsePropPath turns a Theatre prop path key such as `["rotation","x"]`
// into the dotted form "rotation.x".
func ParsePropPath(key string) (string, error) {
	var parts []string
	if err := json.Unmarshal([]byte(key), &parts); err != nil {
		return "", fmt.Errorf("invalid prop path %q: %w", key, err)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("empty prop path %q", key)
	}
	return strings.Join(parts, "."), nil
}

// flattenOverride turns nested static override JSON into dotted paths.
func flattenOverride(raw json.RawMessage) (Values, error) {
	var tree map[string]interface{}
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	out := Values{}
	flattenInto("", tree, out)
	return out, nil
}

func flattenInto(prefix string, node map[string]interface{}, out Values) {
	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		switch v := node[k].(type) {
		case float64:
			out[path] = v
		case bool:
			if v {
				out[path] = 1
			} else {
				out[path] = 0
			}
		case map[string]interface{}:
			flattenInto(path, v, out)
		}
	}
}

// decodeKeyValue decodes a keyframe value: a bare number for number props,
// an object of numbers ({r,g,b,a}) for compound-valued props.
func decodeKeyValue(raw json.RawMessage) (map[string]float64, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return map[string]float64{"": n}, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return map[string]float64{"": 1}, nil
		}
		return map[string]float64{"": 0}, nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("unsupported keyframe value %s", string(raw))
	}
	out := Values{}
	flattenInto("", obj, out)
	return out, nil
}
