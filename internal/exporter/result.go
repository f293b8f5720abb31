package exporter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	// ErrBusy is returned when Run is called while another run is active.
	ErrBusy = errors.New("export already running")
	// ErrNoFrames is returned when the timeline is too short to yield a
	// single frame at the requested rate.
	ErrNoFrames = errors.New("timeline too short for one frame")
)

// Kind tags the outcome of a run.
type Kind int

const (
	Success Kind = iota
	EncoderNotReady
	EncodeAborted
	Failed
	Busy
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case EncoderNotReady:
		return "encoder not ready"
	case EncodeAborted:
		return "encode aborted"
	case Failed:
		return "failed"
	case Busy:
		return "busy"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Result is what Run returns. Data and Path are set only on Success.
type Result struct {
	Kind   Kind
	Data   []byte
	Path   string
	Frames int
	Err    error
}

func (r Result) OK() bool { return r.Kind == Success }

// Stage is the exporter's position in its state machine.
type Stage int32

const (
	Idle Stage = iota
	Initializing
	Sampling
	Encoding
	Finalizing
	Cleanup
	Done
)

func (s Stage) String() string {
	switch s {
	case Idle:
		return "idle"
	case Initializing:
		return "initializing"
	case Sampling:
		return "sampling"
	case Encoding:
		return "encoding"
	case Finalizing:
		return "finalizing"
	case Cleanup:
		return "cleanup"
	case Done:
		return "done"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Saver hands a finished artifact to the user.
type Saver interface {
	Save(name string, data []byte) (string, error)
}

// FileSaver writes artifacts into Dir, creating it when missing.
type FileSaver struct {
	Dir string
}

func (s FileSaver) Save(name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(s.Dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
