package video

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	// ErrNotLoaded is returned by workspace and Exec calls made before Load
	// succeeded or after the encoder was terminated.
	ErrNotLoaded = errors.New("encoder not loaded")
	// ErrAborted reports an encode that was cancelled or killed.
	ErrAborted = errors.New("encode aborted")
)

// Encoder is a video encoder with a private file workspace. Input frames
// are written into the workspace by name, the encoder is run on them and
// the output is read back from the workspace.
type Encoder interface {
	Load(ctx context.Context) error
	Loaded() bool

	WriteFile(name string, data []byte) error
	ReadFile(name string) ([]byte, error)
	DeleteFile(name string) error

	// Exec runs the encoder with args. Names in args resolve inside the
	// workspace.
	Exec(ctx context.Context, args []string) error

	OnLog(func(LogEvent))
	OnProgress(func(Progress))

	// Terminate stops any running job and unloads the encoder.
	Terminate()
}

// LogEvent is one line of encoder diagnostics.
type LogEvent struct {
	Type    string
	Message string
}

// Progress is a snapshot reported while encoding.
type Progress struct {
	Frame   int
	FPS     float64
	OutTime time.Duration
	Speed   string
	Done    bool
}

// Params describe one frames-to-video job.
type Params struct {
	FPS     int
	Pattern string // e.g. frame%03d.jpeg
	Codec   string
	Quality int
	Output  string
}

// BuildArgs returns the encoder arguments for p: the frame pattern at FPS,
// no audio, yuv420p and the moov atom up front.
func BuildArgs(p Params) []string {
	args := []string{
		"-framerate", strconv.Itoa(p.FPS),
		"-i", p.Pattern,
		"-c:v", p.Codec,
		"-an",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
	}
	args = append(args, QualityArgs(p.Codec, p.Quality)...)
	return append(args, p.Output)
}

// QualityArgs maps a single quality knob onto what each encoder accepts.
// Quality <= 0 leaves the encoder default.
func QualityArgs(codec string, quality int) []string {
	if quality <= 0 {
		return nil
	}
	switch codec {
	case "h264_videotoolbox":
		// no -q:v on every build; use bitrate, 75 -> 7.5 Mbit/s
		return []string{"-b:v", fmt.Sprintf("%dk", quality*100)}
	case "h264_nvenc":
		return []string{"-cq", strconv.Itoa(quality)}
	case "libx264":
		return []string{"-crf", strconv.Itoa(quality), "-preset", "medium"}
	default:
		return []string{"-crf", strconv.Itoa(quality)}
	}
}
