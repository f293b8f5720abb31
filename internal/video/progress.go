package video

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// readProgress parses ffmpeg's -progress key=value blocks from r and
// emits one Progress per block. Each block ends with a progress= line.
func readProgress(r io.Reader, emit func(Progress)) {
	var p Progress
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "frame":
			p.Frame, _ = strconv.Atoi(value)
		case "fps":
			p.FPS, _ = strconv.ParseFloat(value, 64)
		case "out_time_us", "out_time_ms":
			// both are microseconds in every ffmpeg release
			if us, err := strconv.ParseInt(value, 10, 64); err == nil {
				p.OutTime = time.Duration(us) * time.Microsecond
			}
		case "speed":
			p.Speed = value
		case "progress":
			p.Done = value == "end"
			emit(p)
			p = Progress{}
		}
	}
	if sc.Err() != nil {
		drain(r)
	}
}

// readLog emits one stderr event per line of r. If a line overflows the
// scanner the rest of r is drained so the child never blocks on a full pipe.
func readLog(r io.Reader, emit func(LogEvent)) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		emit(LogEvent{Type: "stderr", Message: sc.Text()})
	}
	if err := sc.Err(); err != nil {
		emit(LogEvent{Type: "error", Message: "stderr: " + err.Error()})
	}
	drain(r)
}
