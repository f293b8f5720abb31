package system

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Stats is a point-in-time resource snapshot taken around an export run.
type Stats struct {
	CPUPercent   float64
	MemUsedPct   float64
	ProcessRSSMB float64
}

// Snapshot samples host CPU over interval and current memory usage.
// Missing readings stay zero.
func Snapshot(interval time.Duration) Stats {
	var s Stats
	if pct, err := cpu.Percent(interval, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemUsedPct = vm.UsedPercent
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfo(); err == nil {
			s.ProcessRSSMB = float64(mi.RSS) / (1024 * 1024)
		}
	}
	return s
}

// Report is the per-run performance summary.
type Report struct {
	Build       string
	Frames      int
	Sampling    time.Duration
	Encoding    time.Duration
	Total       time.Duration
	Stats       Stats
	ProjectPath string
}

func (r Report) EffectiveFPS() float64 {
	if r.Total <= 0 {
		return 0
	}
	return float64(r.Frames) / r.Total.Seconds()
}

func (r Report) String() string {
	return fmt.Sprintf(
		"--- [PERFORMANCE REPORT] ---\n"+
			"Build: %s\n"+
			"Frames: %d\n"+
			"Total Time: %.2fs\n"+
			"Sampling: %.2fs\n"+
			"Encoding: %.2fs\n"+
			"Effective FPS: %.2f\n"+
			"CPU: %.1f%% | Mem: %.1f%% | RSS: %.1f MB\n"+
			"----------------------------\n",
		r.Build, r.Frames, r.Total.Seconds(), r.Sampling.Seconds(), r.Encoding.Seconds(),
		r.EffectiveFPS(), r.Stats.CPUPercent, r.Stats.MemUsedPct, r.Stats.ProcessRSSMB,
	)
}

// AppendBenchmark appends a one-line summary to path.
func AppendBenchmark(path string, r Report) error {
	line := fmt.Sprintf("[%s] Build: %s | Project: %s | Frames: %d | Total: %.2fs | Sampling: %.2fs | Encode: %.2fs | FPS: %.2f\n",
		time.Now().Format("2006-01-02 15:04:05"),
		r.Build,
		filepath.Base(r.ProjectPath),
		r.Frames,
		r.Total.Seconds(),
		r.Sampling.Seconds(),
		r.Encoding.Seconds(),
		r.EffectiveFPS(),
	)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line)
	return err
}
