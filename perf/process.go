package perf

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

type ProcessStats struct {
	CPUPercent    float64
	RSS           uint64
	Threads       int32
	Goroutines    int
	SysMemPercent float64
}

// SampleProcess reads the resource usage of the current process. CPUPercent covers the lifetime of the
// process.
func SampleProcess(ctx context.Context) (ProcessStats, error) {
	st := ProcessStats{Goroutines: runtime.NumGoroutine()}
	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return st, err
	}
	st.CPUPercent, err = p.CPUPercentWithContext(ctx)
	if err != nil {
		return st, err
	}
	mi, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return st, err
	}
	st.RSS = mi.RSS
	st.Threads, err = p.NumThreadsWithContext(ctx)
	if err != nil {
		return st, err
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return st, err
	}
	st.SysMemPercent = vm.UsedPercent
	return st, nil
}

// ReportProcess logs a process sample every interval until ctx is done.
func ReportProcess(ctx context.Context, log *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st, err := SampleProcess(ctx)
			if err != nil {
				log.Debug("failed to sample process", "error", err)
				continue
			}
			log.Info("process",
				"cpu", st.CPUPercent,
				"rss_mb", st.RSS/(1<<20),
				"threads", st.Threads,
				"goroutines", st.Goroutines,
				"sys_mem", st.SysMemPercent)
		}
	}
}
