package librarymodule

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/load"
)

// loadThrottle paces directory walks when the host is under pressure so a
// scheduled rescan does not starve playback or conversions.
type loadThrottle struct {
	cpus      float64
	lastCheck time.Time
	paused    bool
}

func newLoadThrottle() *loadThrottle {
	return &loadThrottle{cpus: float64(runtime.NumCPU())}
}

// pause sleeps briefly when the 1-minute load average exceeds the CPU count.
// Load is sampled at most once per second. Nil receivers (throttling
// disabled) are a no-op.
func (lt *loadThrottle) pause() {
	if lt == nil {
		return
	}
	if time.Since(lt.lastCheck) < time.Second {
		if lt.paused {
			time.Sleep(50 * time.Millisecond)
		}
		return
	}
	lt.lastCheck = time.Now()

	avg, err := load.Avg()
	if err != nil {
		lt.paused = false
		return
	}
	lt.paused = avg.Load1 > lt.cpus
	if lt.paused {
		time.Sleep(100 * time.Millisecond)
	}
}
