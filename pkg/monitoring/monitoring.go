package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/mackerelio/go-osstat/cpu"
	"github.com/mackerelio/go-osstat/memory"
	"go.uber.org/zap"

	"github.com/campuslink/network/pkg/errors"
	"github.com/campuslink/network/pkg/logging"
	"github.com/campuslink/network/pkg/realtime"
)

// Snapshot is one point-in-time sample of process and subscription health.
type Snapshot struct {
	SampledAt      time.Time `json:"sampled_at"`
	CPUPercent     float64   `json:"cpu_percent"`
	MemoryPercent  float64   `json:"memory_percent"`
	MemoryUsed     uint64    `json:"memory_used"`
	Channels       int       `json:"channels"`
	FailedChannels int       `json:"failed_channels"`
}

// Sampler periodically samples system usage and channel health. Changes in
// failed-channel count are logged; steady state stays quiet.
type Sampler struct {
	states   func() []realtime.ChannelStatus
	logger   *logging.ColoredLogger
	interval time.Duration

	mu   sync.Mutex
	last Snapshot
}

// NewSampler creates a sampler over the given channel-state source. Interval
// defaults to 60 seconds.
func NewSampler(states func() []realtime.ChannelStatus, logger *logging.ColoredLogger, interval time.Duration) *Sampler {
	if logger == nil {
		logger, _ = logging.NewDefaultLogger(logging.ComponentMonitor)
	}
	if interval == 0 {
		interval = 60 * time.Second
	}
	return &Sampler{states: states, logger: logger, interval: interval}
}

// Run samples until the context is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	lastFailed := 0
	first := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.Sample()
			if first || snap.FailedChannels != lastFailed {
				if snap.FailedChannels > 0 {
					s.logger.ComponentWarn(logging.ComponentMonitor, "channels in failed state",
						zap.Int("failed", snap.FailedChannels),
						zap.Int("channels", snap.Channels))
				} else if !first {
					s.logger.ComponentInfo(logging.ComponentMonitor, "all channels recovered",
						zap.Int("channels", snap.Channels))
				}
				lastFailed = snap.FailedChannels
				first = false
			}
			s.logger.ComponentDebug(logging.ComponentMonitor, "system usage",
				zap.Float64("cpu_percent", snap.CPUPercent),
				zap.Float64("memory_percent", snap.MemoryPercent))
		}
	}
}

// Sample takes one snapshot and retains it.
func (s *Sampler) Sample() Snapshot {
	snap := Snapshot{SampledAt: time.Now()}

	if mem, err := memory.Get(); err == nil && mem.Total > 0 {
		snap.MemoryUsed = mem.Used
		snap.MemoryPercent = float64(mem.Used) / float64(mem.Total) * 100
	}
	if pct, err := CPUUsagePercent(500 * time.Millisecond); err == nil {
		snap.CPUPercent = pct
	}

	for _, st := range s.states() {
		snap.Channels++
		if st.State == realtime.StateFailed {
			snap.FailedChannels++
		}
	}

	s.mu.Lock()
	s.last = snap
	s.mu.Unlock()
	return snap
}

// Latest returns the most recent snapshot, which may be zero before the
// first sample.
func (s *Sampler) Latest() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// CPUUsagePercent measures CPU usage over interval.
func CPUUsagePercent(interval time.Duration) (float64, error) {
	before, err := cpu.Get()
	if err != nil {
		return 0, err
	}
	time.Sleep(interval)
	after, err := cpu.Get()
	if err != nil {
		return 0, err
	}
	idle := float64(after.Idle - before.Idle)
	total := float64(after.Total - before.Total)
	if total == 0 {
		return 0, errors.New("no CPU time elapsed between samples")
	}
	return (1.0 - idle/total) * 100.0, nil
}
