package tick

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	bps "github.com/wmu-sunseeker/gobps"
	"github.com/wmu-sunseeker/gobps/pkg/event"
)

const (
	DefaultPeriod           = 10 * time.Millisecond // 100 Hz base rate
	DefaultStatusDivider    = 8                     // 12.5 Hz status tick
	DefaultTelemetryDivider = 10
)

// Source divides a fixed base rate into the status tick and the
// telemetry tick. The telemetry divider only counts while telemetry
// is enabled.
type Source struct {
	flags            *event.Flags
	period           time.Duration
	statusDivider    uint32
	telemetryDivider uint32
	telemetryEnabled atomic.Bool

	mu             sync.Mutex
	statusCount    uint32
	telemetryCount uint32
	baseTicks      uint64
}

func NewSource(flags *event.Flags, period time.Duration, statusDivider uint32, telemetryDivider uint32) (*Source, error) {
	if flags == nil || period <= 0 || statusDivider == 0 || telemetryDivider == 0 {
		return nil, fmt.Errorf("%w : tick source period %v, dividers %v/%v", bps.ErrIllegalArgument, period, statusDivider, telemetryDivider)
	}
	return &Source{
		flags:            flags,
		period:           period,
		statusDivider:    statusDivider,
		telemetryDivider: telemetryDivider,
	}, nil
}

// Gate the telemetry divider. Disabling resets its count.
func (s *Source) EnableTelemetry(enabled bool) {
	if !s.telemetryEnabled.Swap(enabled) || enabled {
		return
	}
	s.mu.Lock()
	s.telemetryCount = 0
	s.mu.Unlock()
}

func (s *Source) TelemetryEnabled() bool {
	return s.telemetryEnabled.Load()
}

// Advance by one base period, raising the derived ticks when due
func (s *Source) Tick() {
	s.mu.Lock()
	s.baseTicks++
	s.statusCount++
	status := s.statusCount >= s.statusDivider
	if status {
		s.statusCount = 0
	}
	telemetry := false
	if s.telemetryEnabled.Load() {
		s.telemetryCount++
		if s.telemetryCount >= s.telemetryDivider {
			s.telemetryCount = 0
			telemetry = true
		}
	}
	s.mu.Unlock()

	if status {
		s.flags.Set(event.StatusTick)
	}
	if telemetry {
		s.flags.Set(event.TelemetryTick)
	}
}

// Base periods elapsed
func (s *Source) BaseTicks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseTicks
}

// Run the base timer until the context is cancelled
func (s *Source) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	log.Infof("[TICK] started | base %v, status /%v, telemetry /%v", s.period, s.statusDivider, s.telemetryDivider)
	for {
		select {
		case <-ctx.Done():
			log.Infof("[TICK] stopped after %v base ticks", s.BaseTicks())
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}
