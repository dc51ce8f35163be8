package precharge

import (
	log "github.com/sirupsen/logrus"
)

const (
	DefaultFloor      int32 = 0x900000 // minimum valid charged reading
	DefaultTolerance  int32 = 0x040000 // settled difference between adjacent taps
	DefaultNoiseFloor int32 = 0x8C0000
)

// Thresholds of the voltage comparisons, raw 24 bit codes
type Thresholds struct {
	Floor      int32
	Tolerance  int32
	NoiseFloor int32
}

func DefaultThresholds() Thresholds {
	return Thresholds{Floor: DefaultFloor, Tolerance: DefaultTolerance, NoiseFloor: DefaultNoiseFloor}
}

// Signals sampled at one evaluation
type Signals struct {
	Battery   int32 // battery side
	Tap       int32 // precharge resistor tap
	Contactor int32 // after the motor contactor
}

// Sequencer decides when the motor controller capacitors are charged and
// the motor contactor side has followed. Both flags only progress from
// false to true until Reset.
type Sequencer struct {
	thresholds       Thresholds
	capacitorCharged bool
	contactorClosed  bool
	logger           *log.Entry
}

func NewSequencer(thresholds Thresholds) *Sequencer {
	return &Sequencer{
		thresholds: thresholds,
		logger:     log.WithField("component", "precharge"),
	}
}

// Clear both flags, on mode entry and on kill
func (s *Sequencer) Reset() {
	s.capacitorCharged = false
	s.contactorClosed = false
}

// Force the sequence complete, for bench testing without precharge wiring
func (s *Sequencer) Override() {
	s.capacitorCharged = true
	s.contactorClosed = true
}

func (s *Sequencer) CapacitorCharged() bool {
	return s.capacitorCharged
}

func (s *Sequencer) ContactorClosed() bool {
	return s.contactorClosed
}

// Evaluate one dwell period. At most one stage advances per call.
// Returns true when the contactor is closed and the relay handoff is due.
func (s *Sequencer) Step(sig Signals) bool {
	if s.capacitorCharged && s.contactorClosed {
		return true
	}
	th := s.thresholds
	if !s.capacitorCharged {
		if sig.Battery >= th.Floor && abs(sig.Battery-sig.Tap) < th.Tolerance && sig.Tap > th.NoiseFloor {
			s.capacitorCharged = true
			s.logger.Infof("[PRECHARGE] capacitors charged | battery x%06X, tap x%06X", sig.Battery, sig.Tap)
		}
		return false
	}
	if sig.Tap >= th.Floor && abs(sig.Tap-sig.Contactor) < th.Tolerance && sig.Contactor > th.NoiseFloor {
		s.contactorClosed = true
		s.logger.Infof("[PRECHARGE] contactor side settled | tap x%06X, contactor x%06X", sig.Tap, sig.Contactor)
		return true
	}
	return false
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
