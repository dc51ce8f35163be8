package relay

import (
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/wmu-sunseeker/gobps/pkg/output"
)

const DefaultSettleTime = 50 * time.Millisecond

// Sleeper waits for a relay to settle
type Sleeper interface {
	Sleep(d time.Duration)
}

type SleepFunc func(d time.Duration)

func (f SleepFunc) Sleep(d time.Duration) { f(d) }

var RealSleeper Sleeper = SleepFunc(time.Sleep)

// Sequencer issues relay commands in the orders that avoid contactor
// arcing. Every step is attempted even if a previous one failed.
type Sequencer struct {
	mu      sync.Mutex
	driver  output.Driver
	settle  time.Duration
	sleeper Sleeper
	closed  [output.ExternalPrecharge + 1]bool
	logger  *log.Entry
}

func NewSequencer(driver output.Driver, settle time.Duration, sleeper Sleeper) *Sequencer {
	if sleeper == nil {
		sleeper = RealSleeper
	}
	return &Sequencer{
		driver:  driver,
		settle:  settle,
		sleeper: sleeper,
		logger:  log.WithField("component", "relay"),
	}
}

type step struct {
	name   output.Name
	close  bool
	settle bool // wait before the next step
}

func (s *Sequencer) run(steps []step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, st := range steps {
		if err := s.driver.Set(st.name, st.close); err != nil {
			s.logger.Errorf("[RELAY] %v close=%v failed : %v", st.name, st.close, err)
			errs = append(errs, err)
		} else {
			s.closed[st.name] = st.close
		}
		if st.settle {
			s.sleeper.Sleep(s.settle)
		}
	}
	return errors.Join(errs...)
}

// Open every relay : motor side first, then battery, then array
func (s *Sequencer) OpenAll() error {
	s.logger.Debug("[RELAY] open all")
	return s.run([]step{
		{name: output.PrechargeContactor},
		{name: output.ExternalPrecharge},
		{name: output.MotorContactor, settle: true},
		{name: output.BatteryRelay, settle: true},
		{name: output.ArrayRelay},
	})
}

// Open the motor controller paths before charging
func (s *Sequencer) OpenMotorPaths() error {
	return s.run([]step{
		{name: output.PrechargeContactor},
		{name: output.MotorContactor},
		{name: output.ExternalPrecharge},
	})
}

func (s *Sequencer) CloseBattery() error {
	return s.run([]step{{name: output.BatteryRelay, close: true}})
}

func (s *Sequencer) CloseArray() error {
	return s.run([]step{{name: output.ArrayRelay, close: true}})
}

// Energize the motor controller through the precharge resistor
func (s *Sequencer) StartPrecharge() error {
	return s.run([]step{
		{name: output.PrechargeContactor, close: true},
		{name: output.ExternalPrecharge, close: true},
	})
}

// Close the main contactor, then drop the precharge path
func (s *Sequencer) PrechargeHandoff() error {
	return s.run([]step{
		{name: output.MotorContactor, close: true, settle: true},
		{name: output.ExternalPrecharge},
		{name: output.PrechargeContactor},
	})
}

// Last successfully commanded state of a relay
func (s *Sequencer) Closed(name output.Name) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !name.IsRelay() {
		return false
	}
	return s.closed[name]
}

// Names of the relays currently commanded closed
func (s *Sequencer) ClosedRelays() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := []string{}
	for i, closed := range s.closed {
		if closed {
			names = append(names, output.Name(i).String())
		}
	}
	return names
}
