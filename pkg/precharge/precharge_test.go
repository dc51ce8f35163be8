package precharge

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

var settled = Signals{Battery: 0xA00000, Tap: 0x9F0000, Contactor: 0x9E0000}

func TestNominalSequence(t *testing.T) {
	s := NewSequencer(DefaultThresholds())
	assert.False(t, s.Step(settled))
	assert.True(t, s.CapacitorCharged())
	assert.False(t, s.ContactorClosed())
	assert.True(t, s.Step(settled))
	assert.True(t, s.ContactorClosed())
	// Idempotent once complete
	assert.True(t, s.Step(Signals{}))
}

func TestBatteryBelowFloor(t *testing.T) {
	s := NewSequencer(DefaultThresholds())
	assert.False(t, s.Step(Signals{Battery: 0x8FFFFF, Tap: 0x8FFFFF, Contactor: 0x8FFFFF}))
	assert.False(t, s.CapacitorCharged())
	// Floor itself is accepted
	assert.False(t, s.Step(Signals{Battery: DefaultFloor, Tap: DefaultFloor, Contactor: 0}))
	assert.True(t, s.CapacitorCharged())
}

func TestTapNotSettled(t *testing.T) {
	s := NewSequencer(DefaultThresholds())
	s.Step(Signals{Battery: 0xA00000, Tap: 0xA00000 - DefaultTolerance})
	assert.False(t, s.CapacitorCharged())
	s.Step(Signals{Battery: 0xA00000, Tap: 0x8C0000})
	assert.False(t, s.CapacitorCharged())
}

func TestContactorSideNotSettled(t *testing.T) {
	s := NewSequencer(DefaultThresholds())
	s.Step(settled)
	assert.False(t, s.Step(Signals{Battery: 0xA00000, Tap: 0xA00000, Contactor: 0x100000}))
	assert.False(t, s.ContactorClosed())
	assert.True(t, s.CapacitorCharged())
}

func TestOverrideAndReset(t *testing.T) {
	s := NewSequencer(DefaultThresholds())
	s.Override()
	assert.True(t, s.Step(Signals{}))
	s.Reset()
	assert.False(t, s.CapacitorCharged())
	assert.False(t, s.ContactorClosed())
}

func TestMonotonicFlags(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := NewSequencer(DefaultThresholds())
	charged := false
	for range 2000 {
		sig := Signals{
			Battery:   0x880000 + rng.Int31n(0x200000),
			Tap:       0x880000 + rng.Int31n(0x200000),
			Contactor: 0x880000 + rng.Int31n(0x200000),
		}
		s.Step(sig)
		if charged {
			assert.True(t, s.CapacitorCharged())
		}
		charged = s.CapacitorCharged()
		if s.ContactorClosed() {
			assert.True(t, s.CapacitorCharged())
		}
	}
}
