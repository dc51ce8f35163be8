package event

import (
	"math/bits"
	"sync/atomic"
)

// Flag identifies one asynchronous event. Producers (bus goroutine,
// tick source, ADC ready callbacks, console reader, gateway) set flags,
// the main loop consumes them with [Flags.TestAndClear]. A flag set twice
// before it is consumed is observed once.
type Flag uint32

const (
	StatusTick    Flag = 1 << iota // mode state machine tick
	TelemetryTick                  // periodic CAN telemetry
	FramePending                   // CAN frame waiting in the bus manager queue
	Adc1Ready                      // temperature bus 1, device 1
	Adc2Ready                      // temperature bus 1, device 2
	Adc3Ready                      // temperature bus 1, device 3
	Adc4Ready                      // temperature bus 2, device 1
	Adc5Ready                      // temperature bus 2, device 2
	Adc6Ready                      // temperature bus 2, device 3
	Adc7Ready                      // misc bus
	OperatorReset                  // button 2
	ManualCharge                   // button 1
	ReportTemps                    // console "battery temps"
	ReportVolts                    // console "battery volts"
	ReportCurrent                  // console "battery current"
	ReportState                    // console "battery state"
)

const (
	AdcReadyMask = Adc1Ready | Adc2Ready | Adc3Ready | Adc4Ready | Adc5Ready | Adc6Ready | Adc7Ready
	ReportMask   = ReportTemps | ReportVolts | ReportCurrent | ReportState
)

var flagNames = map[Flag]string{
	StatusTick:    "STATUS-TICK",
	TelemetryTick: "TELEMETRY-TICK",
	FramePending:  "FRAME-PENDING",
	Adc1Ready:     "ADC1-READY",
	Adc2Ready:     "ADC2-READY",
	Adc3Ready:     "ADC3-READY",
	Adc4Ready:     "ADC4-READY",
	Adc5Ready:     "ADC5-READY",
	Adc6Ready:     "ADC6-READY",
	Adc7Ready:     "ADC7-READY",
	OperatorReset: "OPERATOR-RESET",
	ManualCharge:  "MANUAL-CHARGE",
	ReportTemps:   "REPORT-TEMPS",
	ReportVolts:   "REPORT-VOLTS",
	ReportCurrent: "REPORT-CURRENT",
	ReportState:   "REPORT-STATE",
}

func (f Flag) String() string {
	if name, ok := flagNames[f]; ok {
		return name
	}
	return "MULTIPLE"
}

// Ready flag of ADC device index 0..6
func AdcReady(device int) Flag {
	return Adc1Ready << uint(device)
}

// Flags is a lock free set of event flags with a wake channel.
// The zero value is not usable, use [NewFlags].
type Flags struct {
	bits atomic.Uint32
	wake chan struct{}
}

func NewFlags() *Flags {
	return &Flags{wake: make(chan struct{}, 1)}
}

// Set one or more flags and wake the consumer. Never blocks.
func (f *Flags) Set(flag Flag) {
	f.bits.Or(uint32(flag))
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Clear flags without observing them
func (f *Flags) Clear(flag Flag) {
	f.bits.And(^uint32(flag))
}

// Atomically read and clear the given flags, returns true if any was set
func (f *Flags) TestAndClear(flag Flag) bool {
	return Flag(f.bits.And(^uint32(flag)))&flag != 0
}

// Atomically take all the given flags that are currently set
func (f *Flags) Take(mask Flag) Flag {
	return Flag(f.bits.And(^uint32(mask))) & mask
}

// Peek without consuming
func (f *Flags) IsSet(flag Flag) bool {
	return Flag(f.bits.Load())&flag != 0
}

// Current raw value, for diagnostics
func (f *Flags) Load() Flag {
	return Flag(f.bits.Load())
}

// Number of flags currently pending
func (f *Flags) Count() int {
	return bits.OnesCount32(f.bits.Load())
}

// Channel receiving a value whenever a flag is set
func (f *Flags) Wake() <-chan struct{} {
	return f.wake
}
