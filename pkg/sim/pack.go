// Package sim simulates the battery pack hardware and the vehicle for
// bench runs without a controller board.
package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/wmu-sunseeker/gobps/pkg/output"
	"github.com/wmu-sunseeker/gobps/pkg/plant"
	"github.com/wmu-sunseeker/gobps/pkg/sensor"
)

const (
	NominalCellCode       uint16 = plant.CellCodeOffset + 2400 // 3.6 V
	NominalThermistorCode int32  = 0x600000
	NominalReferenceCode  int32  = 0x800000
	NominalRailCode       int32  = 0xA00000
)

var (
	ErrInjected = errors.New("injected failure")
)

// Pack is a simulated battery pack with three monitor chips and seven
// ADC devices. All readings are nominal until changed.
type Pack struct {
	mu          sync.Mutex
	cells       [plant.NumCells]uint16
	bankStatus  [plant.NumBanks]uint8
	bankFlags   [plant.NumBanks]uint8
	voltageFail [plant.NumBanks]bool
	initFail    [plant.NumBanks]int
	initCount   [plant.NumBanks]int
	samples     [plant.NumSamples]int32
	outputs     *output.Memory
	calibrated  int
}

func NewPack() *Pack {
	p := &Pack{}
	for i := range p.cells {
		p.cells[i] = NominalCellCode
	}
	for i, kind := range plant.Wiring {
		switch kind {
		case plant.ChannelThermistor:
			p.samples[i] = NominalThermistorCode
		case plant.ChannelReference, plant.ChannelShuntReference, plant.ChannelShunt:
			p.samples[i] = NominalReferenceCode
		case plant.ChannelPrechargeBattery, plant.ChannelPrechargeTap, plant.ChannelPrechargeContactor:
			p.samples[i] = NominalRailCode
		}
	}
	return p
}

// Derive the precharge rails from the relay outputs instead of fixed codes
func (p *Pack) FollowOutputs(outputs *output.Memory) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outputs = outputs
}

func (p *Pack) SetCell(index int, code uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cells[index] = code
}

// Status and flag bytes reported by a monitor chip
func (p *Pack) SetBankStatus(bank int, status uint8, flags uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bankStatus[bank] = status
	p.bankFlags[bank] = flags
}

func (p *Pack) FailVoltageRead(bank int, fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voltageFail[bank] = fail
}

// Make the next n initializations of a bank fail
func (p *Pack) FailInit(bank int, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initFail[bank] = n
}

func (p *Pack) InitCount(bank int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initCount[bank]
}

func (p *Pack) SelfCalibrations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calibrated
}

func (p *Pack) SetSample(index int, code int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.samples[index] = code
}

// Set the shunt so that the controller computes the given current in mA
func (p *Pack) SetCurrent(milliamps float64, scale float64, fullScale float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delta := int32(milliamps * fullScale / scale)
	p.samples[plant.ShuntChannel] = p.samples[plant.ShuntReferenceChannel] + delta
}

func (p *Pack) SetPrechargeRails(battery, tap, contactor int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.samples[plant.PrechargeBatteryChannel] = battery
	p.samples[plant.PrechargeTapChannel] = tap
	p.samples[plant.PrechargeContactorChannel] = contactor
}

func (p *Pack) sample(index int) int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outputs == nil {
		return p.samples[index]
	}
	var battery, tap, contactor int32
	if p.outputs.Get(output.BatteryRelay) {
		battery = NominalRailCode
	}
	if p.outputs.Get(output.PrechargeContactor) || p.outputs.Get(output.MotorContactor) {
		tap = battery
	}
	if p.outputs.Get(output.ExternalPrecharge) || p.outputs.Get(output.MotorContactor) {
		contactor = tap
	}
	switch index {
	case plant.PrechargeBatteryChannel:
		return battery
	case plant.PrechargeTapChannel:
		return tap
	case plant.PrechargeContactorChannel:
		return contactor
	}
	return p.samples[index]
}

// Monitor of bank 0..2
func (p *Pack) Monitor(bank int) sensor.CellMonitor {
	return &monitor{pack: p, bank: bank}
}

type monitor struct {
	pack *Pack
	bank int
}

func (m *monitor) Init() error {
	m.pack.mu.Lock()
	defer m.pack.mu.Unlock()
	m.pack.initCount[m.bank]++
	if m.pack.initFail[m.bank] > 0 {
		m.pack.initFail[m.bank]--
		return fmt.Errorf("bank %v : %w", m.bank+1, ErrInjected)
	}
	return nil
}

func (m *monitor) ReadStatus() (uint8, error) {
	m.pack.mu.Lock()
	defer m.pack.mu.Unlock()
	return m.pack.bankStatus[m.bank], nil
}

func (m *monitor) ReadFlags() (uint8, error) {
	m.pack.mu.Lock()
	defer m.pack.mu.Unlock()
	return m.pack.bankFlags[m.bank], nil
}

func (m *monitor) StartVoltageConversion() error {
	return nil
}

func (m *monitor) ReadVoltages(bank *plant.CellBank) error {
	m.pack.mu.Lock()
	defer m.pack.mu.Unlock()
	if m.pack.voltageFail[m.bank] {
		return fmt.Errorf("bank %v voltages : %w", m.bank+1, ErrInjected)
	}
	offset := plant.BankCellOffset[m.bank]
	for i := range bank.Count {
		bank.Voltages[i] = m.pack.cells[offset+i]
	}
	return nil
}

// ADC of the pack. Conversions complete immediately, ready is called
// from within StartConversion.
func (p *Pack) ADC(ready func(device int)) sensor.ADC {
	return &adc{pack: p, ready: ready}
}

type adc struct {
	pack  *Pack
	ready func(device int)
}

func (a *adc) SelfCalibrate() error {
	a.pack.mu.Lock()
	defer a.pack.mu.Unlock()
	a.pack.calibrated++
	return nil
}

func (a *adc) StartConversion(device int) error {
	if device < 0 || device >= plant.NumDevices {
		return fmt.Errorf("no ADC device %v", device)
	}
	if a.ready != nil {
		a.ready(device)
	}
	return nil
}

func (a *adc) Idle(device int) error {
	return nil
}

func (a *adc) ReadConvert(device int, channel int) (int32, error) {
	return a.pack.sample(sensor.SampleOffset(device) + channel), nil
}
