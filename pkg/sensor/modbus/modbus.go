// Package modbus reads the cell monitors and ADC devices through a
// Modbus front end board. The board runs the conversions and exposes
// the results as input registers.
package modbus

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	log "github.com/sirupsen/logrus"
	bps "github.com/wmu-sunseeker/gobps"
	outmodbus "github.com/wmu-sunseeker/gobps/pkg/output/modbus"
	"github.com/wmu-sunseeker/gobps/pkg/plant"
	"github.com/wmu-sunseeker/gobps/pkg/sensor"
)

// Register layout of the front end
type RegisterMap struct {
	Status  uint16 // input registers, status then flags of each bank
	Cells   uint16 // input registers, MaxCellsPerBank codes per bank
	Samples uint16 // input registers, two per sample, high word first
	Control uint16 // holding registers, see the offsets below
}

// Offsets in the control block, a write of 1 triggers the action
const (
	ControlBankInit     = 0 // + bank
	ControlBankConvert  = 3 // + bank
	ControlAdcStart     = 6 // + device
	ControlAdcCalibrate = 13
)

func DefaultRegisterMap() RegisterMap {
	return RegisterMap{Status: 0, Cells: 16, Samples: 64, Control: 0}
}

type registerClient interface {
	ReadInputRegisters(address, quantity uint16) (results []byte, err error)
	WriteSingleRegister(address, value uint16) (results []byte, err error)
}

// FrontEnd serializes every request on one Modbus connection
type FrontEnd struct {
	mu     sync.Mutex
	client registerClient
	closer io.Closer
	regs   RegisterMap
	ready  func(device int)
	logger *log.Entry
}

// Connect to the front end. ready is called once a started conversion
// can be read.
func New(cfg outmodbus.Config, regs RegisterMap, ready func(device int)) (*FrontEnd, error) {
	client, closer, err := outmodbus.Dial(cfg)
	if err != nil {
		return nil, fmt.Errorf("modbus sensors: %w", err)
	}
	f := newFrontEnd(client, regs, ready)
	f.closer = closer
	f.logger.Infof("[SENSOR] modbus front end on %v, slave %v", cfg.Endpoint, cfg.SlaveID)
	return f, nil
}

func newFrontEnd(client registerClient, regs RegisterMap, ready func(device int)) *FrontEnd {
	return &FrontEnd{
		client: client,
		regs:   regs,
		ready:  ready,
		logger: log.WithField("component", "sensors"),
	}
}

func (f *FrontEnd) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

func (f *FrontEnd) read(address, quantity uint16) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.client.ReadInputRegisters(address, quantity)
	if err != nil {
		return nil, err
	}
	if len(data) != int(quantity)*2 {
		return nil, fmt.Errorf("read %v registers at %v, got %v bytes", quantity, address, len(data))
	}
	return data, nil
}

func (f *FrontEnd) trigger(offset uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.client.WriteSingleRegister(f.regs.Control+offset, 1)
	return err
}

// Monitor of bank 0..2
func (f *FrontEnd) Monitor(bank int) sensor.CellMonitor {
	return &monitor{f: f, bank: bank}
}

type monitor struct {
	f    *FrontEnd
	bank int
}

func (m *monitor) Init() error {
	if err := m.f.trigger(ControlBankInit + uint16(m.bank)); err != nil {
		return fmt.Errorf("%w : bank %v, %v", bps.ErrMonitorInit, m.bank+1, err)
	}
	return nil
}

func (m *monitor) statusRegister(offset uint16) (uint8, error) {
	data, err := m.f.read(m.f.regs.Status+uint16(m.bank)*2+offset, 1)
	if err != nil {
		return 0, fmt.Errorf("%w : bank %v, %v", bps.ErrMonitorRead, m.bank+1, err)
	}
	return uint8(binary.BigEndian.Uint16(data)), nil
}

func (m *monitor) ReadStatus() (uint8, error) {
	return m.statusRegister(0)
}

func (m *monitor) ReadFlags() (uint8, error) {
	return m.statusRegister(1)
}

func (m *monitor) StartVoltageConversion() error {
	if err := m.f.trigger(ControlBankConvert + uint16(m.bank)); err != nil {
		return fmt.Errorf("%w : bank %v conversion, %v", bps.ErrMonitorRead, m.bank+1, err)
	}
	return nil
}

func (m *monitor) ReadVoltages(bank *plant.CellBank) error {
	address := m.f.regs.Cells + uint16(m.bank*plant.MaxCellsPerBank)
	data, err := m.f.read(address, uint16(bank.Count))
	if err != nil {
		return fmt.Errorf("%w : bank %v voltages, %v", bps.ErrMonitorRead, m.bank+1, err)
	}
	for i := 0; i < bank.Count; i++ {
		bank.Voltages[i] = binary.BigEndian.Uint16(data[i*2:])
	}
	return nil
}

// ADC devices behind the front end
func (f *FrontEnd) ADC() sensor.ADC {
	return (*adc)(f)
}

type adc FrontEnd

func (a *adc) SelfCalibrate() error {
	if err := (*FrontEnd)(a).trigger(ControlAdcCalibrate); err != nil {
		return fmt.Errorf("%w : self calibration, %v", bps.ErrAdcRead, err)
	}
	return nil
}

func (a *adc) StartConversion(device int) error {
	f := (*FrontEnd)(a)
	if err := f.trigger(ControlAdcStart + uint16(device)); err != nil {
		return fmt.Errorf("%w : start device %v, %v", bps.ErrAdcRead, device, err)
	}
	if f.ready != nil {
		f.ready(device)
	}
	return nil
}

func (a *adc) Idle(device int) error {
	return nil
}

// 24 bit code of one channel
func (a *adc) ReadConvert(device int, channel int) (int32, error) {
	f := (*FrontEnd)(a)
	index := sensor.SampleOffset(device) + channel
	data, err := f.read(f.regs.Samples+uint16(index*2), 2)
	if err != nil {
		return 0, fmt.Errorf("%w : device %v channel %v, %v", bps.ErrAdcRead, device, channel, err)
	}
	return int32(binary.BigEndian.Uint32(data) & 0x00FFFFFF), nil
}
