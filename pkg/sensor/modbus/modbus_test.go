package modbus

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bps "github.com/wmu-sunseeker/gobps"
	"github.com/wmu-sunseeker/gobps/pkg/plant"
)

// Register file of a fake front end
type fakeBoard struct {
	input   map[uint16]uint16
	writes  []uint16
	failing bool
}

func newFakeBoard() *fakeBoard {
	return &fakeBoard{input: map[uint16]uint16{}}
}

func (b *fakeBoard) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	if b.failing {
		return nil, errors.New("exception 4")
	}
	data := make([]byte, quantity*2)
	for i := uint16(0); i < quantity; i++ {
		binary.BigEndian.PutUint16(data[i*2:], b.input[address+i])
	}
	return data, nil
}

func (b *fakeBoard) WriteSingleRegister(address, value uint16) ([]byte, error) {
	if b.failing {
		return nil, errors.New("exception 4")
	}
	b.writes = append(b.writes, address)
	return nil, nil
}

func TestMonitorReads(t *testing.T) {
	board := newFakeBoard()
	regs := DefaultRegisterMap()
	f := newFrontEnd(board, regs, nil)
	board.input[regs.Status+2] = 0x04 // bank 2 status
	board.input[regs.Status+3] = 0x01 // bank 2 flags
	for i := 0; i < 12; i++ {
		board.input[regs.Cells+12+uint16(i)] = uint16(2900 + i)
	}

	m := f.Monitor(1)
	status, err := m.ReadStatus()
	assert.Nil(t, err)
	assert.EqualValues(t, 0x04, status)
	flags, err := m.ReadFlags()
	assert.Nil(t, err)
	assert.EqualValues(t, 0x01, flags)

	state := plant.NewState()
	require.Nil(t, m.ReadVoltages(&state.Banks[1]))
	assert.EqualValues(t, 2900, state.Banks[1].Voltages[0])
	assert.EqualValues(t, 2911, state.Banks[1].Voltages[11])

	assert.Nil(t, m.Init())
	assert.Nil(t, m.StartVoltageConversion())
	assert.Equal(t, []uint16{regs.Control + ControlBankInit + 1, regs.Control + ControlBankConvert + 1}, board.writes)
}

func TestMonitorFailures(t *testing.T) {
	board := newFakeBoard()
	board.failing = true
	m := newFrontEnd(board, DefaultRegisterMap(), nil).Monitor(0)
	assert.ErrorIs(t, m.Init(), bps.ErrMonitorInit)
	_, err := m.ReadStatus()
	assert.ErrorIs(t, err, bps.ErrMonitorRead)
	state := plant.NewState()
	assert.ErrorIs(t, m.ReadVoltages(&state.Banks[0]), bps.ErrMonitorRead)
}

func TestAdcConversion(t *testing.T) {
	board := newFakeBoard()
	regs := DefaultRegisterMap()
	ready := []int{}
	f := newFrontEnd(board, regs, func(device int) { ready = append(ready, device) })
	// device 6 channel 4 -> sample 52
	board.input[regs.Samples+104] = 0x00A0
	board.input[regs.Samples+105] = 0x1234

	a := f.ADC()
	assert.Nil(t, a.SelfCalibrate())
	assert.Nil(t, a.StartConversion(6))
	assert.Equal(t, []int{6}, ready)
	code, err := a.ReadConvert(6, 4)
	assert.Nil(t, err)
	assert.EqualValues(t, 0xA01234, code)
	assert.Equal(t, []uint16{regs.Control + ControlAdcCalibrate, regs.Control + ControlAdcStart + 6}, board.writes)

	board.failing = true
	assert.ErrorIs(t, a.StartConversion(0), bps.ErrAdcRead)
	assert.Equal(t, []int{6}, ready)
}
