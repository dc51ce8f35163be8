package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wmu-sunseeker/gobps/pkg/can"
	"github.com/wmu-sunseeker/gobps/pkg/output"
	"github.com/wmu-sunseeker/gobps/pkg/plant"
	"github.com/wmu-sunseeker/gobps/pkg/protocol"
)

func TestMonitor(t *testing.T) {
	pack := NewPack()
	pack.SetCell(11, NominalCellCode+10)
	m := pack.Monitor(1)
	bank := plant.CellBank{Count: 12}
	assert.Nil(t, m.ReadVoltages(&bank))
	assert.Equal(t, NominalCellCode+10, bank.Voltages[0])

	pack.SetBankStatus(1, 0, 0x01)
	flags, _ := m.ReadFlags()
	assert.EqualValues(t, 1, flags)

	pack.FailVoltageRead(1, true)
	assert.ErrorIs(t, m.ReadVoltages(&bank), ErrInjected)

	pack.FailInit(1, 1)
	assert.NotNil(t, m.Init())
	assert.Nil(t, m.Init())
	assert.Equal(t, 2, pack.InitCount(1))
}

func TestAdcReady(t *testing.T) {
	pack := NewPack()
	ready := []int{}
	adc := pack.ADC(func(device int) { ready = append(ready, device) })
	assert.Nil(t, adc.StartConversion(6))
	assert.NotNil(t, adc.StartConversion(7))
	assert.Equal(t, []int{6}, ready)
	code, _ := adc.ReadConvert(0, 1)
	assert.Equal(t, NominalThermistorCode, code)
}

func TestCurrentSetting(t *testing.T) {
	pack := NewPack()
	pack.SetCurrent(-20000, 1000000, plant.AdcFullScale)
	state := plant.NewState()
	adc := pack.ADC(nil)
	for ch := range plant.ChannelsPerDevice {
		state.Samples[48+ch], _ = adc.ReadConvert(6, ch)
	}
	assert.InDelta(t, -20000, state.UpdateCurrent(1000000, plant.AdcFullScale), 1)
}

func TestRailsFollowOutputs(t *testing.T) {
	pack := NewPack()
	mem := output.NewMemory()
	pack.FollowOutputs(mem)
	b, tap, c := pack.sample(53), pack.sample(54), pack.sample(55)
	assert.Zero(t, b+tap+c)
	mem.Set(output.BatteryRelay, true)
	mem.Set(output.PrechargeContactor, true)
	assert.Equal(t, NominalRailCode, pack.sample(54))
	assert.Zero(t, pack.sample(55))
	mem.Set(output.ExternalPrecharge, true)
	assert.Equal(t, NominalRailCode, pack.sample(55))
}

type captureBus struct {
	frames []can.Frame
}

func (b *captureBus) Connect(...any) error              { return nil }
func (b *captureBus) Disconnect() error                 { return nil }
func (b *captureBus) Subscribe(can.FrameListener) error { return nil }
func (b *captureBus) Send(frame can.Frame) error {
	b.frames = append(b.frames, frame)
	return nil
}

func TestVehicleFrames(t *testing.T) {
	bus := &captureBus{}
	v := NewVehicle(bus, protocol.DefaultAddresses(), protocol.DefaultSwitchBits())
	v.SetIgnition(true)
	v.SetCharger(true)
	assert.Nil(t, v.SendOnce())
	assert.Len(t, bus.frames, 2)
	words := protocol.Words(bus.frames[0])
	assert.EqualValues(t, 0x0040, words[0])
	sig, _ := protocol.ReadSignature(bus.frames[1])
	assert.Equal(t, protocol.SignatureAC, sig)

	v.RequestPrecharge()
	v.SendOnce()
	words = protocol.Words(bus.frames[2])
	assert.EqualValues(t, 0, words[0])
	assert.EqualValues(t, 0xFF00, words[1])
	assert.EqualValues(t, 4, v.Sent())
}
