package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	bps "github.com/wmu-sunseeker/gobps"
	"github.com/wmu-sunseeker/gobps/pkg/can"
	"github.com/wmu-sunseeker/gobps/pkg/plant"
)

type fakeLink struct {
	sent    []can.Frame
	failing bool
	reinits int
}

func (l *fakeLink) Send(frame can.Frame) error {
	if l.failing {
		return errors.New("bus off")
	}
	l.sent = append(l.sent, frame)
	return nil
}

func (l *fakeLink) Reinit() error {
	l.reinits++
	return nil
}

const serial = 0x00010203

func newEnabledHandler() (*Handler, *fakeLink) {
	link := &fakeLink{}
	h := NewHandler(link, DefaultAddresses(), DefaultSwitchBits(), serial)
	h.SetEnabled(true)
	return h, link
}

func switchFrame(switches uint16, out uint16) can.Frame {
	frame := can.NewFrame(0x505, 0, 8)
	PutWords(&frame, [4]uint16{switches, out, 0, 0})
	return frame
}

var sampleTelemetry = plant.Telemetry{
	MaxCellVoltage:      3.61,
	MaxCellIndex:        34,
	MinCellVoltage:      3.12,
	MinCellIndex:        0,
	MaxTemperature:      31.5,
	MaxTemperatureIndex: 17,
	Current:             -1520.5,
	Valid:               true,
}

func TestSignatureLayout(t *testing.T) {
	frame := can.NewFrame(0x580, 0, 8)
	PutSignature(&frame, SignatureBPS, serial)
	assert.Equal(t, [8]byte{0x03, 0x02, 0x01, 0x00, '1', 'v', 'P', 'B'}, frame.Data)
	sig, sn := ReadSignature(frame)
	assert.Equal(t, "BPv1", sig.String())
	assert.EqualValues(t, serial, sn)
}

func TestFloatSlots(t *testing.T) {
	frame := can.NewFrame(0x581, 0, 8)
	PutFloats(&frame, 12, 3.5)
	// 3.5f = 0x40600000, little endian in bytes 4..7
	assert.Equal(t, []byte{0x00, 0x00, 0x60, 0x40}, frame.Data[4:8])
	f0, f1 := Floats(frame)
	assert.EqualValues(t, 12, f0)
	assert.EqualValues(t, 3.5, f1)
}

func TestIgnitionSetsCarEnable(t *testing.T) {
	h, _ := newEnabledHandler()
	in := h.Process(switchFrame(0x0040, 0x0000), false)
	assert.True(t, in.Handled)
	assert.True(t, in.ClearErrorLed)
	assert.True(t, h.Signals().CarEnable)
	assert.False(t, h.Signals().PrechargeRequest)
	assert.EqualValues(t, 1, h.ReceiveCount())
}

func TestIgnitionOffPattern(t *testing.T) {
	h, _ := newEnabledHandler()
	h.Process(switchFrame(0x0000, 0xFF12), false)
	assert.True(t, h.Signals().PrechargeRequest)
	assert.False(t, h.Signals().CarEnable)
	h.ClearPrechargeRequest()
	assert.False(t, h.Signals().PrechargeRequest)

	// Other patterns leave the request alone
	h.Process(switchFrame(0x0000, 0xF000), false)
	assert.False(t, h.Signals().PrechargeRequest)
}

func TestDcChargeMode(t *testing.T) {
	h, _ := newEnabledHandler()
	h.Process(switchFrame(0x0040, 0x0F00), false)
	assert.True(t, h.Signals().DcCharge)
	// Accessory on clears it
	h.Process(switchFrame(0x0060, 0x0F00), false)
	assert.False(t, h.Signals().DcCharge)
	assert.EqualValues(t, 2, h.ReceiveCount())
	h.ResetReceiveCount()
	assert.EqualValues(t, 0, h.ReceiveCount())
}

func TestShortSwitchFrame(t *testing.T) {
	h, _ := newEnabledHandler()
	frame := can.NewFrame(0x505, 0, 2)
	in := h.Process(frame, false)
	assert.ErrorIs(t, in.Err, bps.ErrRxMsgLength)
	assert.EqualValues(t, 0, h.ReceiveCount())
}

func TestAcCharger(t *testing.T) {
	h, _ := newEnabledHandler()
	frame := can.NewFrame(DefaultAddresses().ChargerID(), 0, 8)
	PutSignature(&frame, SignatureAC, 77)
	h.Process(frame, false)
	assert.True(t, h.Signals().AcCharge)
	assert.EqualValues(t, 77, h.Signals().ChargerSerial)
	PutSignature(&frame, NewSignature("ACv0"), 77)
	h.Process(frame, false)
	assert.False(t, h.Signals().AcCharge)
}

func TestDisabledDiscards(t *testing.T) {
	link := &fakeLink{}
	h := NewHandler(link, DefaultAddresses(), DefaultSwitchBits(), serial)
	in := h.Process(switchFrame(0x0040, 0), false)
	assert.True(t, in.Discarded)
	assert.False(t, h.Signals().CarEnable)
	h.Process(can.NewRemoteRequest(0x580), false)
	assert.Empty(t, link.sent)
}

func TestErrorFrame(t *testing.T) {
	h, link := newEnabledHandler()
	in := h.Process(can.Frame{ID: can.CanErrFlag | can.CanErrorTxBusOff, DLC: 8}, true)
	assert.True(t, in.ToggleErrorLed)
	assert.EqualValues(t, 1, h.ErrorCount())
	assert.Empty(t, link.sent)
}

func TestTelemetryRoundTrip(t *testing.T) {
	h, link := newEnabledHandler()
	assert.Nil(t, h.SendTelemetry(sampleTelemetry))
	assert.Len(t, link.sent, 4)

	decoded := map[uint32][2]float32{}
	for _, frame := range link.sent {
		f0, f1 := Floats(frame)
		decoded[frame.ID] = [2]float32{f0, f1}
		assert.EqualValues(t, 8, frame.DLC)
	}
	assert.Equal(t, [2]float32{34, 3.61}, decoded[0x581])
	assert.Equal(t, [2]float32{0, 3.12}, decoded[0x582])
	assert.Equal(t, [2]float32{17, 31.5}, decoded[0x583])
	assert.Equal(t, [2]float32{sampleTelemetry.ShuntAuxiliary(), -1520.5}, decoded[0x584])
	assert.Equal(t, sampleTelemetry, h.Telemetry())
}

func TestIdentEveryTenthCycle(t *testing.T) {
	h, link := newEnabledHandler()
	for range IdentEvery - 1 {
		h.SendTelemetry(sampleTelemetry)
	}
	assert.Len(t, link.sent, 4*(IdentEvery-1))
	h.SendTelemetry(sampleTelemetry)
	last := link.sent[len(link.sent)-1]
	assert.EqualValues(t, 0x580, last.ID)
	sig, _ := ReadSignature(last)
	assert.Equal(t, SignatureBPS, sig)
}

func TestSendFailureReinitializes(t *testing.T) {
	h, link := newEnabledHandler()
	link.failing = true
	err := h.SendTelemetry(sampleTelemetry)
	assert.ErrorIs(t, err, bps.ErrTxFailed)
	assert.Greater(t, link.reinits, 0)
	assert.Greater(t, h.TxFailures(), uint32(0))
}

func TestRemoteRequests(t *testing.T) {
	h, link := newEnabledHandler()

	// Cold start replies with zeroed telemetry
	h.Process(can.NewRemoteRequest(0x581), false)
	assert.Len(t, link.sent, 1)
	f0, f1 := Floats(link.sent[0])
	assert.Zero(t, f0)
	assert.Zero(t, f1)

	h.SendTelemetry(sampleTelemetry)
	link.sent = nil
	in := h.Process(can.NewRemoteRequest(0x583), false)
	assert.True(t, in.Handled)
	_, f1 = Floats(link.sent[0])
	assert.EqualValues(t, 31.5, f1)

	h.Process(can.NewRemoteRequest(0x587), false)
	sig, _ := ReadSignature(link.sent[1])
	assert.Equal(t, "BPNP", sig.String())
	h.Process(can.NewRemoteRequest(0x587), true)
	sig, _ = ReadSignature(link.sent[2])
	assert.Equal(t, "BPv1", sig.String())

	h.Process(can.NewRemoteRequest(0x580), false)
	sig, sn := ReadSignature(link.sent[3])
	assert.Equal(t, SignatureBPS, sig)
	assert.EqualValues(t, serial, sn)

	in = h.Process(can.NewRemoteRequest(0x123), false)
	assert.False(t, in.Handled)
	assert.Len(t, link.sent, 4)
}

func TestPrechargeDone(t *testing.T) {
	h, link := newEnabledHandler()
	assert.Nil(t, h.SendPrechargeDone())
	assert.EqualValues(t, 0x587, link.sent[0].ID)
	sig, _ := ReadSignature(link.sent[0])
	assert.Equal(t, SignatureBPS, sig)
}

func TestAddressValidation(t *testing.T) {
	assert.Nil(t, DefaultAddresses().Validate())
	addr := DefaultAddresses()
	addr.VMin = addr.VMax
	assert.ErrorIs(t, addr.Validate(), bps.ErrInvalidConfig)
	addr = DefaultAddresses()
	addr.Base = 0x7FF
	assert.NotNil(t, addr.Validate())
}
