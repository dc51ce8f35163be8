package virtual

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	can "github.com/wmu-sunseeker/gobps/pkg/can"
)

func newVcan(channel string) *Bus {
	canBus, _ := NewVirtualCanBus(channel)
	vcan, _ := canBus.(*Bus)
	return vcan
}

type FrameReceiver struct {
	mu     sync.Mutex
	frames []can.Frame
}

func (frameReceiver *FrameReceiver) Handle(frame can.Frame) {
	frameReceiver.mu.Lock()
	defer frameReceiver.mu.Unlock()
	frameReceiver.frames = append(frameReceiver.frames, frame)
}

func TestReceiveOwn(t *testing.T) {
	vcan1 := newVcan("")
	defer vcan1.Disconnect()
	assert.Nil(t, vcan1.Connect())
	frameReceiver := FrameReceiver{frames: make([]can.Frame, 0)}
	vcan1.Subscribe(&frameReceiver)
	frame := can.Frame{ID: 0x111, Flags: 0, DLC: 8, Data: [8]byte{0, 1, 2, 3, 4, 5, 6, 7}}
	assert.Nil(t, vcan1.Send(frame))
	assert.Equal(t, 0, len(frameReceiver.frames))

	// Activate receive own
	vcan1.SetReceiveOwn(true)
	assert.Nil(t, vcan1.Send(frame))
	assert.Equal(t, 1, len(frameReceiver.frames))
	assert.Equal(t, frame, frameReceiver.frames[0])
}

func TestSendWithoutBroker(t *testing.T) {
	vcan := newVcan("localhost:1")
	err := vcan.Send(can.NewFrame(0x100, 0, 0))
	assert.ErrorIs(t, err, can.ErrNotConnected)
}

func TestSendHookAndInject(t *testing.T) {
	vcan := newVcan("")
	receiver := &FrameReceiver{}
	vcan.Subscribe(receiver)
	failure := errors.New("tx failure")
	vcan.SetSendHook(func(frame can.Frame) error { return failure })
	assert.ErrorIs(t, vcan.Send(can.NewFrame(0x100, 0, 0)), failure)

	vcan.Inject(can.NewRemoteRequest(0x581))
	assert.Equal(t, 1, len(receiver.frames))
	assert.Equal(t, can.StatusRemoteRequest, receiver.frames[0].Status())
}

func TestSerializeRoundTrip(t *testing.T) {
	frame := can.Frame{ID: 0x505, DLC: 8, Data: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}}
	raw, err := serializeFrame(frame)
	assert.Nil(t, err)
	decoded, err := deserializeFrame(raw[4:])
	assert.Nil(t, err)
	assert.Equal(t, frame, *decoded)
}
