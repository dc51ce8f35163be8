package bps

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wmu-sunseeker/gobps/pkg/can"
)

type fakeBus struct {
	listener    can.FrameListener
	sent        []can.Frame
	sendErr     error
	connects    int
	disconnects int
}

func (b *fakeBus) Connect(...any) error {
	b.connects++
	return nil
}

func (b *fakeBus) Disconnect() error {
	b.disconnects++
	return nil
}

func (b *fakeBus) Send(frame can.Frame) error {
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, frame)
	return nil
}

func (b *fakeBus) Subscribe(listener can.FrameListener) error {
	b.listener = listener
	return nil
}

func TestBusManagerQueue(t *testing.T) {
	bus := &fakeBus{}
	bm := NewBusManager(bus, 2)
	require.Nil(t, bm.Connect())
	notified := 0
	bm.SetNotify(func() { notified++ })

	for id := uint32(0x500); id < 0x503; id++ {
		bus.listener.Handle(can.NewFrame(id, 0, 8))
	}
	assert.Equal(t, 3, notified)
	assert.Equal(t, 2, bm.Pending())
	assert.EqualValues(t, 1, bm.RxOverflow())

	frame, ok := bm.Receive()
	assert.True(t, ok)
	assert.EqualValues(t, 0x500, frame.ID)
	assert.Equal(t, 1, bm.Flush())
	_, ok = bm.Receive()
	assert.False(t, ok)
}

func TestBusManagerSendAndReinit(t *testing.T) {
	bus := &fakeBus{}
	bm := NewBusManager(bus, 0)
	require.Nil(t, bm.Connect())

	assert.Nil(t, bm.Send(can.NewFrame(0x601, 0, 8)))
	bus.sendErr = errors.New("no buffer space")
	assert.NotNil(t, bm.Send(can.NewFrame(0x602, 0, 8)))
	assert.EqualValues(t, 1, bm.TxErrors())
	assert.Len(t, bus.sent, 1)

	bus.listener.Handle(can.NewFrame(0x505, 0, 8))
	require.Nil(t, bm.Reinit())
	assert.EqualValues(t, 1, bm.ReinitCount())
	assert.Equal(t, 0, bm.Pending())
	assert.Equal(t, 2, bus.connects)
	assert.Equal(t, 1, bus.disconnects)
}
