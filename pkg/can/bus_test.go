package can

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameStatus(t *testing.T) {
	assert.Equal(t, StatusOk, NewFrame(0x505, 0, 8).Status())
	assert.Equal(t, StatusRemoteRequest, NewRemoteRequest(0x581).Status())
	assert.Equal(t, StatusError, Frame{ID: CanErrFlag | CanErrorTxBusOff}.Status())
	assert.Equal(t, StatusError, Frame{ID: CanErrFlag | CanRtrFlag}.Status())
	assert.Equal(t, "RTR", StatusRemoteRequest.String())
}

func TestFrameAddress(t *testing.T) {
	assert.EqualValues(t, 0x581, NewRemoteRequest(0x581).Address())
	assert.EqualValues(t, 0x123, Frame{ID: 0x123}.Address())
	assert.EqualValues(t, 0x1ABCDEF0, Frame{ID: CanEffFlag | 0x1ABCDEF0}.Address())
}

type nopBus struct{}

func (nopBus) Connect(...any) error          { return nil }
func (nopBus) Disconnect() error             { return nil }
func (nopBus) Send(Frame) error              { return nil }
func (nopBus) Subscribe(FrameListener) error { return nil }

func TestRegistry(t *testing.T) {
	RegisterInterface("nop", func(channel string) (Bus, error) { return nopBus{}, nil })
	bus, err := NewBus("nop", "")
	assert.Nil(t, err)
	assert.NotNil(t, bus)
	assert.Contains(t, Interfaces(), "nop")

	_, err = NewBus("does-not-exist", "")
	assert.NotNil(t, err)
}
