//go:build linux

package socketcanring

import (
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	can "github.com/wmu-sunseeker/gobps/pkg/can"
)

func TestRegistered(t *testing.T) {
	assert.Contains(t, can.Interfaces(), "socketcanring")
	_, err := can.NewBus("socketcanring", "nocan42")
	assert.NotNil(t, err)
}

func TestNotConnected(t *testing.T) {
	b := &Bus{channel: "nocan42", txFd: -1, rxFd: -1, pollPeriod: DefaultPollPeriod}
	assert.ErrorIs(t, b.Send(can.NewFrame(0x600, 0, 8)), can.ErrNotConnected)
	assert.Nil(t, b.Disconnect())
	b.SetPollPeriod(0)
	assert.Equal(t, DefaultPollPeriod, b.pollPeriod)
	b.SetPollPeriod(time.Millisecond)
	assert.Equal(t, time.Millisecond, b.pollPeriod)
}

func TestHtons(t *testing.T) {
	v := htons(0x000C)
	assert.Equal(t, []byte{0x00, 0x0C}, (*[2]byte)(unsafe.Pointer(&v))[:])
}
