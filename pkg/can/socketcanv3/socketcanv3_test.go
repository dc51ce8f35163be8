//go:build linux

package socketcanv3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	can "github.com/wmu-sunseeker/gobps/pkg/can"
)

func TestRegistered(t *testing.T) {
	assert.Contains(t, can.Interfaces(), "socketcanv3")
	_, err := can.NewBus("socketcanv3", "nocan42")
	assert.NotNil(t, err)
}

func TestNotConnected(t *testing.T) {
	b := &Bus{channel: "nocan42", fd: -1}
	assert.ErrorIs(t, b.Send(can.NewFrame(0x600, 0, 8)), can.ErrNotConnected)
	assert.ErrorIs(t, b.SetFilters(nil), can.ErrNotConnected)
	assert.Nil(t, b.Disconnect())
}
