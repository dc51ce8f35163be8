package modbus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	bps "github.com/wmu-sunseeker/gobps"
	"github.com/wmu-sunseeker/gobps/pkg/output"
)

type coilWrite struct {
	address uint16
	value   uint16
}

type fakeClient struct {
	writes []coilWrite
	err    error
}

func (f *fakeClient) WriteSingleCoil(address, value uint16) ([]byte, error) {
	f.writes = append(f.writes, coilWrite{address, value})
	return nil, f.err
}

func TestCoilMapping(t *testing.T) {
	client := &fakeClient{}
	coils := newCoils(client, 100)
	assert.Nil(t, coils.Set(output.BatteryRelay, true))
	assert.Nil(t, coils.Set(output.Strobe, false))
	assert.Equal(t, []coilWrite{
		{100, CoilOn},
		{100 + uint16(output.Strobe), CoilOff},
	}, client.writes)
	assert.Nil(t, coils.Close())
}

func TestCoilWriteError(t *testing.T) {
	client := &fakeClient{err: errors.New("i/o timeout")}
	coils := newCoils(client, 0)
	err := coils.Set(output.ArrayRelay, true)
	assert.ErrorIs(t, err, bps.ErrOutput)
}

func TestNewRequiresEndpoint(t *testing.T) {
	_, err := New(Config{})
	assert.NotNil(t, err)
}
