package output

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNames(t *testing.T) {
	assert.Equal(t, "motor-contactor", MotorContactor.String())
	assert.True(t, ExternalPrecharge.IsRelay())
	assert.False(t, ErrorLed.IsRelay())
	n, err := ParseName("strobe")
	assert.Nil(t, err)
	assert.Equal(t, Strobe, n)
	_, err = ParseName("horn")
	assert.NotNil(t, err)
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	assert.Nil(t, m.Set(BatteryRelay, true))
	assert.Nil(t, m.Set(Strobe, true))
	assert.True(t, m.Get(BatteryRelay))
	assert.Equal(t, []Command{{BatteryRelay, true}}, m.RelayHistory())
	assert.Len(t, m.History(), 2)
	assert.Equal(t, "battery=on", m.History()[0].String())

	m.FailOn(ArrayRelay, errors.New("coil write timeout"))
	assert.NotNil(t, m.Set(ArrayRelay, true))
	assert.False(t, m.Get(ArrayRelay))
	m.FailOn(ArrayRelay, nil)
	assert.Nil(t, m.Set(ArrayRelay, true))

	m.ClearHistory()
	assert.Empty(t, m.History())
	assert.NotNil(t, m.Set(NumOutputs, true))
}
