package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bps "github.com/wmu-sunseeker/gobps"
)

const sample = `
[log]
level = debug

[can]
interface = virtual
channel = localhost:18888

[device]
serial = 0x00C0FFEE

[addresses]
base = 0x600
ignition_bit = 0x0080

[diagnostics]
can_link = true
voltage2 = false

[limits]
max_current_charge = -15000
precharge_floor = 0x880000

[timing]
tick_period = 5ms
can_check_dwell = 24

[outputs]
driver = modbus
endpoint = 192.168.1.40:502
coil_base = 16

[sensors]
driver = modbus
endpoint = /dev/ttyUSB1
rtu = true
cell_base = 0x20

[gateway]
enabled = true
`

func TestDefaultIsValid(t *testing.T) {
	assert.Nil(t, Default().Validate())
}

func TestLoadOverlay(t *testing.T) {
	cfg, err := Load([]byte(sample))
	require.Nil(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "virtual", cfg.CAN.Interface)
	assert.Equal(t, "localhost:18888", cfg.CAN.Channel)
	assert.EqualValues(t, 0x00C0FFEE, cfg.Device.Serial)
	assert.EqualValues(t, 0x601, cfg.Addresses.VMaxID())
	assert.EqualValues(t, 0x505, cfg.Addresses.VehicleSwitchID())
	assert.EqualValues(t, 0x0080, cfg.Switches.Ignition)
	assert.EqualValues(t, 0x0020, cfg.Switches.Accessory)

	checks := cfg.Controller.Checks
	assert.True(t, checks.CanLink)
	assert.False(t, checks.Voltage[1])
	assert.True(t, checks.Voltage[0])

	assert.Equal(t, -15000.0, cfg.Controller.Limits.MaxCurrentCharge)
	assert.Equal(t, 80200.0, cfg.Controller.Limits.MaxCurrentDischarge)
	assert.EqualValues(t, 0x880000, cfg.Controller.Precharge.Floor)
	assert.Equal(t, 5*time.Millisecond, cfg.Tick.Period)
	assert.EqualValues(t, 24, cfg.Controller.CanCheckDwell)
	assert.EqualValues(t, 8, cfg.Controller.PrechargeDwell)

	assert.Equal(t, OutputsModbus, cfg.Outputs.Driver)
	assert.Equal(t, "192.168.1.40:502", cfg.Outputs.Modbus.Endpoint)
	assert.EqualValues(t, 16, cfg.Outputs.Modbus.CoilBase)
	assert.Equal(t, SensorsModbus, cfg.Sensors.Driver)
	assert.True(t, cfg.Sensors.Modbus.RTU)
	assert.EqualValues(t, 2, cfg.Sensors.Modbus.SlaveID)
	assert.EqualValues(t, 0x20, cfg.Sensors.Registers.Cells)
	assert.EqualValues(t, 64, cfg.Sensors.Registers.Samples)
	assert.True(t, cfg.Gateway.Enabled)
	assert.Equal(t, "127.0.0.1:8080", cfg.Gateway.Listen)
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bps.ini")
	require.Nil(t, os.WriteFile(path, []byte("[console]\ndevice = /dev/ttyUSB0\nbaud_rate = 115200\n"), 0o644))
	cfg, err := Load(path)
	require.Nil(t, err)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Console.Device)
	assert.Equal(t, 115200, cfg.Console.BaudRate)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.ini"))
	assert.ErrorIs(t, err, bps.ErrInvalidConfig)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		file string
	}{
		{"not a number", "[timing]\nstatus_divider = eight\n"},
		{"zero divider", "[timing]\nstatus_divider = 0\n"},
		{"positive charge ceiling", "[limits]\nmax_current_charge = 100\n"},
		{"overlapping addresses", "[addresses]\nvehicle_base = 0x580\nvehicle_switch = 1\n"},
		{"inverted temperature codes", "[limits]\ntemp_discharge_code = 0x500000\n"},
		{"modbus without endpoint", "[outputs]\ndriver = modbus\n"},
		{"unknown driver", "[outputs]\ndriver = relaycard\n"},
		{"modbus sensors without endpoint", "[sensors]\ndriver = modbus\n"},
		{"log level", "[log]\nlevel = chatty\n"},
		{"bad bool", "[diagnostics]\ncurrent = maybe\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load([]byte(tc.file))
			assert.ErrorIs(t, err, bps.ErrInvalidConfig)
		})
	}
}
