package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	bps "github.com/wmu-sunseeker/gobps"
	"github.com/wmu-sunseeker/gobps/pkg/console"
	"github.com/wmu-sunseeker/gobps/pkg/controller"
	"github.com/wmu-sunseeker/gobps/pkg/output/modbus"
	"github.com/wmu-sunseeker/gobps/pkg/protocol"
	sensormodbus "github.com/wmu-sunseeker/gobps/pkg/sensor/modbus"
	"github.com/wmu-sunseeker/gobps/pkg/tick"
	"gopkg.in/ini.v1"
)

const (
	OutputsMemory = "memory"
	OutputsModbus = "modbus"

	SensorsSim    = "sim"
	SensorsModbus = "modbus"
)

type LogConfig struct {
	Level string
}

type CANConfig struct {
	Interface string
	Channel   string
	QueueSize int
}

type DeviceConfig struct {
	Serial uint32 // sent in the identification frame
}

type TickConfig struct {
	Period           time.Duration
	StatusDivider    uint32
	TelemetryDivider uint32
}

type OutputConfig struct {
	Driver string // memory or modbus
	Modbus modbus.Config
}

type SensorConfig struct {
	Driver    string // sim or modbus
	Modbus    modbus.Config
	Registers sensormodbus.RegisterMap
}

type GatewayConfig struct {
	Enabled bool
	Listen  string
}

// Config of the whole controller binary
type Config struct {
	Log        LogConfig
	CAN        CANConfig
	Device     DeviceConfig
	Addresses  protocol.Addresses
	Switches   protocol.SwitchBits
	Controller controller.Config
	Tick       TickConfig
	Outputs    OutputConfig
	Sensors    SensorConfig
	Console    console.SerialConfig
	Gateway    GatewayConfig
}

// Factory settings
func Default() *Config {
	return &Config{
		Log:        LogConfig{Level: "info"},
		CAN:        CANConfig{Interface: "socketcan", Channel: "can0", QueueSize: bps.DefaultRxQueueSize},
		Device:     DeviceConfig{Serial: 0x00000001},
		Addresses:  protocol.DefaultAddresses(),
		Switches:   protocol.DefaultSwitchBits(),
		Controller: controller.DefaultConfig(),
		Tick: TickConfig{
			Period:           tick.DefaultPeriod,
			StatusDivider:    tick.DefaultStatusDivider,
			TelemetryDivider: tick.DefaultTelemetryDivider,
		},
		Outputs: OutputConfig{
			Driver: OutputsMemory,
			Modbus: modbus.Config{SlaveID: 1, BaudRate: 19200, Timeout: modbus.DefaultTimeout},
		},
		Sensors: SensorConfig{
			Driver:    SensorsSim,
			Modbus:    modbus.Config{SlaveID: 2, BaudRate: 19200, Timeout: modbus.DefaultTimeout},
			Registers: sensormodbus.DefaultRegisterMap(),
		},
		Console: console.SerialConfig{BaudRate: 9600, Timeout: 100 * time.Millisecond},
		Gateway: GatewayConfig{Listen: "127.0.0.1:8080"},
	}
}

// Load defaults overlaid with an ini file.
// file can be either a path or a []byte, like [ini.Load]
func Load(file any) (*Config, error) {
	f, err := ini.Load(file)
	if err != nil {
		return nil, fmt.Errorf("%w : %v", bps.ErrInvalidConfig, err)
	}
	cfg := Default()
	r := &reader{}
	cfg.read(f, r)
	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) read(f *ini.File, r *reader) {
	s := f.Section("log")
	str(s, "level", &cfg.Log.Level)

	s = f.Section("can")
	str(s, "interface", &cfg.CAN.Interface)
	str(s, "channel", &cfg.CAN.Channel)
	parse(r, s, "queue_size", &cfg.CAN.QueueSize, strconv.Atoi)

	s = f.Section("device")
	parse(r, s, "serial", &cfg.Device.Serial, parseU32)

	s = f.Section("addresses")
	a := &cfg.Addresses
	parse(r, s, "base", &a.Base, parseU32)
	parse(r, s, "vmax", &a.VMax, parseU32)
	parse(r, s, "vmin", &a.VMin, parseU32)
	parse(r, s, "tmax", &a.TMax, parseU32)
	parse(r, s, "ish", &a.Ish, parseU32)
	parse(r, s, "pc_done", &a.PcDone, parseU32)
	parse(r, s, "vehicle_base", &a.VehicleBase, parseU32)
	parse(r, s, "vehicle_switch", &a.VehicleSwitch, parseU32)
	parse(r, s, "charger_base", &a.ChargerBase, parseU32)
	parse(r, s, "charger_charge", &a.ChargerCharge, parseU32)
	b := &cfg.Switches
	parse(r, s, "ignition_bit", &b.Ignition, parseU16)
	parse(r, s, "accessory_bit", &b.Accessory, parseU16)
	parse(r, s, "pattern_mask", &b.PatternMask, parseU16)
	parse(r, s, "precharge_pattern", &b.PrechargePattern, parseU16)
	parse(r, s, "dc_charge_pattern", &b.DcChargePattern, parseU16)

	s = f.Section("diagnostics")
	c := &cfg.Controller.Checks
	parse(r, s, "temperature", &c.Temperature, strconv.ParseBool)
	for i := range c.Monitor {
		parse(r, s, fmt.Sprintf("monitor%d", i+1), &c.Monitor[i], strconv.ParseBool)
		parse(r, s, fmt.Sprintf("voltage%d", i+1), &c.Voltage[i], strconv.ParseBool)
	}
	parse(r, s, "current", &c.Current, strconv.ParseBool)
	parse(r, s, "precharge", &c.Precharge, strconv.ParseBool)
	parse(r, s, "can_link", &c.CanLink, strconv.ParseBool)
	parse(r, s, "self_check", &c.SelfCheck, strconv.ParseBool)

	s = f.Section("limits")
	l := &cfg.Controller.Limits
	parse(r, s, "max_current_discharge", &l.MaxCurrentDischarge, parseFloat)
	parse(r, s, "max_current_charge", &l.MaxCurrentCharge, parseFloat)
	parse(r, s, "temp_charge_code", &l.TempChargeCode, parseI32)
	parse(r, s, "temp_discharge_code", &l.TempDischargeCode, parseI32)
	parse(r, s, "no_sensor_code", &l.NoSensorCode, parseI32)
	parse(r, s, "reference_min", &l.ReferenceMin, parseI32)
	parse(r, s, "reference_max", &l.ReferenceMax, parseI32)
	parse(r, s, "current_scale", &cfg.Controller.CurrentScale, parseFloat)
	parse(r, s, "current_full_scale", &cfg.Controller.CurrentFullScale, parseFloat)
	p := &cfg.Controller.Precharge
	parse(r, s, "precharge_floor", &p.Floor, parseI32)
	parse(r, s, "precharge_tolerance", &p.Tolerance, parseI32)
	parse(r, s, "precharge_noise_floor", &p.NoiseFloor, parseI32)

	s = f.Section("timing")
	t := &cfg.Controller
	parse(r, s, "tick_period", &cfg.Tick.Period, time.ParseDuration)
	parse(r, s, "status_divider", &cfg.Tick.StatusDivider, parseU32)
	parse(r, s, "telemetry_divider", &cfg.Tick.TelemetryDivider, parseU32)
	parse(r, s, "settle_time", &t.SettleTime, time.ParseDuration)
	parse(r, s, "monitor_init_attempts", &t.MonitorInitAttempts, strconv.Atoi)
	parse(r, s, "sequence_length", &t.SequenceLength, strconv.Atoi)
	parse(r, s, "bps_ready_dwell", &t.BpsReadyDwell, parseU32)
	parse(r, s, "array_ready_dwell", &t.ArrayReadyDwell, parseU32)
	parse(r, s, "can_check_dwell", &t.CanCheckDwell, parseU32)
	parse(r, s, "precharge_dwell", &t.PrechargeDwell, parseU32)
	parse(r, s, "can_liveness_window", &t.CanLivenessWindow, parseU32)
	parse(r, s, "strobe_period", &t.StrobePeriod, strconv.Atoi)
	parse(r, s, "fault_log_size", &t.FaultLogSize, strconv.Atoi)

	s = f.Section("outputs")
	o := &cfg.Outputs
	str(s, "driver", &o.Driver)
	str(s, "endpoint", &o.Modbus.Endpoint)
	parse(r, s, "rtu", &o.Modbus.RTU, strconv.ParseBool)
	parse(r, s, "baud_rate", &o.Modbus.BaudRate, strconv.Atoi)
	parse(r, s, "slave_id", &o.Modbus.SlaveID, parseU8)
	parse(r, s, "coil_base", &o.Modbus.CoilBase, parseU16)
	parse(r, s, "timeout", &o.Modbus.Timeout, time.ParseDuration)

	s = f.Section("sensors")
	sn := &cfg.Sensors
	str(s, "driver", &sn.Driver)
	str(s, "endpoint", &sn.Modbus.Endpoint)
	parse(r, s, "rtu", &sn.Modbus.RTU, strconv.ParseBool)
	parse(r, s, "baud_rate", &sn.Modbus.BaudRate, strconv.Atoi)
	parse(r, s, "slave_id", &sn.Modbus.SlaveID, parseU8)
	parse(r, s, "timeout", &sn.Modbus.Timeout, time.ParseDuration)
	parse(r, s, "status_base", &sn.Registers.Status, parseU16)
	parse(r, s, "cell_base", &sn.Registers.Cells, parseU16)
	parse(r, s, "sample_base", &sn.Registers.Samples, parseU16)
	parse(r, s, "control_base", &sn.Registers.Control, parseU16)

	s = f.Section("console")
	str(s, "device", &cfg.Console.Device)
	parse(r, s, "baud_rate", &cfg.Console.BaudRate, strconv.Atoi)
	parse(r, s, "timeout", &cfg.Console.Timeout, time.ParseDuration)

	s = f.Section("gateway")
	parse(r, s, "enabled", &cfg.Gateway.Enabled, strconv.ParseBool)
	str(s, "listen", &cfg.Gateway.Listen)
}

// Reject inconsistent settings
func (cfg *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w : "+format, append([]any{bps.ErrInvalidConfig}, args...)...))
	}
	if _, err := log.ParseLevel(cfg.Log.Level); err != nil {
		invalid("log level %q", cfg.Log.Level)
	}
	if cfg.CAN.Interface == "" {
		invalid("no CAN interface")
	}
	if cfg.CAN.QueueSize < 0 {
		invalid("CAN queue size %v", cfg.CAN.QueueSize)
	}
	if err := cfg.Addresses.Validate(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Tick.Period <= 0 || cfg.Tick.StatusDivider == 0 || cfg.Tick.TelemetryDivider == 0 {
		invalid("tick period %v, dividers %v/%v", cfg.Tick.Period, cfg.Tick.StatusDivider, cfg.Tick.TelemetryDivider)
	}
	ctrl := cfg.Controller
	if ctrl.SequenceLength <= 0 || ctrl.StrobePeriod <= 0 {
		invalid("sequence length %v, strobe period %v", ctrl.SequenceLength, ctrl.StrobePeriod)
	}
	if ctrl.Limits.MaxCurrentCharge >= 0 {
		invalid("charge current ceiling %v must be negative", ctrl.Limits.MaxCurrentCharge)
	}
	if ctrl.Limits.MaxCurrentDischarge <= 0 {
		invalid("discharge current ceiling %v must be positive", ctrl.Limits.MaxCurrentDischarge)
	}
	if ctrl.Limits.TempDischargeCode >= ctrl.Limits.TempChargeCode {
		invalid("60 degree code x%X must be below 45 degree code x%X", ctrl.Limits.TempDischargeCode, ctrl.Limits.TempChargeCode)
	}
	if ctrl.Limits.ReferenceMin >= ctrl.Limits.ReferenceMax {
		invalid("reference band x%X..x%X", ctrl.Limits.ReferenceMin, ctrl.Limits.ReferenceMax)
	}
	if ctrl.CurrentFullScale == 0 {
		invalid("current full scale is zero")
	}
	switch cfg.Outputs.Driver {
	case OutputsMemory:
	case OutputsModbus:
		if cfg.Outputs.Modbus.Endpoint == "" {
			invalid("modbus outputs need an endpoint")
		}
	default:
		invalid("unknown output driver %q", cfg.Outputs.Driver)
	}
	switch cfg.Sensors.Driver {
	case SensorsSim:
	case SensorsModbus:
		if cfg.Sensors.Modbus.Endpoint == "" {
			invalid("modbus sensors need an endpoint")
		}
	default:
		invalid("unknown sensor driver %q", cfg.Sensors.Driver)
	}
	if cfg.Gateway.Enabled && cfg.Gateway.Listen == "" {
		invalid("gateway enabled without listen address")
	}
	return errors.Join(errs...)
}

// Collects parse errors of a whole file
type reader struct {
	errs []error
}

func str(s *ini.Section, key string, dst *string) {
	if s.HasKey(key) {
		*dst = strings.TrimSpace(s.Key(key).String())
	}
}

// Overwrite dst when key is present, record an error when it does not parse
func parse[T any](r *reader, s *ini.Section, key string, dst *T, conv func(string) (T, error)) {
	if !s.HasKey(key) {
		return
	}
	raw := strings.TrimSpace(s.Key(key).String())
	v, err := conv(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%w : [%v] %v = %q, %v", bps.ErrInvalidConfig, s.Name(), key, raw, err))
		return
	}
	*dst = v
}

// Integers accept 0x prefixed hex
func parseU32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	return uint32(v), err
}

func parseU16(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	return uint16(v), err
}

func parseU8(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	return uint8(v), err
}

func parseI32(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 0, 32)
	return int32(v), err
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
