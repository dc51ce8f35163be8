package sensor

import "github.com/wmu-sunseeker/gobps/pkg/plant"

// CellMonitor is one cell-voltage monitor chip session covering one bank.
type CellMonitor interface {
	Init() error
	ReadStatus() (uint8, error)
	ReadFlags() (uint8, error)
	StartVoltageConversion() error
	// Overwrites the bank readings in place. A non nil error marks the
	// measurement as failed.
	ReadVoltages(bank *plant.CellBank) error
}

// ADC drives the seven sampling devices, indexed 0..6 :
// temperature bus 1 devices 0..2, temperature bus 2 devices 3..5, misc bus 6.
// Completion of a conversion is signalled asynchronously through the
// ready callback given to the implementation.
type ADC interface {
	SelfCalibrate() error
	StartConversion(device int) error
	Idle(device int) error
	ReadConvert(device int, channel int) (int32, error)
}

const (
	DevicesPerBus = 3
	MiscDevice    = 6
)

// Bus (0 temperature 1, 1 temperature 2, 2 misc) of a device
func BusOf(device int) int {
	return device / DevicesPerBus
}

// First sample index of a device
func SampleOffset(device int) int {
	return device * plant.ChannelsPerDevice
}
