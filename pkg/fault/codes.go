package fault

import "fmt"

// Code tags the cause of a kill. The high nibble is shown on the indicator panel.
type Code uint8

const (
	NoFault              Code = 0x00
	MonitorBank1         Code = 0x11 // cell monitor 1 status/flags (over/under voltage)
	MonitorBank2         Code = 0x12
	MonitorBank3         Code = 0x13
	MonitorComm          Code = 0x20 // cell monitor measurement/communication
	OverCurrentDischarge Code = 0x30
	OverCurrentCharge    Code = 0x40
	OverTempDischarge    Code = 0x50
	OverTempCharge       Code = 0x60
	TemperatureSensor    Code = 0x70 // thermistor disconnected or reference error
	CanLinkSilent        Code = 0x80
)

var codeDescriptionMap = map[Code]string{
	NoFault:              "No fault",
	MonitorBank1:         "Cell monitor 1 status error",
	MonitorBank2:         "Cell monitor 2 status error",
	MonitorBank3:         "Cell monitor 3 status error",
	MonitorComm:          "Cell monitor communication error",
	OverCurrentDischarge: "Over-current, discharge",
	OverCurrentCharge:    "Over-current, charge",
	OverTempDischarge:    "Over-temperature, discharge",
	OverTempCharge:       "Over-temperature, charge",
	TemperatureSensor:    "Temperature sensor disconnected",
	CanLinkSilent:        "Vehicle CAN messages lost",
}

func (c Code) String() string {
	if desc, ok := codeDescriptionMap[c]; ok {
		return desc
	}
	return fmt.Sprintf("Unknown fault 0x%02X", uint8(c))
}

// High nibble, as latched on the indicator panel
func (c Code) Nibble() uint8 {
	return uint8(c>>4) & 0x0F
}

// Fault code of monitor bank 0..2
func BankCode(bank int) Code {
	return MonitorBank1 + Code(bank)
}

// TemperatureStatus is the result of one temperature batch check.
// Values are ordered by severity.
type TemperatureStatus uint8

const (
	TempOK             TemperatureStatus = 0
	TempAbove45        TemperatureStatus = 1
	TempAbove60        TemperatureStatus = 2
	TempNoSensor       TemperatureStatus = 3
	TempReferenceError TemperatureStatus = 4
	TempUnknown        TemperatureStatus = 0xFF
)

var temperatureStatusMap = map[TemperatureStatus]string{
	TempOK:             "OK",
	TempAbove45:        "ABOVE-45C",
	TempAbove60:        "ABOVE-60C",
	TempNoSensor:       "NO-THERMISTOR",
	TempReferenceError: "REFERENCE-ERROR",
	TempUnknown:        "UNKNOWN",
}

func (s TemperatureStatus) String() string {
	if str, ok := temperatureStatusMap[s]; ok {
		return str
	}
	return "UNKNOWN"
}
