package fault

// Checks enables or disables individual protections for bench testing
// with a partially populated pack. A disabled check always passes.
type Checks struct {
	Temperature bool
	Monitor     [3]bool // status/flags of each bank
	Voltage     [3]bool // voltage read result of each bank
	Current     bool
	Precharge   bool // false forces the precharge sequence complete
	CanLink     bool // vehicle frame liveness and CAN gating of precharge
	SelfCheck   bool // bank status participates in self check
}

// Factory settings of the controller. CAN liveness is off.
func DefaultChecks() Checks {
	c := AllChecks()
	c.CanLink = false
	return c
}

// Every protection enabled
func AllChecks() Checks {
	return Checks{
		Temperature: true,
		Monitor:     [3]bool{true, true, true},
		Voltage:     [3]bool{true, true, true},
		Current:     true,
		Precharge:   true,
		CanLink:     true,
		SelfCheck:   true,
	}
}

// Limits of the operating envelope
type Limits struct {
	MaxCurrentDischarge float64 // mA, kill at or above
	MaxCurrentCharge    float64 // mA (negative), kill at or below

	// Thermistor codes fall as temperature rises
	TempChargeCode    int32 // 45 degrees
	TempDischargeCode int32 // 60 degrees
	NoSensorCode      int32 // above this, thermistor is not connected

	// Acceptable band of the 2.5V reference channels
	ReferenceMin int32
	ReferenceMax int32
}

func DefaultLimits() Limits {
	return Limits{
		MaxCurrentDischarge: 80200.0,
		MaxCurrentCharge:    -19500.0,
		TempChargeCode:      0x004582EA,
		TempDischargeCode:   0x002DA2B3,
		NoSensorCode:        0x00B00000,
		ReferenceMin:        0x00000001,
		ReferenceMax:        0x00FFFFFE,
	}
}
