package controller

import "strings"

// Mode is the operating mode of the controller
type Mode uint8

const (
	Initialize Mode = iota
	SelfCheck
	BpsReady
	ArrayReady
	CanCheck
	Precharge
	NormalOp
	Charge
	ErrorMode
)

var modeNames = map[Mode]string{
	Initialize: "INITIALIZE",
	SelfCheck:  "SELFCHECK",
	BpsReady:   "BPSREADY",
	ArrayReady: "ARRAYREADY",
	CanCheck:   "CANCHECK",
	Precharge:  "PRECHARGE",
	NormalOp:   "NORMALOP",
	Charge:     "CHARGE",
	ErrorMode:  "ERRORMODE",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "UNKNOWN"
}

// Number shown on the code LEDs and reported on the console
func (m Mode) Code() uint8 {
	return uint8(m) + 1
}

// Parse a mode name, case insensitive
func ParseMode(s string) (Mode, bool) {
	for m, name := range modeNames {
		if strings.EqualFold(name, s) {
			return m, true
		}
	}
	return 0, false
}

// ChargeSource is the set of sources that authorized Charge mode
type ChargeSource uint8

const (
	ChargeDC     ChargeSource = 0x01
	ChargeAC     ChargeSource = 0x02
	ChargeManual ChargeSource = 0x10
)

func (c ChargeSource) String() string {
	parts := []string{}
	if c&ChargeDC != 0 {
		parts = append(parts, "DC")
	}
	if c&ChargeAC != 0 {
		parts = append(parts, "AC")
	}
	if c&ChargeManual != 0 {
		parts = append(parts, "MANUAL")
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}
