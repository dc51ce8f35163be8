package protocol

import (
	"fmt"

	bps "github.com/wmu-sunseeker/gobps"
)

// Addresses of the frames exchanged with the vehicle. Outbound frames
// are at Base + offset, inbound frames at fixed external bases.
type Addresses struct {
	Base   uint32
	VMax   uint32
	VMin   uint32
	TMax   uint32
	Ish    uint32
	PcDone uint32

	VehicleBase   uint32
	VehicleSwitch uint32
	ChargerBase   uint32
	ChargerCharge uint32
}

func DefaultAddresses() Addresses {
	return Addresses{
		Base:          0x580,
		VMax:          1,
		VMin:          2,
		TMax:          3,
		Ish:           4,
		PcDone:        7,
		VehicleBase:   0x500,
		VehicleSwitch: 5,
		ChargerBase:   0x5C0,
		ChargerCharge: 1,
	}
}

func (a Addresses) ID() uint32              { return a.Base }
func (a Addresses) VMaxID() uint32          { return a.Base + a.VMax }
func (a Addresses) VMinID() uint32          { return a.Base + a.VMin }
func (a Addresses) TMaxID() uint32          { return a.Base + a.TMax }
func (a Addresses) IshID() uint32           { return a.Base + a.Ish }
func (a Addresses) PcDoneID() uint32        { return a.Base + a.PcDone }
func (a Addresses) VehicleSwitchID() uint32 { return a.VehicleBase + a.VehicleSwitch }
func (a Addresses) ChargerID() uint32       { return a.ChargerBase + a.ChargerCharge }

// Every id must be a distinct standard identifier
func (a Addresses) Validate() error {
	ids := map[string]uint32{
		"id":             a.ID(),
		"vmax":           a.VMaxID(),
		"vmin":           a.VMinID(),
		"tmax":           a.TMaxID(),
		"ish":            a.IshID(),
		"pcdone":         a.PcDoneID(),
		"vehicle switch": a.VehicleSwitchID(),
		"charger":        a.ChargerID(),
	}
	seen := map[uint32]string{}
	for name, id := range ids {
		if id > 0x7FF {
			return fmt.Errorf("%w : %v address x%X is not a standard id", bps.ErrInvalidConfig, name, id)
		}
		if other, ok := seen[id]; ok {
			return fmt.Errorf("%w : %v and %v share address x%X", bps.ErrInvalidConfig, name, other, id)
		}
		seen[id] = name
	}
	return nil
}

// Vehicle switch bits and patterns
type SwitchBits struct {
	Ignition         uint16
	Accessory        uint16
	PatternMask      uint16 // applied to the switches-out word
	PrechargePattern uint16
	DcChargePattern  uint16
}

func DefaultSwitchBits() SwitchBits {
	return SwitchBits{
		Ignition:         0x0040,
		Accessory:        0x0020,
		PatternMask:      0xFF00,
		PrechargePattern: 0xFF00,
		DcChargePattern:  0x0F00,
	}
}
