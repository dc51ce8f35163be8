package sim

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/wmu-sunseeker/gobps/pkg/can"
	"github.com/wmu-sunseeker/gobps/pkg/protocol"
)

// Vehicle plays the driver controls node and the AC charger on the bus
type Vehicle struct {
	mu          sync.Mutex
	bus         can.Bus
	addr        protocol.Addresses
	bits        protocol.SwitchBits
	switches    uint16
	switchesOut uint16
	charger     protocol.Signature
	chargerOn   bool
	sent        uint32
	logger      *log.Entry
}

func NewVehicle(bus can.Bus, addr protocol.Addresses, bits protocol.SwitchBits) *Vehicle {
	return &Vehicle{
		bus:    bus,
		addr:   addr,
		bits:   bits,
		logger: log.WithField("component", "vehicle"),
	}
}

func (v *Vehicle) SetIgnition(on bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if on {
		v.switches |= v.bits.Ignition
	} else {
		v.switches &^= v.bits.Ignition
	}
}

func (v *Vehicle) SetAccessory(on bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if on {
		v.switches |= v.bits.Accessory
	} else {
		v.switches &^= v.bits.Accessory
	}
}

// Raw switch words, for patterns not covered by the setters
func (v *Vehicle) SetSwitches(switches uint16, out uint16) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.switches = switches
	v.switchesOut = out
}

// Request precharge : ignition off with the precharge pattern
func (v *Vehicle) RequestPrecharge() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.switches &^= v.bits.Ignition
	v.switchesOut = v.switchesOut&^v.bits.PatternMask | v.bits.PrechargePattern
}

// Request DC charging : accessory off with the DC charge pattern
func (v *Vehicle) RequestDcCharge() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.switches &^= v.bits.Accessory
	v.switchesOut = v.switchesOut&^v.bits.PatternMask | v.bits.DcChargePattern
}

// Plug or unplug the AC charger
func (v *Vehicle) SetCharger(on bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.chargerOn = on
	v.charger = protocol.NewSignature("ACv0")
	if on {
		v.charger = protocol.SignatureAC
	}
}

// Number of frames sent
func (v *Vehicle) Sent() uint32 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sent
}

// Send one switch frame, and the charger frame when plugged
func (v *Vehicle) SendOnce() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	frame := can.NewFrame(v.addr.VehicleSwitchID(), 0, 8)
	protocol.PutWords(&frame, [4]uint16{v.switches, v.switchesOut, 0, 0})
	if err := v.bus.Send(frame); err != nil {
		return err
	}
	v.sent++
	if v.chargerOn {
		charger := can.NewFrame(v.addr.ChargerID(), 0, 8)
		protocol.PutSignature(&charger, v.charger, 0x0000AC01)
		if err := v.bus.Send(charger); err != nil {
			return err
		}
		v.sent++
	}
	return nil
}

// Send periodically until the context is done
func (v *Vehicle) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := v.SendOnce(); err != nil {
				v.logger.Warnf("[CAN] vehicle frame not sent : %v", err)
			}
		}
	}
}
