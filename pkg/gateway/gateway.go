package gateway

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/wmu-sunseeker/gobps/pkg/controller"
	"github.com/wmu-sunseeker/gobps/pkg/protocol"
)

var ErrWrongMode = errors.New("request not allowed in current mode")

// Controller is the view of the battery controller served by gateways.
// Every method must be safe from any goroutine.
type Controller interface {
	Snapshot() controller.Snapshot
	Faults() []controller.FaultEvent
	RequestReset()
	RequestManualCharge()
	OnSnapshot(listener func(controller.Snapshot))
}

// BaseGateway implements the diagnostic features shared by gateways.
// Gateways never drive outputs themselves : operator requests are
// raised as events and handled by the controller main loop.
type BaseGateway struct {
	ctrl   Controller
	serial uint32
	logger *log.Entry
}

func NewBaseGateway(ctrl Controller, serial uint32) *BaseGateway {
	return &BaseGateway{
		ctrl:   ctrl,
		serial: serial,
		logger: log.WithField("component", "gateway"),
	}
}

type GatewayVersion struct {
	Product             string
	Signature           string
	SerialNumber        string
	ProtocolVersion     string
	ImplementationClass string
}

// Get gateway version information
func (gw *BaseGateway) GetVersion() GatewayVersion {
	return GatewayVersion{
		Product:             "BPS",
		Signature:           protocol.SignatureBPS.String(),
		SerialNumber:        fmt.Sprintf("0x%08X", gw.serial),
		ProtocolVersion:     "01.00",
		ImplementationClass: "01.00",
	}
}

// Latest controller snapshot
func (gw *BaseGateway) Status() controller.Snapshot {
	return gw.ctrl.Snapshot()
}

// Fault history, oldest first
func (gw *BaseGateway) Faults() []controller.FaultEvent {
	return gw.ctrl.Faults()
}

// Most recent fault, if any
func (gw *BaseGateway) LatestFault() (controller.FaultEvent, bool) {
	faults := gw.ctrl.Faults()
	if len(faults) == 0 {
		return controller.FaultEvent{}, false
	}
	return faults[len(faults)-1], true
}

// Request an operator reset, the only way out of error mode
func (gw *BaseGateway) Reset() error {
	gw.logger.Infof("[GATEWAY] operator reset requested in %v", gw.ctrl.Snapshot().Mode)
	gw.ctrl.RequestReset()
	return nil
}

// Request manual charge mode, refused while initializing or in error mode
func (gw *BaseGateway) ManualCharge() error {
	name := gw.ctrl.Snapshot().Mode
	mode, ok := controller.ParseMode(name)
	if !ok {
		return fmt.Errorf("%w : unknown mode %v", ErrWrongMode, name)
	}
	if mode == controller.Initialize || mode == controller.ErrorMode {
		return fmt.Errorf("%w : manual charge in %v", ErrWrongMode, mode)
	}
	gw.logger.Infof("[GATEWAY] manual charge requested in %v", mode)
	gw.ctrl.RequestManualCharge()
	return nil
}

// Receive every published snapshot, listener must not block
func (gw *BaseGateway) Subscribe(listener func(controller.Snapshot)) {
	gw.ctrl.OnSnapshot(listener)
}
