package protocol

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	bps "github.com/wmu-sunseeker/gobps"
	"github.com/wmu-sunseeker/gobps/pkg/can"
	"github.com/wmu-sunseeker/gobps/pkg/plant"
)

// Every IdentEvery telemetry cycle also carries the identification frame
const IdentEvery = 10

// Link is the CAN transmit side used by the handler
type Link interface {
	Send(frame can.Frame) error
	Reinit() error
}

// Control signals decoded from vehicle frames
type Signals struct {
	CarEnable        bool   `json:"carEnable"`
	PrechargeRequest bool   `json:"prechargeRequest"`
	DcCharge         bool   `json:"dcCharge"`
	AcCharge         bool   `json:"acCharge"`
	Switches         uint16 `json:"switches"`
	SwitchesOut      uint16 `json:"switchesOut"`
	ChargerSerial    uint32 `json:"chargerSerial"`
}

// Outcome of one inbound frame
type Inbound struct {
	Status         can.Status
	Discarded      bool // telemetry disabled, frame dropped
	Handled        bool // address known
	ClearErrorLed  bool
	ToggleErrorLed bool
	Err            error
}

// Handler decodes vehicle frames into control signals and emits the
// pack telemetry. It is driven by the main loop only, the mutex guards
// the read accessors used by the gateway.
type Handler struct {
	mu        sync.Mutex
	link      Link
	addr      Addresses
	switches  SwitchBits
	serial    uint32
	enabled   bool
	signals   Signals
	telemetry plant.Telemetry
	cycle     int
	rxCount   uint32
	errCount  uint32
	txFailed  uint32
	logger    *log.Entry
}

func NewHandler(link Link, addr Addresses, switches SwitchBits, serial uint32) *Handler {
	return &Handler{
		link:     link,
		addr:     addr,
		switches: switches,
		serial:   serial,
		logger:   log.WithField("component", "protocol"),
	}
}

// Enable or disable telemetry. Inbound frames are only processed while enabled.
func (h *Handler) SetEnabled(enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.enabled != enabled {
		h.logger.Infof("[CAN] telemetry enabled : %v", enabled)
	}
	h.enabled = enabled
}

func (h *Handler) Enabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enabled
}

func (h *Handler) Addresses() Addresses {
	return h.addr
}

// Reset the vehicle frame receive counter
func (h *Handler) ResetReceiveCount() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rxCount = 0
}

// Vehicle switch frames received since last reset
func (h *Handler) ReceiveCount() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rxCount
}

func (h *Handler) ErrorCount() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errCount
}

func (h *Handler) TxFailures() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.txFailed
}

func (h *Handler) Signals() Signals {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.signals
}

// Consume the precharge request once acted upon
func (h *Handler) ClearPrechargeRequest() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.signals.PrechargeRequest = false
}

// Last telemetry computed and sent
func (h *Handler) Telemetry() plant.Telemetry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.telemetry
}

// Process one received frame
func (h *Handler) Process(frame can.Frame, normalOp bool) Inbound {
	h.mu.Lock()
	defer h.mu.Unlock()
	result := Inbound{Status: frame.Status()}
	if !h.enabled {
		result.Discarded = true
		return result
	}
	switch result.Status {
	case can.StatusOk:
		result.ClearErrorLed = true
		result.Handled, result.Err = h.handleData(frame)
	case can.StatusRemoteRequest:
		result.ClearErrorLed = true
		result.Handled, result.Err = h.handleRemoteRequest(frame.Address(), normalOp)
	case can.StatusError:
		h.errCount++
		result.ToggleErrorLed = true
		result.Handled = true
		h.logger.Debugf("[CAN] error frame x%X, count %v", frame.ID, h.errCount)
	}
	return result
}

func (h *Handler) handleData(frame can.Frame) (bool, error) {
	switch frame.Address() {
	case h.addr.VehicleSwitchID():
		if frame.DLC < 4 {
			return true, fmt.Errorf("%w : vehicle switch frame dlc %v", bps.ErrRxMsgLength, frame.DLC)
		}
		words := Words(frame)
		h.applySwitches(words[0], words[1])
		h.rxCount++
		return true, nil
	case h.addr.ChargerID():
		if frame.DLC < 8 {
			return true, fmt.Errorf("%w : charger frame dlc %v", bps.ErrRxMsgLength, frame.DLC)
		}
		sig, serial := ReadSignature(frame)
		ac := sig == SignatureAC
		if ac != h.signals.AcCharge {
			h.logger.Infof("[CAN] AC charge mode %v | charger %q serial %v", ac, sig, serial)
		}
		h.signals.AcCharge = ac
		h.signals.ChargerSerial = serial
		return true, nil
	}
	return false, nil
}

func (h *Handler) applySwitches(switches uint16, out uint16) {
	sw := h.switches
	h.signals.Switches = switches
	h.signals.SwitchesOut = out
	pattern := out & sw.PatternMask
	if switches&sw.Ignition == 0 {
		if pattern == sw.PrechargePattern {
			h.signals.PrechargeRequest = true
		}
	} else {
		h.signals.CarEnable = true
	}
	if switches&sw.Accessory == 0 {
		if pattern == sw.DcChargePattern {
			h.signals.DcCharge = true
		}
	} else {
		h.signals.DcCharge = false
	}
}

func (h *Handler) handleRemoteRequest(address uint32, normalOp bool) (bool, error) {
	var frame can.Frame
	t := h.telemetry
	switch address {
	case h.addr.ID():
		frame = newDataFrame(address)
		PutSignature(&frame, SignatureBPS, h.serial)
	case h.addr.VMaxID(), h.addr.VMinID(), h.addr.TMaxID(), h.addr.IshID():
		frame = h.telemetryFrame(address, t)
	case h.addr.PcDoneID():
		frame = newDataFrame(address)
		sig := SignatureNoPrecharge
		if normalOp {
			sig = SignatureBPS
		}
		PutSignature(&frame, sig, h.serial)
	default:
		return false, nil
	}
	return true, h.send(frame)
}

func (h *Handler) telemetryFrame(id uint32, t plant.Telemetry) can.Frame {
	frame := newDataFrame(id)
	switch id {
	case h.addr.VMaxID():
		PutFloats(&frame, float32(t.MaxCellIndex), t.MaxCellVoltage)
	case h.addr.VMinID():
		PutFloats(&frame, float32(t.MinCellIndex), t.MinCellVoltage)
	case h.addr.TMaxID():
		PutFloats(&frame, float32(t.MaxTemperatureIndex), t.MaxTemperature)
	case h.addr.IshID():
		PutFloats(&frame, t.ShuntAuxiliary(), t.Current)
	}
	return frame
}

// Send one periodic telemetry cycle and cache its values
func (h *Handler) SendTelemetry(t plant.Telemetry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.telemetry = t
	var failed error
	for _, id := range []uint32{h.addr.VMaxID(), h.addr.VMinID(), h.addr.TMaxID(), h.addr.IshID()} {
		if err := h.send(h.telemetryFrame(id, t)); err != nil && failed == nil {
			failed = err
		}
	}
	h.cycle++
	if h.cycle >= IdentEvery {
		h.cycle = 0
		frame := newDataFrame(h.addr.ID())
		PutSignature(&frame, SignatureBPS, h.serial)
		if err := h.send(frame); err != nil && failed == nil {
			failed = err
		}
	}
	return failed
}

// Announce the end of the precharge sequence
func (h *Handler) SendPrechargeDone() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	frame := newDataFrame(h.addr.PcDoneID())
	PutSignature(&frame, SignatureBPS, h.serial)
	return h.send(frame)
}

// Transmit, re-initializing the link on failure
func (h *Handler) send(frame can.Frame) error {
	err := h.link.Send(frame)
	if err == nil {
		return nil
	}
	h.txFailed++
	h.logger.Warnf("[CAN] transmit x%X failed : %v, re-initializing link", frame.ID, err)
	if rerr := h.link.Reinit(); rerr != nil {
		h.logger.Errorf("[CAN] link re-init failed : %v", rerr)
	}
	return fmt.Errorf("%w : x%X, %v", bps.ErrTxFailed, frame.ID, err)
}
