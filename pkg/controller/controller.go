package controller

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	bps "github.com/wmu-sunseeker/gobps"
	"github.com/wmu-sunseeker/gobps/pkg/console"
	"github.com/wmu-sunseeker/gobps/pkg/event"
	"github.com/wmu-sunseeker/gobps/pkg/fault"
	"github.com/wmu-sunseeker/gobps/pkg/indicator"
	"github.com/wmu-sunseeker/gobps/pkg/output"
	"github.com/wmu-sunseeker/gobps/pkg/plant"
	"github.com/wmu-sunseeker/gobps/pkg/precharge"
	"github.com/wmu-sunseeker/gobps/pkg/protocol"
	"github.com/wmu-sunseeker/gobps/pkg/relay"
	"github.com/wmu-sunseeker/gobps/pkg/sensor"
)

// Config of the control loop
type Config struct {
	Checks    fault.Checks
	Limits    fault.Limits
	Precharge precharge.Thresholds

	// Current in mA = shunt delta * CurrentScale / CurrentFullScale
	CurrentScale     float64
	CurrentFullScale float64

	SettleTime          time.Duration
	MonitorInitAttempts int

	// In status ticks
	SequenceLength    int
	BpsReadyDwell     uint32
	ArrayReadyDwell   uint32
	CanCheckDwell     uint32
	PrechargeDwell    uint32
	CanLivenessWindow uint32
	StrobePeriod      int

	FaultLogSize int
}

func DefaultConfig() Config {
	return Config{
		Checks:              fault.DefaultChecks(),
		Limits:              fault.DefaultLimits(),
		Precharge:           precharge.DefaultThresholds(),
		CurrentScale:        200000.0,
		CurrentFullScale:    plant.AdcFullScale,
		SettleTime:          relay.DefaultSettleTime,
		MonitorInitAttempts: 2,
		SequenceLength:      8,
		BpsReadyDwell:       8,
		ArrayReadyDwell:     8,
		CanCheckDwell:       16,
		PrechargeDwell:      8,
		CanLivenessWindow:   32,
		StrobePeriod:        28,
		FaultLogSize:        32,
	}
}

// Peripherals the controller drives
type Peripherals struct {
	Flags    *event.Flags
	Monitors [plant.NumBanks]sensor.CellMonitor
	ADC      sensor.ADC
	Outputs  output.Driver
	Bus      *bps.BusManager
	Protocol *protocol.Handler
	Reports  io.Writer     // console report output, optional
	Sleeper  relay.Sleeper // relay settle waits, real time if nil
}

// TelemetryGate is told when periodic telemetry starts and stops
type TelemetryGate interface {
	EnableTelemetry(enabled bool)
}

// Controller is the battery protection main loop. All of its state is
// owned by the goroutine calling [Controller.Step], other goroutines only
// raise event flags and read published snapshots.
type Controller struct {
	cfg     Config
	flags   *event.Flags
	state   *plant.State
	monitor [plant.NumBanks]sensor.CellMonitor
	adc     sensor.ADC
	router  *sensor.Router
	agg     *fault.Aggregator
	latch   fault.Latch
	pre     *precharge.Sequencer
	relays  *relay.Sequencer
	panel   *indicator.Panel
	proto   *protocol.Handler
	bus     *bps.BusManager
	reports io.Writer
	gate    TelemetryGate

	mode               Mode
	dwell              uint32
	sequenceStep       int
	statusTicks        uint64
	strobeCount        int
	monitorErr         [plant.NumBanks]bool
	scError            uint8
	ltcError           bool
	selfCheckTempError bool
	tempStatus         fault.TemperatureStatus
	chargeSource       ChargeSource
	sensorsEnabled     bool
	oldRxCount         uint32
	pendingCauses      []fault.Code
	lastFault          fault.Code

	mu        sync.Mutex
	faultLog  []FaultEvent
	listeners []func(Snapshot)
	snapshot  atomic.Pointer[Snapshot]

	logger *log.Entry
}

func New(cfg Config, p Peripherals) (*Controller, error) {
	if p.Flags == nil || p.ADC == nil || p.Outputs == nil || p.Bus == nil || p.Protocol == nil {
		return nil, fmt.Errorf("%w : missing controller peripheral", bps.ErrIllegalArgument)
	}
	for bank, m := range p.Monitors {
		if m == nil {
			return nil, fmt.Errorf("%w : no cell monitor for bank %v", bps.ErrIllegalArgument, bank+1)
		}
	}
	if cfg.SequenceLength <= 0 || cfg.StrobePeriod <= 0 || cfg.CurrentFullScale == 0 {
		return nil, fmt.Errorf("%w : controller timing", bps.ErrInvalidConfig)
	}
	if cfg.MonitorInitAttempts <= 0 {
		cfg.MonitorInitAttempts = 1
	}
	state := plant.NewState()
	c := &Controller{
		cfg:        cfg,
		flags:      p.Flags,
		state:      state,
		monitor:    p.Monitors,
		adc:        p.ADC,
		router:     sensor.NewRouter(p.ADC, state),
		agg:        fault.NewAggregator(cfg.Checks, cfg.Limits),
		pre:        precharge.NewSequencer(cfg.Precharge),
		relays:     relay.NewSequencer(p.Outputs, cfg.SettleTime, p.Sleeper),
		panel:      indicator.NewPanel(p.Outputs),
		proto:      p.Protocol,
		bus:        p.Bus,
		reports:    p.Reports,
		mode:       Initialize,
		tempStatus: fault.TempUnknown,
		logger:     log.WithField("component", "controller"),
	}
	p.Bus.SetNotify(func() { p.Flags.Set(event.FramePending) })
	c.publish()
	return c, nil
}

// Follow telemetry enable with the given gate (the tick source)
func (c *Controller) SetTelemetryGate(gate TelemetryGate) {
	c.gate = gate
}

// Current mode, main loop goroutine only
func (c *Controller) Mode() Mode {
	return c.mode
}

// Plant state, main loop goroutine only
func (c *Controller) State() *plant.State {
	return c.state
}

// Request an operator reset, safe from any goroutine
func (c *Controller) RequestReset() {
	c.flags.Set(event.OperatorReset)
}

// Request manual charge mode, safe from any goroutine
func (c *Controller) RequestManualCharge() {
	c.flags.Set(event.ManualCharge)
}

// Run one main loop iteration : status tick, sensor events, CAN,
// console reports, operator inputs, then any kill raised on the way.
// Returns true when events are still pending.
func (c *Controller) Step() bool {
	status := c.flags.TestAndClear(event.StatusTick)
	if status {
		c.statusTick()
	}
	c.processSensors()
	c.processCan()
	c.processReports()
	operator := c.processOperator()
	killed := c.applyKill()
	if status || operator || killed {
		c.publish()
	}
	return c.flags.Load() != 0 || c.bus.Pending() > 0
}

func (c *Controller) setMode(mode Mode) {
	if mode == c.mode {
		return
	}
	c.logger.Infof("[CTRL] mode changed | %v ==> %v", c.mode, mode)
	c.mode = mode
	c.dwell = 0
	if mode != ErrorMode {
		c.panel.ShowCode(mode.Code())
	}
}

func (c *Controller) setTelemetry(enabled bool) {
	c.proto.SetEnabled(enabled)
	if c.gate != nil {
		c.gate.EnableTelemetry(enabled)
	}
}

// Record the decision and request a kill if it asks for one
func (c *Controller) trip(d fault.Decision) {
	if !d.Kill {
		return
	}
	c.pendingCauses = append(c.pendingCauses, d.Causes...)
	if c.latch.Trip(d.Code) {
		c.logger.Debugf("[FAULT] kill requested : %v", d.Code)
	}
}

func (c *Controller) statusTick() {
	c.statusTicks++
	c.sequenceStep++
	c.dwell++
	switch c.mode {
	case Initialize:
		c.initialize()
	case ErrorMode:
		c.strobeCount--
		if c.strobeCount <= 0 {
			c.strobeCount = c.cfg.StrobePeriod
			c.panel.ToggleStrobe()
		}
	default:
		c.poll()
	}
}

func (c *Controller) initialize() {
	c.logger.Info("[CTRL] initializing")
	c.sensorsEnabled = false
	c.flags.Clear(event.AdcReadyMask)
	if err := c.relays.OpenAll(); err != nil {
		c.logger.Errorf("[RELAY] open all during init : %v", err)
	}
	c.panel.SetStrobe(false)
	c.setTelemetry(false)
	c.panel.ShowCode(Initialize.Code())
	if n := c.bus.Flush(); n > 0 {
		c.logger.Debugf("[CAN] discarded %v queued frames", n)
	}
	if err := c.adc.SelfCalibrate(); err != nil {
		c.logger.Warnf("[SENSOR] ADC self calibration : %v", err)
	}
	c.initMonitors()
	c.monitorErr = [plant.NumBanks]bool{}
	c.ltcError = false
	c.scError = 0
	c.selfCheckTempError = false
	c.tempStatus = fault.TempUnknown
	c.setMode(SelfCheck)
	c.sequenceStep = 0
	c.dwell = 0
	c.sensorsEnabled = true
}

func (c *Controller) initMonitors() {
	for bank, m := range c.monitor {
		var err error
		for attempt := 1; attempt <= c.cfg.MonitorInitAttempts; attempt++ {
			if err = m.Init(); err == nil {
				break
			}
			c.logger.Warnf("[SENSOR] bank %v init attempt %v : %v", bank+1, attempt, err)
		}
		if err != nil {
			c.logger.Errorf("[SENSOR] %v", fmt.Errorf("%w : bank %v, %v", bps.ErrMonitorInit, bank+1, err))
		}
	}
}

// One step of the monitor polling sequence
func (c *Controller) poll() {
	checks := c.agg.Checks()
	in := fault.Inputs{SelfCheck: c.mode == SelfCheck, HasBankStatus: true}
	var readFailed [plant.NumBanks]bool
	for bank, m := range c.monitor {
		status, err := m.ReadStatus()
		flags, ferr := m.ReadFlags()
		if err = errors.Join(err, ferr); err != nil {
			c.logger.Warnf("[SENSOR] %v", fmt.Errorf("%w : bank %v status, %v", bps.ErrMonitorRead, bank+1, err))
			readFailed[bank] = true
		}
		c.state.Banks[bank].Status = status | flags
		in.BankStatus[bank] = status | flags
	}
	c.scError = 0
	if checks.SelfCheck {
		for _, status := range in.BankStatus {
			c.scError |= status
		}
	}
	if err := c.router.StartCurrentSample(); err != nil {
		c.logger.Warnf("[SENSOR] start current sample : %v", err)
	}

	switch step := c.sequenceStep; step {
	case 1:
		c.monitorErr = [plant.NumBanks]bool{}
		if err := c.router.StartTemperatureBatch(); err != nil {
			c.logger.Warnf("[SENSOR] start temperature batch : %v", err)
		}
	case 2, 4, 6:
		bank := (step - 2) / 2
		if err := c.monitor[bank].StartVoltageConversion(); err != nil {
			c.logger.Warnf("[SENSOR] bank %v start conversion : %v", bank+1, err)
			readFailed[bank] = true
		}
	case 3, 5, 7:
		bank := (step - 3) / 2
		if err := c.monitor[bank].ReadVoltages(&c.state.Banks[bank]); err != nil {
			c.logger.Warnf("[SENSOR] %v", fmt.Errorf("%w : bank %v voltages, %v", bps.ErrMonitorRead, bank+1, err))
			readFailed[bank] = true
		}
	}
	for bank, failed := range readFailed {
		if failed && checks.Voltage[bank] {
			c.monitorErr[bank] = true
		}
	}

	c.ltcError = false
	for _, e := range c.monitorErr {
		c.ltcError = c.ltcError || e
	}
	if c.ltcError {
		in.MonitorError = 1
	}
	d := c.agg.Evaluate(in)
	for bank := range c.state.Banks {
		if d.Contains(fault.BankCode(bank)) {
			c.state.Banks[bank].Reset()
		}
	}
	c.trip(d)

	if c.sequenceStep >= c.cfg.SequenceLength {
		c.sequenceStep = 0
		// A pending kill overrides this round's transition
		if !c.latch.Tripped() {
			c.evaluate()
		}
	}
}

func (c *Controller) processSensors() {
	ready := c.flags.Take(event.AdcReadyMask)
	if ready == 0 || !c.sensorsEnabled {
		return
	}
	done := c.router.Process(ready)
	// Current ranks above temperature, and the charge direction of the
	// temperature limit uses the fresh sample
	if done.CurrentSample {
		c.currentSample()
	}
	if done.TemperatureBatch {
		c.temperatureBatch()
	}
}

func (c *Controller) temperatureBatch() {
	status, code, index := fault.ClassifyTemperatures(&c.state.Samples, c.agg.Limits())
	c.tempStatus = status
	if index >= 0 {
		c.state.HottestCode = code
		c.state.HottestIndex = index
	}
	selfCheck := c.mode == SelfCheck
	if !c.agg.TemperatureBlocksSelfCheck(status) {
		c.selfCheckTempError = false
	} else if selfCheck {
		c.selfCheckTempError = true
	}
	if status != fault.TempOK {
		c.logger.Debugf("[SENSOR] temperature status %v, hottest channel %v", status, index)
	}
	c.trip(c.agg.Evaluate(fault.Inputs{
		SelfCheck:      selfCheck,
		HasTemperature: true,
		Temperature:    status,
		Charging:       c.state.Current < 0,
	}))
}

func (c *Controller) currentSample() {
	current := c.state.UpdateCurrent(c.cfg.CurrentScale, c.cfg.CurrentFullScale)
	c.trip(c.agg.Evaluate(fault.Inputs{
		SelfCheck:  c.mode == SelfCheck,
		HasCurrent: true,
		Current:    current,
	}))
}

func (c *Controller) processCan() {
	if c.flags.TestAndClear(event.TelemetryTick) && c.proto.Enabled() {
		c.state.UpdateTelemetry()
		if err := c.proto.SendTelemetry(c.state.Telemetry); err != nil {
			c.logger.Debugf("[CAN] telemetry cycle incomplete : %v", err)
		}
	}
	c.flags.Clear(event.FramePending)
	for n := c.bus.Pending(); n > 0; n-- {
		frame, ok := c.bus.Receive()
		if !ok {
			break
		}
		in := c.proto.Process(frame, c.mode == NormalOp)
		if in.Err != nil {
			c.logger.Warnf("[CAN] frame x%X : %v", frame.ID, in.Err)
		}
		switch {
		case in.ToggleErrorLed:
			c.panel.ToggleError()
		case in.ClearErrorLed && c.mode != ErrorMode:
			c.panel.SetError(false)
		}
	}
}

func (c *Controller) processReports() {
	reports := c.flags.Take(event.ReportMask)
	if reports == 0 || c.reports == nil {
		return
	}
	if reports&event.ReportTemps != 0 {
		console.ReportTemps(c.reports, c.state)
	}
	if reports&event.ReportVolts != 0 {
		console.ReportVolts(c.reports, c.state)
	}
	if reports&event.ReportCurrent != 0 {
		console.ReportCurrent(c.reports, c.state.Current, c.agg.Limits())
	}
	if reports&event.ReportState != 0 {
		console.ReportState(c.reports, int(c.mode.Code()))
	}
}

func (c *Controller) processOperator() bool {
	handled := false
	if c.flags.TestAndClear(event.ManualCharge) {
		c.manualCharge()
		handled = true
	}
	if c.flags.TestAndClear(event.OperatorReset) {
		c.operatorReset()
		handled = true
	}
	return handled
}

func (c *Controller) manualCharge() {
	if c.mode == Initialize || c.mode == ErrorMode {
		c.logger.Warnf("[CTRL] manual charge ignored in %v", c.mode)
		return
	}
	c.logger.Info("[CTRL] manual charge requested")
	if err := c.relays.OpenMotorPaths(); err != nil {
		c.logger.Errorf("[RELAY] open motor paths : %v", err)
	}
	c.panel.SetStrobe(false)
	c.chargeSource |= ChargeManual
	c.setMode(Charge)
	c.sequenceStep = 0
	c.dwell = 0
}

func (c *Controller) operatorReset() {
	c.logger.Info("[CTRL] operator reset")
	if err := c.relays.OpenAll(); err != nil {
		c.logger.Errorf("[RELAY] open all on reset : %v", err)
	}
	c.panel.Clear()
	c.sensorsEnabled = false
	c.chargeSource = 0
	c.pre.Reset()
	c.setMode(Initialize)
	c.sequenceStep = 0
	c.dwell = 0
}

// Apply a kill raised during this iteration
func (c *Controller) applyKill() bool {
	code, ok := c.latch.Take()
	if !ok {
		return false
	}
	causes := c.pendingCauses
	c.pendingCauses = nil
	if err := c.relays.OpenAll(); err != nil {
		c.logger.Errorf("[RELAY] open all on kill : %v", err)
	}
	if c.mode != ErrorMode {
		c.logger.Warnf("[FAULT] kill 0x%02X (%v) in %v | causes %v", uint8(code), code, c.mode, causes)
		c.panel.LatchFault(code.Nibble())
		c.pre.Reset()
		c.setTelemetry(false)
		c.lastFault = code
		c.recordFault(code, causes)
	}
	c.setMode(ErrorMode)
	c.sequenceStep = 0
	c.dwell = 0
	c.strobeCount = c.cfg.StrobePeriod
	return true
}
