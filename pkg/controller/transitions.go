package controller

import (
	"github.com/wmu-sunseeker/gobps/pkg/fault"
	"github.com/wmu-sunseeker/gobps/pkg/plant"
	"github.com/wmu-sunseeker/gobps/pkg/precharge"
)

// A transition of the mode state machine, checked once per polling round.
// Rows are evaluated in order and the first row whose guard holds fires.
type transition struct {
	from   Mode
	to     Mode
	event  string
	guard  func(c *Controller) bool
	action func(c *Controller)
}

// Actions run on every polling round while in a mode, before its transitions
var modeActions = map[Mode]func(c *Controller){
	BpsReady:   (*Controller).holdBpsReady,
	ArrayReady: (*Controller).holdArrayReady,
	NormalOp:   (*Controller).holdNormalOp,
	Charge:     (*Controller).holdCharge,
}

var transitions = []transition{
	{SelfCheck, SelfCheck, "monitor error, re-init", (*Controller).monitorFault, (*Controller).reinitMonitors},
	{SelfCheck, BpsReady, "self check passed", (*Controller).selfCheckPassed, nil},
	{BpsReady, ArrayReady, "battery closed", func(c *Controller) bool { return c.dwell >= c.cfg.BpsReadyDwell }, nil},
	{ArrayReady, CanCheck, "array closed", func(c *Controller) bool { return c.dwell >= c.cfg.ArrayReadyDwell }, nil},
	{CanCheck, Charge, "DC charge", (*Controller).dcChargeRequested, (*Controller).enterDcCharge},
	{CanCheck, Charge, "AC charge", (*Controller).acChargeRequested, (*Controller).enterAcCharge},
	{CanCheck, Precharge, "precharge", (*Controller).prechargeAllowed, (*Controller).startPrecharge},
	{CanCheck, CanCheck, "nothing requested", (*Controller).canCheckElapsed, (*Controller).restartCanCheck},
	{Precharge, NormalOp, "precharge done", (*Controller).prechargeComplete, (*Controller).completePrecharge},
	{Charge, CanCheck, "charge released", (*Controller).chargeReleased, (*Controller).leaveCharge},
}

// Run the mode state machine once
func (c *Controller) evaluate() {
	if hold := modeActions[c.mode]; hold != nil {
		hold(c)
	}
	for _, t := range transitions {
		if t.from != c.mode || !t.guard(c) {
			continue
		}
		c.logger.Debugf("[CTRL] %v : %v", c.mode, t.event)
		if t.action != nil {
			t.action(c)
		}
		c.setMode(t.to)
		return
	}
}

func (c *Controller) holdBpsReady() {
	if err := c.relays.CloseBattery(); err != nil {
		c.logger.Errorf("[RELAY] close battery : %v", err)
	}
}

func (c *Controller) holdArrayReady() {
	if err := c.relays.CloseArray(); err != nil {
		c.logger.Errorf("[RELAY] close array : %v", err)
	}
	c.setTelemetry(true)
	c.proto.ResetReceiveCount()
	c.oldRxCount = 0
}

func (c *Controller) holdNormalOp() {
	c.panel.ToggleNormalOp()
	if c.dwell < c.cfg.CanLivenessWindow {
		return
	}
	c.dwell = 0
	rx := c.proto.ReceiveCount()
	c.trip(c.agg.Evaluate(fault.Inputs{CanSilent: rx == c.oldRxCount}))
	c.oldRxCount = rx
}

func (c *Controller) holdCharge() {
	c.panel.ToggleNormalOp()
}

func (c *Controller) monitorFault() bool {
	return c.scError != 0 || c.ltcError
}

func (c *Controller) selfCheckPassed() bool {
	return !c.selfCheckTempError
}

func (c *Controller) canCheckElapsed() bool {
	return c.dwell >= c.cfg.CanCheckDwell
}

func (c *Controller) dcChargeRequested() bool {
	return c.canCheckElapsed() && c.proto.Signals().DcCharge
}

func (c *Controller) acChargeRequested() bool {
	return c.canCheckElapsed() && c.proto.Signals().AcCharge
}

func (c *Controller) prechargeAllowed() bool {
	if !c.canCheckElapsed() {
		return false
	}
	s := c.proto.Signals()
	return s.PrechargeRequest || s.CarEnable || !c.agg.Checks().CanLink
}

// Advance the precharge sequencer, true once both stages are through
func (c *Controller) prechargeComplete() bool {
	if c.dwell < c.cfg.PrechargeDwell {
		return false
	}
	if !c.agg.Checks().Precharge {
		c.pre.Override()
	}
	battery, tap, contactor := c.state.PrechargeSignals()
	return c.pre.Step(precharge.Signals{Battery: battery, Tap: tap, Contactor: contactor})
}

func (c *Controller) chargeReleased() bool {
	if c.chargeSource&ChargeManual != 0 {
		return false
	}
	s := c.proto.Signals()
	return (c.chargeSource&ChargeDC != 0 && !s.DcCharge) || (c.chargeSource&ChargeAC != 0 && !s.AcCharge)
}

func (c *Controller) reinitMonitors() {
	c.logger.Warnf("[SENSOR] self check failed (status 0x%02X, comm %v), re-init monitors", c.scError, c.ltcError)
	c.initMonitors()
	c.monitorErr = [plant.NumBanks]bool{}
	c.ltcError = false
	c.scError = 0
}

func (c *Controller) enterDcCharge() {
	if err := c.relays.OpenMotorPaths(); err != nil {
		c.logger.Errorf("[RELAY] open motor paths : %v", err)
	}
	c.chargeSource |= ChargeDC
}

func (c *Controller) enterAcCharge() {
	if err := c.relays.OpenMotorPaths(); err != nil {
		c.logger.Errorf("[RELAY] open motor paths : %v", err)
	}
	c.chargeSource |= ChargeAC
}

func (c *Controller) startPrecharge() {
	c.proto.ClearPrechargeRequest()
	c.pre.Reset()
	if err := c.relays.StartPrecharge(); err != nil {
		c.logger.Errorf("[PRECHARGE] close precharge path : %v", err)
	}
}

func (c *Controller) restartCanCheck() {
	c.dwell = 0
}

func (c *Controller) completePrecharge() {
	c.logger.Info("[PRECHARGE] motor contactor closed")
	if err := c.relays.PrechargeHandoff(); err != nil {
		c.logger.Errorf("[PRECHARGE] handoff : %v", err)
	}
	if err := c.proto.SendPrechargeDone(); err != nil {
		c.logger.Warnf("[PRECHARGE] precharge done notification : %v", err)
	}
}

func (c *Controller) leaveCharge() {
	c.logger.Infof("[CTRL] %v charge released", c.chargeSource)
	c.pre.Reset()
	c.chargeSource = 0
}
