package fault

import (
	log "github.com/sirupsen/logrus"
	"github.com/wmu-sunseeker/gobps/pkg/plant"
)

// Inputs of one evaluation. Only the parts flagged as fresh are checked,
// the evaluation runs once per status tick and again whenever a current
// sample or temperature batch completes.
type Inputs struct {
	SelfCheck bool

	HasBankStatus bool
	BankStatus    [plant.NumBanks]uint8 // status | flags of each bank
	MonitorError  uint8                 // OR of measurement error flags

	HasCurrent bool
	Current    float64 // mA, positive is discharge

	HasTemperature bool
	Temperature    TemperatureStatus
	Charging       bool // latest current is negative

	CanSilent bool // no vehicle frame during the liveness window
}

// Decision of one evaluation. Code is the first cause found, Causes
// lists every cause in evaluation order.
type Decision struct {
	Kill   bool
	Code   Code
	Causes []Code
}

func (d *Decision) add(code Code) {
	if !d.Kill {
		d.Kill = true
		d.Code = code
	}
	d.Causes = append(d.Causes, code)
}

// Has the decision been caused by the given code
func (d Decision) Contains(code Code) bool {
	for _, c := range d.Causes {
		if c == code {
			return true
		}
	}
	return false
}

// Aggregator turns measurements into kill decisions
type Aggregator struct {
	checks Checks
	limits Limits
	logger *log.Entry
}

func NewAggregator(checks Checks, limits Limits) *Aggregator {
	return &Aggregator{
		checks: checks,
		limits: limits,
		logger: log.WithField("component", "fault"),
	}
}

func (a *Aggregator) Checks() Checks {
	return a.checks
}

func (a *Aggregator) Limits() Limits {
	return a.limits
}

// Evaluate is pure and may run several times per iteration
func (a *Aggregator) Evaluate(in Inputs) Decision {
	d := Decision{}
	if in.HasBankStatus && !in.SelfCheck {
		for bank, status := range in.BankStatus {
			if status != 0 && a.checks.Monitor[bank] {
				d.add(BankCode(bank))
			}
		}
		if in.MonitorError != 0 {
			d.add(MonitorComm)
		}
	}
	if in.HasCurrent && a.checks.Current {
		if in.Current >= a.limits.MaxCurrentDischarge {
			d.add(OverCurrentDischarge)
		}
		if in.Current <= a.limits.MaxCurrentCharge {
			d.add(OverCurrentCharge)
		}
	}
	if in.HasTemperature && a.checks.Temperature && !in.SelfCheck {
		switch {
		case in.Temperature >= TempNoSensor:
			d.add(TemperatureSensor)
		case in.Temperature == TempAbove60:
			d.add(OverTempDischarge)
		case in.Temperature == TempAbove45 && in.Charging:
			d.add(OverTempCharge)
		}
	}
	if in.CanSilent && a.checks.CanLink {
		d.add(CanLinkSilent)
	}
	if d.Kill {
		a.logger.Debugf("[FAULT] evaluation requests kill %v | causes %v", d.Code, d.Causes)
	}
	return d
}

// Does the temperature batch block leaving self check
func (a *Aggregator) TemperatureBlocksSelfCheck(status TemperatureStatus) bool {
	return a.checks.Temperature && status != TempOK && status != TempUnknown
}
