package controller

import (
	"time"

	"github.com/google/uuid"
	"github.com/wmu-sunseeker/gobps/pkg/fault"
	"github.com/wmu-sunseeker/gobps/pkg/indicator"
	"github.com/wmu-sunseeker/gobps/pkg/plant"
	"github.com/wmu-sunseeker/gobps/pkg/protocol"
)

// FaultEvent is one entry of the fault history
type FaultEvent struct {
	ID          string    `json:"id"`
	Code        uint8     `json:"code"`
	Description string    `json:"description"`
	Mode        string    `json:"mode"`
	Causes      []string  `json:"causes"`
	Time        time.Time `json:"time"`
}

type CellReading struct {
	Index int     `json:"index"`
	Volts float32 `json:"volts"`
}

type TemperatureReading struct {
	Channel int     `json:"channel"`
	Code    int32   `json:"code"`
	Celsius float32 `json:"celsius"`
}

type Counters struct {
	RxFrames    uint32 `json:"rxFrames"`
	ErrorFrames uint32 `json:"errorFrames"`
	TxFailures  uint32 `json:"txFailures"`
	RxOverflow  uint32 `json:"rxOverflow"`
	LinkReinit  uint32 `json:"linkReinit"`
	AdcFailures uint32 `json:"adcFailures"`
}

// Snapshot is a read only copy of the controller state, published by the
// main loop after every status tick, operator action and kill.
type Snapshot struct {
	Time              time.Time             `json:"time"`
	Mode              string                `json:"mode"`
	ModeCode          uint8                 `json:"modeCode"`
	Dwell             uint32                `json:"dwell"`
	StatusTicks       uint64                `json:"statusTicks"`
	ChargeSource      string                `json:"chargeSource"`
	LastFault         uint8                 `json:"lastFault"`
	LastFaultText     string                `json:"lastFaultText,omitempty"`
	TemperatureStatus string                `json:"temperatureStatus"`
	Current           float64               `json:"current"`
	PackVoltage       float32               `json:"packVoltage"`
	Cells             []CellReading         `json:"cells"`
	BankStatus        [plant.NumBanks]uint8 `json:"bankStatus"`
	Temperatures      []TemperatureReading  `json:"temperatures"`
	Telemetry         plant.Telemetry       `json:"telemetry"`
	TelemetryEnabled  bool                  `json:"telemetryEnabled"`
	Signals           protocol.Signals      `json:"signals"`
	ClosedRelays      []string              `json:"closedRelays"`
	Indicators        indicator.State       `json:"indicators"`
	CapacitorCharged  bool                  `json:"capacitorCharged"`
	ContactorClosed   bool                  `json:"contactorClosed"`
	Counters          Counters              `json:"counters"`
}

// Latest published snapshot, safe from any goroutine
func (c *Controller) Snapshot() Snapshot {
	return *c.snapshot.Load()
}

// Register a listener called with every published snapshot.
// Listeners run on the main loop and must not block.
func (c *Controller) OnSnapshot(listener func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, listener)
}

// Fault history, oldest first, safe from any goroutine
func (c *Controller) Faults() []FaultEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	faults := make([]FaultEvent, len(c.faultLog))
	copy(faults, c.faultLog)
	return faults
}

func (c *Controller) recordFault(code fault.Code, causes []fault.Code) {
	event := FaultEvent{
		ID:          uuid.NewString(),
		Code:        uint8(code),
		Description: code.String(),
		Mode:        c.mode.String(),
		Time:        time.Now(),
	}
	for _, cause := range causes {
		event.Causes = append(event.Causes, cause.String())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faultLog = append(c.faultLog, event)
	if limit := c.cfg.FaultLogSize; limit > 0 && len(c.faultLog) > limit {
		c.faultLog = c.faultLog[len(c.faultLog)-limit:]
	}
}

func (c *Controller) publish() {
	s := &Snapshot{
		Time:              time.Now(),
		Mode:              c.mode.String(),
		ModeCode:          c.mode.Code(),
		Dwell:             c.dwell,
		StatusTicks:       c.statusTicks,
		ChargeSource:      c.chargeSource.String(),
		LastFault:         uint8(c.lastFault),
		TemperatureStatus: c.tempStatus.String(),
		Current:           c.state.Current,
		PackVoltage:       c.state.Telemetry.PackVoltage(),
		Telemetry:         c.state.Telemetry,
		TelemetryEnabled:  c.proto.Enabled(),
		Signals:           c.proto.Signals(),
		ClosedRelays:      c.relays.ClosedRelays(),
		Indicators:        c.panel.State(),
		CapacitorCharged:  c.pre.CapacitorCharged(),
		ContactorClosed:   c.pre.ContactorClosed(),
		Counters: Counters{
			RxFrames:    c.proto.ReceiveCount(),
			ErrorFrames: c.proto.ErrorCount(),
			TxFailures:  c.proto.TxFailures(),
			RxOverflow:  c.bus.RxOverflow(),
			LinkReinit:  c.bus.ReinitCount(),
			AdcFailures: c.router.ReadFailures(),
		},
	}
	if c.lastFault != fault.NoFault {
		s.LastFaultText = c.lastFault.String()
	}
	s.Cells = make([]CellReading, 0, plant.NumCells)
	for i := 0; i < plant.NumCells; i++ {
		s.Cells = append(s.Cells, CellReading{Index: i, Volts: plant.CellVolts(c.state.Cell(i))})
	}
	for bank := range c.state.Banks {
		s.BankStatus[bank] = c.state.Banks[bank].Status
	}
	for _, ch := range plant.ChannelsOf(plant.ChannelThermistor) {
		code := c.state.Samples[ch]
		s.Temperatures = append(s.Temperatures, TemperatureReading{Channel: ch, Code: code, Celsius: plant.TemperatureCelsius(code)})
	}
	c.snapshot.Store(s)

	c.mu.Lock()
	listeners := c.listeners
	c.mu.Unlock()
	for _, listener := range listeners {
		listener(*s)
	}
}
