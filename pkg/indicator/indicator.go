package indicator

import (
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/wmu-sunseeker/gobps/pkg/output"
)

var codeLeds = [4]output.Name{output.CodeLed0, output.CodeLed1, output.CodeLed2, output.CodeLed3}

// Panel drives the indicator LEDs and the strobe. Outputs are open loop,
// a failed command is logged and the cached state still follows the request.
type Panel struct {
	mu     sync.Mutex
	driver output.Driver
	state  State
	logger *log.Entry
}

// State of the indicator outputs
type State struct {
	Code     uint8 `json:"code"`
	ErrorLed bool  `json:"errorLed"`
	NormalOp bool  `json:"normalOpLed"`
	Strobe   bool  `json:"strobe"`
}

func NewPanel(driver output.Driver) *Panel {
	return &Panel{driver: driver, logger: log.WithField("component", "indicator")}
}

func (p *Panel) set(name output.Name, on bool) {
	if err := p.driver.Set(name, on); err != nil {
		p.logger.Warnf("[CTRL] indicator %v : %v", name, err)
	}
}

// Show a 4 bit code on the code LEDs
func (p *Panel) ShowCode(code uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.showCode(code)
}

func (p *Panel) showCode(code uint8) {
	code &= 0x0F
	for bit, led := range codeLeds {
		p.set(led, code&(1<<bit) != 0)
	}
	p.state.Code = code
}

func (p *Panel) SetError(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.set(output.ErrorLed, on)
	p.state.ErrorLed = on
}

func (p *Panel) ToggleError() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.ErrorLed = !p.state.ErrorLed
	p.set(output.ErrorLed, p.state.ErrorLed)
}

func (p *Panel) SetNormalOp(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.set(output.NormalOpLed, on)
	p.state.NormalOp = on
}

func (p *Panel) ToggleNormalOp() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.NormalOp = !p.state.NormalOp
	p.set(output.NormalOpLed, p.state.NormalOp)
}

func (p *Panel) SetStrobe(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.set(output.Strobe, on)
	p.state.Strobe = on
}

func (p *Panel) ToggleStrobe() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Strobe = !p.state.Strobe
	p.set(output.Strobe, p.state.Strobe)
}

// Latch the fault display : error LED and strobe on, fault nibble shown
func (p *Panel) LatchFault(nibble uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.set(output.ErrorLed, true)
	p.set(output.NormalOpLed, false)
	p.set(output.Strobe, true)
	p.state.ErrorLed = true
	p.state.NormalOp = false
	p.state.Strobe = true
	p.showCode(nibble)
}

// All indicators off
func (p *Panel) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.set(output.ErrorLed, false)
	p.set(output.NormalOpLed, false)
	p.set(output.Strobe, false)
	p.state = State{}
	p.showCode(0)
}

func (p *Panel) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}
