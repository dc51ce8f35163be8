package output

import (
	"fmt"
	"sync"
)

// Name of a discrete open-loop output of the controller board
type Name uint8

const (
	BatteryRelay       Name = iota // battery main relay
	ArrayRelay                     // solar array relay
	MotorContactor                 // motor controller main contactor
	PrechargeContactor             // motor controller precharge contactor
	ExternalPrecharge              // external precharge sense relay
	ErrorLed
	NormalOpLed
	CodeLed0 // mode / fault code, least significant bit
	CodeLed1
	CodeLed2
	CodeLed3
	Strobe
	NumOutputs
)

var outputNames = map[Name]string{
	BatteryRelay:       "battery",
	ArrayRelay:         "array",
	MotorContactor:     "motor-contactor",
	PrechargeContactor: "precharge-contactor",
	ExternalPrecharge:  "external-precharge",
	ErrorLed:           "error-led",
	NormalOpLed:        "normal-op-led",
	CodeLed0:           "code-led-0",
	CodeLed1:           "code-led-1",
	CodeLed2:           "code-led-2",
	CodeLed3:           "code-led-3",
	Strobe:             "strobe",
}

func (n Name) String() string {
	if s, ok := outputNames[n]; ok {
		return s
	}
	return fmt.Sprintf("output-%d", uint8(n))
}

// Is the output a power relay
func (n Name) IsRelay() bool {
	return n <= ExternalPrecharge
}

// Parse an output name as printed by String
func ParseName(s string) (Name, error) {
	for n, str := range outputNames {
		if str == s {
			return n, nil
		}
	}
	return 0, fmt.Errorf("unknown output %q", s)
}

// Driver sets discrete outputs. Commands are idempotent and unacknowledged.
type Driver interface {
	Set(name Name, on bool) error
}

// A command as issued to a driver
type Command struct {
	Name Name
	On   bool
}

func (c Command) String() string {
	state := "off"
	if c.On {
		state = "on"
	}
	return c.Name.String() + "=" + state
}

// Memory is an in-process driver keeping the output image and the
// command history. Used by the simulator and tests.
type Memory struct {
	mu      sync.Mutex
	state   [NumOutputs]bool
	history []Command
	fail    map[Name]error
}

func NewMemory() *Memory {
	return &Memory{fail: map[Name]error{}}
}

func (m *Memory) Set(name Name, on bool) error {
	if name >= NumOutputs {
		return fmt.Errorf("unknown output %v", name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, Command{Name: name, On: on})
	if err := m.fail[name]; err != nil {
		return err
	}
	m.state[name] = on
	return nil
}

// Make every command on the output fail, nil to restore
func (m *Memory) FailOn(name Name, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, name)
		return
	}
	m.fail[name] = err
}

func (m *Memory) Get(name Name) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state[name]
}

// Copy of the output image
func (m *Memory) Image() [NumOutputs]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Copy of the command history
func (m *Memory) History() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Command(nil), m.history...)
}

// Only the relay commands of the history
func (m *Memory) RelayHistory() []Command {
	cmds := []Command{}
	for _, c := range m.History() {
		if c.Name.IsRelay() {
			cmds = append(cmds, c)
		}
	}
	return cmds
}

func (m *Memory) ClearHistory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = nil
}
