package can

import (
	"errors"
	"fmt"
	"sort"
)

var ErrNotConnected = errors.New("no active connection")

// SocketCAN style identifier flags
const (
	CanEffFlag uint32 = 0x80000000 // extended frame format
	CanRtrFlag uint32 = 0x40000000 // remote transmission request
	CanErrFlag uint32 = 0x20000000 // error message frame
	CanSffMask uint32 = 0x000007FF
	CanEffMask uint32 = 0x1FFFFFFF
)

// CAN bus errors reported through error frames
const (
	CanErrorTxWarning   = 0x0001 // CAN transmitter warning
	CanErrorTxPassive   = 0x0002 // CAN transmitter passive
	CanErrorTxBusOff    = 0x0004 // CAN transmitter bus off
	CanErrorTxOverflow  = 0x0008 // CAN transmitter overflow
	CanErrorRxWarning   = 0x0100 // CAN receiver warning
	CanErrorRxPassive   = 0x0200 // CAN receiver passive
	CanErrorRxOverflow  = 0x0800 // CAN receiver overflow
	CanErrorWarnPassive = 0x0303 // Combination
)

// A CAN frame
type Frame struct {
	ID    uint32
	Flags uint8
	DLC   uint8
	Data  [8]byte
}

func NewFrame(id uint32, flags uint8, dlc uint8) Frame {
	return Frame{ID: id, Flags: flags, DLC: dlc}
}

// Create a remote transmission request for the given standard id
func NewRemoteRequest(id uint32) Frame {
	return Frame{ID: (id & CanSffMask) | CanRtrFlag}
}

// Standard or extended address without flag bits
func (f Frame) Address() uint32 {
	if f.ID&CanEffFlag != 0 {
		return f.ID & CanEffMask
	}
	return f.ID & CanSffMask
}

// Status of a received frame
type Status uint8

const (
	StatusOk Status = iota
	StatusRemoteRequest
	StatusError
)

var statusMap = map[Status]string{
	StatusOk:            "OK",
	StatusRemoteRequest: "RTR",
	StatusError:         "ERROR",
}

func (s Status) String() string {
	str, ok := statusMap[s]
	if !ok {
		return "UNKNOWN"
	}
	return str
}

// Classify a received frame. Error frames take precedence over RTR.
func (f Frame) Status() Status {
	switch {
	case f.ID&CanErrFlag != 0:
		return StatusError
	case f.ID&CanRtrFlag != 0:
		return StatusRemoteRequest
	default:
		return StatusOk
	}
}

// Interface for handling a received CAN frame
type FrameListener interface {
	Handle(frame Frame)
}

// A CAN Bus interface
type Bus interface {
	Connect(...any) error                   // Connect to the CAN bus
	Disconnect() error                      // Disconnect from CAN bus
	Send(frame Frame) error                 // Send a frame on the bus
	Subscribe(callback FrameListener) error // Subscribe to all received CAN frames
}

// Register a new CAN bus interface type
// This should be called inside an init() function of plugin
func RegisterInterface(interfaceType string, newInterface NewInterfaceFunc) {
	interfaceRegistry[interfaceType] = newInterface
}

type NewInterfaceFunc func(channel string) (Bus, error)

var interfaceRegistry = make(map[string]NewInterfaceFunc)

// Names of all registered interfaces, sorted
func Interfaces() []string {
	names := make([]string, 0, len(interfaceRegistry))
	for name := range interfaceRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create a new CAN bus with given interface
// Currently supported : socketcan, socketcanv2, socketcanv3, socketcanring, virtual
func NewBus(canInterface string, channel string) (Bus, error) {
	createInterface, ok := interfaceRegistry[canInterface]
	if !ok {
		return nil, fmt.Errorf("unsupported interface : %v", canInterface)
	}
	return createInterface(channel)
}
