package socketcan

import (
	sockcan "github.com/brutella/can"
	log "github.com/sirupsen/logrus"
	can "github.com/wmu-sunseeker/gobps/pkg/can"
)

// Basic wrapper for socketcan it uses the implementation
// that can be found here : https://github.com/brutella/can

func init() {
	can.RegisterInterface("socketcan", NewSocketCanBus)
}

type SocketcanBus struct {
	name       string
	bus        *sockcan.Bus
	rxCallback can.FrameListener
}

// "Connect" implementation of Bus interface
// The underlying socket is re-opened if a previous Disconnect closed it
func (socketcan *SocketcanBus) Connect(...any) error {
	if socketcan.bus == nil {
		bus, err := sockcan.NewBusForInterfaceWithName(socketcan.name)
		if err != nil {
			return err
		}
		socketcan.bus = bus
		if socketcan.rxCallback != nil {
			socketcan.bus.Subscribe(socketcan)
		}
	}
	bus := socketcan.bus
	go func() {
		err := bus.ConnectAndPublish()
		if err != nil {
			log.Debugf("[CAN][%v] reception stopped : %v", socketcan.name, err)
		}
	}()
	return nil
}

// "Disconnect" implementation of Bus interface
func (socketcan *SocketcanBus) Disconnect() error {
	if socketcan.bus == nil {
		return nil
	}
	err := socketcan.bus.Disconnect()
	socketcan.bus = nil
	return err
}

// "Send" implementation of Bus interface
func (socketcan *SocketcanBus) Send(frame can.Frame) error {
	if socketcan.bus == nil {
		return can.ErrNotConnected
	}
	return socketcan.bus.Publish(
		sockcan.Frame{
			ID:     frame.ID,
			Length: frame.DLC,
			Flags:  frame.Flags,
			Res0:   0,
			Res1:   0,
			Data:   frame.Data,
		})
}

// "Subscribe" implementation of Bus interface
func (socketcan *SocketcanBus) Subscribe(rxCallback can.FrameListener) error {
	socketcan.rxCallback = rxCallback
	if socketcan.bus == nil {
		return nil
	}
	// brutella/can defines a "Handle" interface for handling received CAN frames
	socketcan.bus.Subscribe(socketcan)
	return nil
}

// brutella/can specific "Handle" implementation
func (socketcan *SocketcanBus) Handle(frame sockcan.Frame) {
	socketcan.rxCallback.Handle(can.Frame{ID: frame.ID, DLC: frame.Length, Flags: frame.Flags, Data: frame.Data})
}

func NewSocketCanBus(name string) (can.Bus, error) {
	bus, err := sockcan.NewBusForInterfaceWithName(name)
	if err != nil {
		return nil, err
	}
	return &SocketcanBus{name: name, bus: bus}, nil
}
