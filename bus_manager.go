package bps

import (
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	can "github.com/wmu-sunseeker/gobps/pkg/can"
)

const DefaultRxQueueSize = 32

// Bus manager is a wrapper around the CAN bus interface.
// Received frames are copied into a bounded queue drained by the main loop.
// The receive path never blocks : when the queue is full the frame is dropped and counted.
type BusManager struct {
	mu          sync.Mutex
	bus         can.Bus
	rxQueue     chan can.Frame
	notify      func()
	rxOverflow  atomic.Uint32
	txErrors    atomic.Uint32
	reinitCount atomic.Uint32
}

func NewBusManager(bus can.Bus, queueSize int) *BusManager {
	if queueSize <= 0 {
		queueSize = DefaultRxQueueSize
	}
	return &BusManager{
		bus:     bus,
		rxQueue: make(chan can.Frame, queueSize),
	}
}

// Implements the FrameListener interface
// This handles all received CAN frames from Bus
func (bm *BusManager) Handle(frame can.Frame) {
	bm.mu.Lock()
	notify := bm.notify
	bm.mu.Unlock()

	select {
	case bm.rxQueue <- frame:
	default:
		bm.rxOverflow.Add(1)
		log.Debugf("[CAN] rx queue full, dropped frame %x", frame.ID)
	}
	if notify != nil {
		notify()
	}
}

// Connect the underlying bus and subscribe to all of its frames
func (bm *BusManager) Connect() error {
	bus := bm.Bus()
	if err := bus.Subscribe(bm); err != nil {
		return err
	}
	return bus.Connect()
}

// Disconnect the underlying bus
func (bm *BusManager) Disconnect() error {
	return bm.Bus().Disconnect()
}

// Re-initialize the link after a transmit failure.
// Frames still queued are discarded.
func (bm *BusManager) Reinit() error {
	bm.reinitCount.Add(1)
	bus := bm.Bus()
	if err := bus.Disconnect(); err != nil {
		log.Warnf("[CAN] disconnect during re-init : %v", err)
	}
	bm.Flush()
	if err := bus.Subscribe(bm); err != nil {
		return err
	}
	err := bus.Connect()
	if err != nil {
		log.Errorf("[CAN] re-init failed : %v", err)
		return err
	}
	log.Infof("[CAN] link re-initialized")
	return nil
}

func (bm *BusManager) Bus() can.Bus {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	return bm.bus
}

// Function called after each received frame, must not block
func (bm *BusManager) SetNotify(notify func()) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.notify = notify
}

// Send a CAN message
func (bm *BusManager) Send(frame can.Frame) error {
	err := bm.Bus().Send(frame)
	if err != nil {
		bm.txErrors.Add(1)
		log.Warnf("[CAN] send %x failed : %v", frame.ID, err)
	}
	return err
}

// Get next received frame without blocking
func (bm *BusManager) Receive() (can.Frame, bool) {
	select {
	case frame := <-bm.rxQueue:
		return frame, true
	default:
		return can.Frame{}, false
	}
}

// Number of frames waiting to be processed
func (bm *BusManager) Pending() int {
	return len(bm.rxQueue)
}

// Discard all queued frames, returns the number discarded
func (bm *BusManager) Flush() int {
	n := 0
	for {
		select {
		case <-bm.rxQueue:
			n++
		default:
			return n
		}
	}
}

// Frames dropped because the receive queue was full
func (bm *BusManager) RxOverflow() uint32 {
	return bm.rxOverflow.Load()
}

// Failed transmissions
func (bm *BusManager) TxErrors() uint32 {
	return bm.txErrors.Load()
}

// Number of link re-initializations
func (bm *BusManager) ReinitCount() uint32 {
	return bm.reinitCount.Load()
}
