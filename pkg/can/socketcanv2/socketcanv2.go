package socketcanv2

import (
	"context"
	"fmt"
	"net"
	"sync"
	"unsafe"

	log "github.com/sirupsen/logrus"
	can "github.com/wmu-sunseeker/gobps/pkg/can"
	"golang.org/x/sys/unix"
)

// Raw SocketCAN implementation. Unlike the brutella based backend,
// this one enables the error frame mask so that bus errors reach the
// protocol handler as frames carrying [can.CanErrFlag].

const SocketCANFrameSize = 16

func init() {
	can.RegisterInterface("socketcanv2", NewSocketCanBus)
}

type CANframe struct {
	id   uint32
	dlc  uint8
	pad  uint8
	res0 uint8
	res1 uint8
	data [8]uint8
}

var defaultTimeVal = unix.Timeval{}

func init() {
	// Field types are architecture dependent
	defaultTimeVal.Usec = 100_000 // 100 ms
}

type SocketcanBus struct {
	mu         sync.Mutex
	channel    string
	fd         int
	rxCallback can.FrameListener
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// Create a new SocketCAN bus. This expects the CAN channel to be up.
// e.g. running "ip a" should show can0 or something similar.
func NewSocketCanBus(channel string) (can.Bus, error) {
	if _, err := net.InterfaceByName(channel); err != nil {
		return nil, err
	}
	return &SocketcanBus{channel: channel, fd: -1}, nil
}

func (s *SocketcanBus) open() error {
	iface, err := net.InterfaceByName(s.channel)
	if err != nil {
		return err
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return fmt.Errorf("failed to create CAN socket : %w", err)
	}
	err = unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &defaultTimeVal)
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("failed to set read timeout : %w", err)
	}
	err = unix.SetsockoptInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_ERR_FILTER, unix.CAN_ERR_MASK)
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("failed to set error filter : %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: iface.Index}); err != nil {
		unix.Close(fd)
		return err
	}
	s.fd = fd
	return nil
}

// "Connect" implementation of Bus interface
func (s *SocketcanBus) Connect(...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	if err := s.open(); err != nil {
		return err
	}
	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.processIncoming(ctx)
	}()
	return nil
}

// "Disconnect" implementation of Bus interface
func (s *SocketcanBus) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	s.wg.Wait()
	s.cancel = nil
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}

// "Send" implementation of Bus interface
func (s *SocketcanBus) Send(frame can.Frame) error {
	if s.fd < 0 {
		return can.ErrNotConnected
	}
	canFrame := &CANframe{}
	canFrame.id = frame.ID
	canFrame.dlc = frame.DLC
	canFrame.pad = frame.Flags
	canFrame.data = frame.Data

	rawData := (*(*[SocketCANFrameSize]byte)(unsafe.Pointer(canFrame)))[:]
	n, err := unix.Write(s.fd, rawData)
	if err != nil {
		return err
	}
	if n != SocketCANFrameSize {
		return fmt.Errorf("short write : %v bytes", n)
	}
	return nil
}

// process incoming frames. This is meant to be run inside of a goroutine
func (s *SocketcanBus) processIncoming(ctx context.Context) {
	rxFrame := make([]byte, SocketCANFrameSize)
	for {
		select {
		case <-ctx.Done():
			log.Infof("[CAN][%v] exiting bus reception, closed", s.channel)
			return
		default:
			n, err := unix.Read(s.fd, rxFrame)
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
				continue
			}
			if n != SocketCANFrameSize || err != nil {
				log.Warnf("[CAN][%v] exiting bus reception : %v", s.channel, err)
				return
			}
			frame := (*CANframe)(unsafe.Pointer(&rxFrame[0]))
			if s.rxCallback != nil {
				s.rxCallback.Handle(can.Frame{ID: frame.id, DLC: frame.dlc, Flags: frame.pad, Data: frame.data})
			}
		}
	}
}

// "Subscribe" implementation of Bus interface
func (s *SocketcanBus) Subscribe(rxCallback can.FrameListener) error {
	s.rxCallback = rxCallback
	return nil
}

// Enable own reception on the bus. CAN be useful when testing for example
func (s *SocketcanBus) SetReceiveOwn(enabled bool) error {
	enabledInt := 0
	if enabled {
		enabledInt = 1
	}
	log.Infof("[CAN][%v] setting option 'CAN_RAW_RECV_OWN_MSGS' to %v", s.channel, enabled)
	return unix.SetsockoptInt(s.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_RECV_OWN_MSGS, enabledInt)
}

// Add some filtering to CAN bus
func (s *SocketcanBus) SetFilters(filters []unix.CanFilter) error {
	log.Infof("[CAN][%v] setting option 'CAN_RAW_FILTER' %v", s.channel, filters)
	return unix.SetsockoptCanRawFilter(s.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, filters)
}
