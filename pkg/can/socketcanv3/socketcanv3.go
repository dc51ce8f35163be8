//go:build linux

package socketcanv3

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

// Raw SocketCAN backend reading frames in batches with recvmmsg.
// Suited to busy buses where one syscall per frame costs too much.

const (
	canFrameSize = 16
	// Frames fetched per syscall at most
	msgBatchSize = 64
)

func init() {
	can.RegisterInterface("socketcanv3", NewBus)
}

// Kernel struct can_frame
type canFrame struct {
	ID    uint32
	Len   uint8
	Flags uint8
	_     [2]uint8
	Data  [8]uint8
}

var defaultTimeVal = unix.Timeval{}

func init() {
	// Field types are architecture dependent
	defaultTimeVal.Usec = 100_000 // 100 ms
}

type Bus struct {
	mu         sync.Mutex
	channel    string
	fd         int
	rxCallback can.FrameListener
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	received   uint64
}

// Create a new batched SocketCAN bus. The channel must exist and be up.
func NewBus(channel string) (can.Bus, error) {
	if _, err := net.InterfaceByName(channel); err != nil {
		return nil, err
	}
	return &Bus{channel: channel, fd: -1}, nil
}

func (b *Bus) open() error {
	iface, err := net.InterfaceByName(b.channel)
	if err != nil {
		return err
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return fmt.Errorf("failed to create CAN socket : %w", err)
	}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &defaultTimeVal); err != nil {
		unix.Close(fd)
		return fmt.Errorf("failed to set read timeout : %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_ERR_FILTER, unix.CAN_ERR_MASK); err != nil {
		unix.Close(fd)
		return fmt.Errorf("failed to set error filter : %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: iface.Index}); err != nil {
		unix.Close(fd)
		return err
	}
	b.fd = fd
	return nil
}

// "Connect" implementation of Bus interface
func (b *Bus) Connect(...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return nil
	}
	if err := b.open(); err != nil {
		return err
	}
	var ctx context.Context
	ctx, b.cancel = context.WithCancel(context.Background())
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.processIncoming(ctx)
	}()
	return nil
}

// "Disconnect" implementation of Bus interface
func (b *Bus) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel == nil {
		return nil
	}
	b.cancel()
	b.wg.Wait()
	b.cancel = nil
	err := unix.Close(b.fd)
	b.fd = -1
	return err
}

// "Send" implementation of Bus interface
func (b *Bus) Send(frame can.Frame) error {
	if b.fd < 0 {
		return can.ErrNotConnected
	}
	raw := canFrame{ID: frame.ID, Len: frame.DLC, Flags: frame.Flags, Data: frame.Data}
	n, err := unix.Write(b.fd, (*(*[canFrameSize]byte)(unsafe.Pointer(&raw)))[:])
	if err != nil {
		return err
	}
	if n != canFrameSize {
		return fmt.Errorf("short write : %v bytes", n)
	}
	return nil
}

// Receive batches until the context is done. Run inside of a goroutine.
func (b *Bus) processIncoming(ctx context.Context) {
	if err := unix.SetNonblock(b.fd, false); err != nil {
		log.Errorf("[CAN][%v] failed to set blocking mode : %v", b.channel, err)
		return
	}
	frames := make([]canFrame, msgBatchSize)
	iovecs := make([]unix.Iovec, msgBatchSize)
	mmsgs := make([]Mmsghdr, msgBatchSize)
	for i := range msgBatchSize {
		iovecs[i].Base = (*byte)(unsafe.Pointer(&frames[i]))
		iovecs[i].SetLen(canFrameSize)
		mmsgs[i].Hdr.Iov = &iovecs[i]
		mmsgs[i].Hdr.Iovlen = 1
	}
	timeout := unix.Timespec{Nsec: 10_000_000} // 10 ms

	for {
		select {
		case <-ctx.Done():
			log.Infof("[CAN][%v] exiting bus reception after %v frames", b.channel, b.received)
			return
		default:
		}
		n, _, errno := unix.Syscall6(
			unix.SYS_RECVMMSG,
			uintptr(b.fd),
			uintptr(unsafe.Pointer(&mmsgs[0])),
			uintptr(msgBatchSize),
			0,
			uintptr(unsafe.Pointer(&timeout)),
			0,
		)
		if errno != 0 {
			if errno == unix.EAGAIN || errno == unix.EWOULDBLOCK || errno == unix.EINTR {
				continue
			}
			log.Warnf("[CAN][%v] exiting bus reception : %v", b.channel, errno)
			return
		}
		if n == 0 {
			log.Warnf("[CAN][%v] socket closed", b.channel)
			return
		}
		for i := range int(n) {
			f := frames[i]
			b.received++
			if b.rxCallback != nil {
				b.rxCallback.Handle(can.Frame{ID: f.ID, DLC: f.Len, Flags: f.Flags, Data: f.Data})
			}
		}
	}
}

// "Subscribe" implementation of Bus interface
func (b *Bus) Subscribe(rxCallback can.FrameListener) error {
	b.rxCallback = rxCallback
	return nil
}

// Add some filtering to CAN bus, bus must be connected
func (b *Bus) SetFilters(filters []unix.CanFilter) error {
	if b.fd < 0 {
		return can.ErrNotConnected
	}
	log.Infof("[CAN][%v] setting option 'CAN_RAW_FILTER' %v", b.channel, filters)
	return unix.SetsockoptCanRawFilter(b.fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, filters)
}
