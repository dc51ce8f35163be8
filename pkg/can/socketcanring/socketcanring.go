//go:build linux

package socketcanring

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"
	"unsafe"

	log "github.com/sirupsen/logrus"
	can "github.com/wmu-sunseeker/gobps/pkg/can"
	"golang.org/x/sys/unix"
)

// SocketCAN backend receiving through an AF_PACKET ring buffer mapped
// from the kernel, frames are swept on a polling period. Sending uses
// a regular CAN_RAW socket.

const (
	ethPCan       = 0x000C
	tpacketV1     = 1
	canFrameSize  = 16
	packetReserve = 4

	ringBlockSize = 4096
	ringFrameSize = 256
	ringBlockNr   = 64

	DefaultPollPeriod = 10 * time.Millisecond
)

func init() {
	can.RegisterInterface("socketcanring", NewBus)
}

// Kernel struct can_frame
type canFrame struct {
	ID    uint32
	Len   uint8
	Flags uint8
	_     [2]byte
	Data  [8]byte
}

type Bus struct {
	mu         sync.Mutex
	channel    string
	txFd       int
	rxFd       int
	ring       []byte
	req        unix.TpacketReq
	rxCallback can.FrameListener
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	pollPeriod time.Duration
}

// Create a new ring buffer bus. The channel must exist and be up.
func NewBus(channel string) (can.Bus, error) {
	if _, err := net.InterfaceByName(channel); err != nil {
		return nil, err
	}
	return &Bus{channel: channel, txFd: -1, rxFd: -1, pollPeriod: DefaultPollPeriod}, nil
}

func (b *Bus) open() (err error) {
	iface, err := net.InterfaceByName(b.channel)
	if err != nil {
		return err
	}
	txFd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return fmt.Errorf("failed to create TX socket : %w", err)
	}
	defer func() {
		if err != nil {
			unix.Close(txFd)
		}
	}()
	if err = unix.Bind(txFd, &unix.SockaddrCAN{Ifindex: iface.Index}); err != nil {
		return fmt.Errorf("failed to bind TX socket : %w", err)
	}

	rxFd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(ethPCan)))
	if err != nil {
		return fmt.Errorf("failed to create RX socket : %w", err)
	}
	defer func() {
		if err != nil {
			unix.Close(rxFd)
		}
	}()
	if err = unix.SetsockoptInt(rxFd, unix.SOL_PACKET, unix.PACKET_VERSION, tpacketV1); err != nil {
		return fmt.Errorf("failed to set TPACKET_V1 : %w", err)
	}
	// Reserved headroom keeps frames aligned on ARM
	if err = unix.SetsockoptInt(rxFd, unix.SOL_PACKET, unix.PACKET_RESERVE, packetReserve); err != nil {
		return fmt.Errorf("failed to set PACKET_RESERVE : %w", err)
	}
	req := unix.TpacketReq{
		Block_size: ringBlockSize,
		Block_nr:   ringBlockNr,
		Frame_size: ringFrameSize,
		Frame_nr:   (ringBlockSize / ringFrameSize) * ringBlockNr,
	}
	if err = unix.SetsockoptTpacketReq(rxFd, unix.SOL_PACKET, unix.PACKET_RX_RING, &req); err != nil {
		return fmt.Errorf("failed to set PACKET_RX_RING (req=%+v) : %w", req, err)
	}
	ring, err := unix.Mmap(rxFd, 0, int(req.Block_size*req.Block_nr), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("failed to mmap ring : %w", err)
	}
	if err = unix.Bind(rxFd, &unix.SockaddrLinklayer{Protocol: htons(ethPCan), Ifindex: iface.Index}); err != nil {
		unix.Munmap(ring)
		return fmt.Errorf("failed to bind RX socket : %w", err)
	}
	b.txFd, b.rxFd, b.ring, b.req = txFd, rxFd, ring, req
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
	unix.Munmap(b.ring)
	b.ring = nil
	unix.Close(b.rxFd)
	err := unix.Close(b.txFd)
	b.rxFd, b.txFd = -1, -1
	return err
}

// "Send" implementation of Bus interface
func (b *Bus) Send(frame can.Frame) error {
	if b.txFd < 0 {
		return can.ErrNotConnected
	}
	raw := canFrame{ID: frame.ID, Len: frame.DLC, Flags: frame.Flags, Data: frame.Data}
	n, err := unix.Write(b.txFd, (*(*[canFrameSize]byte)(unsafe.Pointer(&raw)))[:])
	if err != nil {
		return err
	}
	if n != canFrameSize {
		return fmt.Errorf("short write : %v bytes", n)
	}
	return nil
}

// Sweep every frame handed over by the kernel, then sleep one period
func (b *Bus) processIncoming(ctx context.Context) {
	ticker := time.NewTicker(b.pollPeriod)
	defer ticker.Stop()
	index := 0
	total := int(b.req.Frame_nr)
	size := int(b.req.Frame_size)
	headerSize := int(unsafe.Sizeof(unix.TpacketHdr{}))

	for {
		for {
			offset := index * size
			if offset >= len(b.ring) {
				index, offset = 0, 0
			}
			hdr := (*unix.TpacketHdr)(unsafe.Pointer(&b.ring[offset : offset+headerSize][0]))
			if uint64(hdr.Status)&uint64(unix.TP_STATUS_USER) == 0 {
				break
			}
			start := offset + int(hdr.Mac)
			if start+canFrameSize <= len(b.ring) {
				f := (*canFrame)(unsafe.Pointer(&b.ring[start]))
				if b.rxCallback != nil {
					b.rxCallback.Handle(can.Frame{ID: f.ID, DLC: f.Len, Flags: f.Flags, Data: f.Data})
				}
			}
			hdr.Status = unix.TP_STATUS_KERNEL
			index = (index + 1) % total
		}
		select {
		case <-ctx.Done():
			log.Infof("[CAN][%v] exiting ring reception", b.channel)
			return
		case <-ticker.C:
		}
	}
}

// "Subscribe" implementation of Bus interface
func (b *Bus) Subscribe(rxCallback can.FrameListener) error {
	b.rxCallback = rxCallback
	return nil
}

// Change the ring sweep period, applies on next Connect
func (b *Bus) SetPollPeriod(period time.Duration) {
	if period > 0 {
		b.pollPeriod = period
	}
}

func htons(v uint16) uint16 {
	data := make([]byte, 2)
	binary.BigEndian.PutUint16(data, v)
	return *(*uint16)(unsafe.Pointer(&data[0]))
}
