package modbus

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	log "github.com/sirupsen/logrus"
	bps "github.com/wmu-sunseeker/gobps"
	"github.com/wmu-sunseeker/gobps/pkg/output"
)

const (
	CoilOn  uint16 = 0xFF00
	CoilOff uint16 = 0x0000

	DefaultTimeout = 200 * time.Millisecond
)

type coilWriter interface {
	WriteSingleCoil(address, value uint16) (results []byte, err error)
}

// Config of a relay/LED board exposing the outputs as Modbus coils.
// Output n is mapped to coil CoilBase + n.
type Config struct {
	Endpoint string // host:port for TCP, serial device for RTU
	RTU      bool
	BaudRate int
	SlaveID  uint8
	CoilBase uint16
	Timeout  time.Duration
}

// Coils drives outputs as single coil writes. Requests are serialized.
type Coils struct {
	mu       sync.Mutex
	client   coilWriter
	closer   io.Closer
	coilBase uint16
	logger   *log.Entry
}

// Open a Modbus TCP or RTU client
func Dial(cfg Config) (modbus.Client, io.Closer, error) {
	if cfg.Endpoint == "" {
		return nil, nil, errors.New("endpoint required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RTU {
		h := modbus.NewRTUClientHandler(cfg.Endpoint)
		h.BaudRate = cfg.BaudRate
		h.DataBits = 8
		h.Parity = "N"
		h.StopBits = 1
		h.SlaveId = cfg.SlaveID
		h.Timeout = cfg.Timeout
		if err := h.Connect(); err != nil {
			return nil, nil, err
		}
		return modbus.NewClient(h), h, nil
	}
	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.SlaveId = cfg.SlaveID
	h.Timeout = cfg.Timeout
	if err := h.Connect(); err != nil {
		return nil, nil, err
	}
	return modbus.NewClient(h), h, nil
}

// Connect to the output board
func New(cfg Config) (*Coils, error) {
	client, closer, err := Dial(cfg)
	if err != nil {
		return nil, fmt.Errorf("modbus outputs: %w", err)
	}
	c := newCoils(client, cfg.CoilBase)
	c.closer = closer
	c.logger.Infof("[RELAY] modbus output board on %v, slave %v, coil base %v", cfg.Endpoint, cfg.SlaveID, cfg.CoilBase)
	return c, nil
}

func newCoils(client coilWriter, coilBase uint16) *Coils {
	return &Coils{
		client:   client,
		coilBase: coilBase,
		logger:   log.WithField("component", "outputs"),
	}
}

// Coil address of an output
func (c *Coils) Address(name output.Name) uint16 {
	return c.coilBase + uint16(name)
}

func (c *Coils) Set(name output.Name, on bool) error {
	value := CoilOff
	if on {
		value = CoilOn
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.client.WriteSingleCoil(c.Address(name), value); err != nil {
		c.logger.Warnf("[RELAY] coil write %v failed : %v", name, err)
		return fmt.Errorf("%w : %v, %v", bps.ErrOutput, name, err)
	}
	return nil
}

func (c *Coils) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
