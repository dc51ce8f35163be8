package console

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/goburrow/serial"
	"github.com/google/shlex"
	log "github.com/sirupsen/logrus"
	"github.com/wmu-sunseeker/gobps/pkg/event"
)

const (
	MaxLineLength = 64

	charBackspace = 0x7F
	charReturn    = '\r'
)

var commands = map[string]event.Flag{
	"battery temps":   event.ReportTemps,
	"battery volts":   event.ReportVolts,
	"battery current": event.ReportCurrent,
	"battery state":   event.ReportState,
}

// Console implements the operator command line. Received characters are
// echoed, a carriage return submits the line. Known commands raise a
// report flag for the main loop, anything else clears pending reports.
type Console struct {
	flags  *event.Flags
	mu     sync.Mutex
	out    io.Writer
	line   []byte
	logger *log.Entry
}

func New(flags *event.Flags, out io.Writer) *Console {
	if out == nil {
		out = io.Discard
	}
	return &Console{
		flags:  flags,
		out:    out,
		line:   make([]byte, 0, MaxLineLength),
		logger: log.WithField("component", "console"),
	}
}

// Writer shared by the echo and the reports
func (c *Console) Writer() io.Writer {
	return lockedWriter{c}
}

type lockedWriter struct {
	c *Console
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.mu.Lock()
	defer w.c.mu.Unlock()
	return w.c.out.Write(p)
}

func (c *Console) echo(p []byte) {
	if _, err := c.Writer().Write(p); err != nil {
		c.logger.Debugf("[CONSOLE] echo failed : %v", err)
	}
}

// Feed one received character
func (c *Console) Feed(b byte) {
	switch b {
	case charReturn:
		c.echo([]byte("\n\r"))
		c.submit(string(c.line))
		c.line = c.line[:0]
	case charBackspace:
		if len(c.line) > 0 {
			c.line = c.line[:len(c.line)-1]
		}
		c.echo([]byte{b})
	default:
		c.echo([]byte{b})
		if len(c.line) < MaxLineLength {
			c.line = append(c.line, b)
		}
	}
}

func (c *Console) submit(line string) {
	words, err := shlex.Split(line)
	if err != nil {
		c.logger.Debugf("[CONSOLE] unparsable line %q : %v", line, err)
		c.flags.Clear(event.ReportMask)
		return
	}
	cmd := strings.ToLower(strings.Join(words, " "))
	if flag, ok := commands[cmd]; ok {
		c.logger.Debugf("[CONSOLE] command %q", cmd)
		c.flags.Set(flag)
		return
	}
	c.flags.Clear(event.ReportMask)
}

// Read characters until the reader fails or the context is done.
// Serial read timeouts are retried.
// A reader that is also an io.Closer is closed when the context is done,
// to unblock a pending read. Other readers need a read timeout for Run to
// notice the cancellation.
func (c *Console) Run(ctx context.Context, r io.Reader) error {
	if closer, ok := r.(io.Closer); ok {
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				closer.Close()
			case <-done:
			}
		}()
	}
	buf := make([]byte, 32)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			c.Feed(b)
		}
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, serial.ErrTimeout):
		case errors.Is(err, io.EOF):
			c.logger.Info("[CONSOLE] input closed")
			return nil
		default:
			return err
		}
	}
}

// Serial port settings of the console
type SerialConfig struct {
	Device   string
	BaudRate int
	Timeout  time.Duration
}

// Open the console serial port, 8N1
func OpenSerial(cfg SerialConfig) (serial.Port, error) {
	return serial.Open(&serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  cfg.Timeout,
	})
}
