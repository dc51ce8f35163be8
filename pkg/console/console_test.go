package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/goburrow/serial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wmu-sunseeker/gobps/pkg/event"
	"github.com/wmu-sunseeker/gobps/pkg/fault"
	"github.com/wmu-sunseeker/gobps/pkg/plant"
)

func feed(c *Console, s string) {
	for i := range len(s) {
		c.Feed(s[i])
	}
}

func TestCommands(t *testing.T) {
	flags := event.NewFlags()
	out := &bytes.Buffer{}
	c := New(flags, out)
	feed(c, "battery volts\r")
	assert.True(t, flags.TestAndClear(event.ReportVolts))
	assert.Equal(t, "battery volts\n\r", out.String())

	feed(c, "BATTERY STATE\r")
	assert.True(t, flags.IsSet(event.ReportState))
}

func TestUnknownClearsReports(t *testing.T) {
	flags := event.NewFlags()
	c := New(flags, nil)
	feed(c, "battery temps\r")
	feed(c, "battery current\r")
	assert.True(t, flags.IsSet(event.ReportTemps|event.ReportCurrent))
	feed(c, "help\r")
	assert.Equal(t, event.Flag(0), flags.Load()&event.ReportMask)
}

func TestCommandSpacing(t *testing.T) {
	flags := event.NewFlags()
	c := New(flags, nil)
	feed(c, "  battery \t current \r")
	assert.True(t, flags.TestAndClear(event.ReportCurrent))

	feed(c, "battery temps\r")
	feed(c, "battery \"volts\r")
	assert.Equal(t, event.Flag(0), flags.Load()&event.ReportMask)
}

func TestBackspace(t *testing.T) {
	flags := event.NewFlags()
	c := New(flags, nil)
	feed(c, "battery tempx\x7Fs\r")
	assert.True(t, flags.IsSet(event.ReportTemps))
}

func TestLineLimit(t *testing.T) {
	flags := event.NewFlags()
	c := New(flags, nil)
	feed(c, strings.Repeat("a", 2*MaxLineLength))
	assert.Len(t, c.line, MaxLineLength)
	feed(c, "\r")
	assert.Empty(t, c.line)
}

type timeoutReader struct {
	data     []byte
	timeouts int
}

func (r *timeoutReader) Read(p []byte) (int, error) {
	if r.timeouts > 0 {
		r.timeouts--
		return 0, serial.ErrTimeout
	}
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestRunRetriesTimeouts(t *testing.T) {
	flags := event.NewFlags()
	c := New(flags, nil)
	r := &timeoutReader{data: []byte("battery state\r"), timeouts: 3}
	assert.Nil(t, c.Run(context.Background(), r))
	assert.True(t, flags.IsSet(event.ReportState))
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("device removed") }

func TestRunReturnsReadError(t *testing.T) {
	c := New(event.NewFlags(), nil)
	assert.NotNil(t, c.Run(context.Background(), brokenReader{}))
}

func TestRunClosesReaderOnCancel(t *testing.T) {
	flags := event.NewFlags()
	c := New(flags, nil)
	r, w := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- c.Run(ctx, r) }()

	_, err := w.Write([]byte("battery state\r"))
	require.Nil(t, err)
	assert.Eventually(t, func() bool { return flags.IsSet(event.ReportState) }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-result:
		assert.Nil(t, err)
	case <-time.After(time.Second):
		t.Fatal("blocked read survived cancel")
	}
	_, err = w.Write([]byte("x"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestFixed2(t *testing.T) {
	assert.Equal(t, "3.61", fixed2(3.6199))
	assert.Equal(t, "-1520.57", fixed2(-1520.579))
	assert.Equal(t, "0.00", fixed2(0))
}

func TestReports(t *testing.T) {
	state := plant.NewState()
	for bank := range state.Banks {
		for i := range state.Banks[bank].Cells() {
			state.Banks[bank].Voltages[i] = 512 + 2400
		}
	}
	out := &bytes.Buffer{}
	ReportVolts(out, state)
	assert.Contains(t, out.String(), "Cell 34 = 3.60 Volts\r\n")
	assert.Contains(t, out.String(), "Battery = 126.00 Volts\r\n")

	out.Reset()
	ReportCurrent(out, -20000, fault.DefaultLimits())
	assert.Contains(t, out.String(), "MAX CURRENT CHARGE   -19500 mA\r\n")
	assert.Contains(t, out.String(), "Battery Current = -20000.00 mA\r\n")

	out.Reset()
	ReportState(out, 7)
	assert.Contains(t, out.String(), "Battery State = 7\r\n")

	out.Reset()
	ReportTemps(out, state)
	assert.Contains(t, out.String(), "Temp 1 = ")
	assert.NotContains(t, out.String(), "Temp 8 = ")
}
