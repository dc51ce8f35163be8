package controller

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wmu-sunseeker/gobps/pkg/console"
	"github.com/wmu-sunseeker/gobps/pkg/tick"
)

func TestProcessorReachesNormalOp(t *testing.T) {
	h := newHarness(t, nil)
	ticks, err := tick.NewSource(h.flags, time.Millisecond, tick.DefaultStatusDivider, tick.DefaultTelemetryDivider)
	require.Nil(t, err)
	proc := NewProcessor(h.ctrl, ticks)
	services := make(chan struct{})
	proc.AddService(func(ctx context.Context) {
		<-ctx.Done()
		close(services)
	})

	require.Nil(t, proc.Start(context.Background()))
	assert.Eventually(t, func() bool {
		return h.ctrl.Snapshot().Mode == NormalOp.String()
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, ticks.TelemetryEnabled())

	require.Nil(t, proc.Stop())
	require.Nil(t, proc.Wait())
	<-services
	assert.Same(t, h.ctrl, proc.Controller())
}

func TestProcessorStopUnblocksConsole(t *testing.T) {
	h := newHarness(t, nil)
	ticks, err := tick.NewSource(h.flags, time.Millisecond, tick.DefaultStatusDivider, tick.DefaultTelemetryDivider)
	require.Nil(t, err)
	proc := NewProcessor(h.ctrl, ticks)
	in, _ := io.Pipe()
	proc.AttachConsole(console.New(h.flags, nil), in)

	require.Nil(t, proc.Start(context.Background()))
	require.Nil(t, proc.Stop())
	stopped := make(chan struct{})
	go func() {
		proc.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("wait blocked on the console reader")
	}
}
