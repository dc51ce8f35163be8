package event

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetOnceConsumeOnce(t *testing.T) {
	flags := NewFlags()
	flags.Set(StatusTick)
	flags.Set(StatusTick)
	assert.True(t, flags.TestAndClear(StatusTick))
	assert.False(t, flags.TestAndClear(StatusTick))
}

func TestTakeLeavesOtherFlags(t *testing.T) {
	flags := NewFlags()
	flags.Set(Adc1Ready)
	flags.Set(Adc7Ready)
	flags.Set(StatusTick)
	taken := flags.Take(AdcReadyMask)
	assert.Equal(t, Adc1Ready|Adc7Ready, taken)
	assert.True(t, flags.IsSet(StatusTick))
	assert.Equal(t, 1, flags.Count())
}

func TestAdcReadyIndex(t *testing.T) {
	assert.Equal(t, Adc1Ready, AdcReady(0))
	assert.Equal(t, Adc4Ready, AdcReady(3))
	assert.Equal(t, Adc7Ready, AdcReady(6))
	assert.Equal(t, "ADC7-READY", AdcReady(6).String())
}

func TestWakeNeverBlocks(t *testing.T) {
	flags := NewFlags()
	for range 10 {
		flags.Set(FramePending)
	}
	<-flags.Wake()
	select {
	case <-flags.Wake():
		t.Fatal("wake channel should hold a single notification")
	default:
	}
}

func TestConcurrentProducersNoLostFlag(t *testing.T) {
	flags := NewFlags()
	var wg sync.WaitGroup
	for i := range 7 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			flags.Set(AdcReady(i))
		}()
	}
	wg.Wait()
	assert.Equal(t, AdcReadyMask, flags.Take(AdcReadyMask))
}
