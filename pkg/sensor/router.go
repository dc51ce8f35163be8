package sensor

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	bps "github.com/wmu-sunseeker/gobps"
	"github.com/wmu-sunseeker/gobps/pkg/event"
	"github.com/wmu-sunseeker/gobps/pkg/plant"
)

// Completion events derived from ADC ready flags
type Completion struct {
	TemperatureBatch bool
	CurrentSample    bool
}

// Router consumes ADC ready events, reads the finished device into the
// plant samples and restarts the next device on the same bus.
type Router struct {
	adc       ADC
	state     *plant.State
	logger    *log.Entry
	busDone   [2]bool
	readFails uint32
}

func NewRouter(adc ADC, state *plant.State) *Router {
	return &Router{
		adc:    adc,
		state:  state,
		logger: log.WithField("component", "sensor"),
	}
}

// Start a temperature batch on both temperature buses
func (r *Router) StartTemperatureBatch() error {
	r.busDone = [2]bool{}
	for _, device := range []int{0, DevicesPerBus} {
		if err := r.adc.StartConversion(device); err != nil {
			return fmt.Errorf("start device %v: %w", device+1, err)
		}
	}
	return nil
}

// Start a conversion of the misc bus (current and precharge signals)
func (r *Router) StartCurrentSample() error {
	return r.adc.StartConversion(MiscDevice)
}

// Number of failed channel reads since creation
func (r *Router) ReadFailures() uint32 {
	return r.readFails
}

// Handle all ready flags taken from the event set
func (r *Router) Process(ready event.Flag) Completion {
	result := Completion{}
	for device := range plant.NumDevices {
		if ready&event.AdcReady(device) == 0 {
			continue
		}
		if err := r.readDevice(device); err != nil {
			r.logger.Warnf("[SENSOR] device %v : %v", device+1, err)
		}
		if device == MiscDevice {
			result.CurrentSample = true
			continue
		}
		bus := BusOf(device)
		if device%DevicesPerBus == DevicesPerBus-1 {
			r.busDone[bus] = true
		} else if err := r.adc.StartConversion(device + 1); err != nil {
			r.logger.Warnf("[SENSOR] start device %v : %v", device+2, err)
		}
		if r.busDone[0] && r.busDone[1] {
			r.busDone = [2]bool{}
			result.TemperatureBatch = true
		}
	}
	return result
}

func (r *Router) readDevice(device int) error {
	if err := r.adc.Idle(device); err != nil {
		return fmt.Errorf("idle: %w", err)
	}
	offset := SampleOffset(device)
	var failed error
	for ch := range plant.ChannelsPerDevice {
		code, err := r.adc.ReadConvert(device, ch)
		if err != nil {
			r.readFails++
			failed = fmt.Errorf("%w : channel %v, %v", bps.ErrAdcRead, ch, err)
			continue
		}
		r.state.Samples[offset+ch] = code
	}
	return failed
}
