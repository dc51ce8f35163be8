package fault

import "github.com/wmu-sunseeker/gobps/pkg/plant"

var (
	thermistorChannels = plant.ChannelsOf(plant.ChannelThermistor)
	referenceChannels  = plant.ChannelsOf(plant.ChannelReference)
)

// Classify a complete temperature batch. Thermistor codes fall as
// temperature rises. The worst status over all channels is returned,
// together with the hottest connected thermistor.
func ClassifyTemperatures(samples *[plant.NumSamples]int32, limits Limits) (status TemperatureStatus, hottestCode int32, hottestIndex int) {
	status = TempOK
	hottestCode = limits.NoSensorCode
	hottestIndex = -1
	for _, ch := range thermistorChannels {
		code := samples[ch]
		var s TemperatureStatus
		switch {
		case code > limits.NoSensorCode:
			s = TempNoSensor
		case code < limits.TempDischargeCode:
			s = TempAbove60
		case code < limits.TempChargeCode:
			s = TempAbove45
		default:
			s = TempOK
		}
		if s > status {
			status = s
		}
		if s != TempNoSensor && code < hottestCode {
			hottestCode = code
			hottestIndex = ch
		}
	}
	for _, ch := range referenceChannels {
		code := samples[ch]
		if code < limits.ReferenceMin || code > limits.ReferenceMax {
			status = TempReferenceError
		}
	}
	return status, hottestCode, hottestIndex
}
