package plant

// ChannelKind tells what is wired to an ADC sample index
type ChannelKind uint8

const (
	ChannelUnused ChannelKind = iota
	ChannelThermistor
	ChannelReference
	ChannelShuntReference
	ChannelShunt
	ChannelPrechargeBattery
	ChannelPrechargeTap
	ChannelPrechargeContactor
	ChannelSupercap
)

const (
	ShuntReferenceChannel     = 49
	ShuntChannel              = 52
	PrechargeBatteryChannel   = 53
	PrechargeTapChannel       = 54
	PrechargeContactorChannel = 55
)

var kindNames = map[ChannelKind]string{
	ChannelUnused:             "unused",
	ChannelThermistor:         "thermistor",
	ChannelReference:          "reference",
	ChannelShuntReference:     "shunt-reference",
	ChannelShunt:              "shunt",
	ChannelPrechargeBattery:   "precharge-battery",
	ChannelPrechargeTap:       "precharge-tap",
	ChannelPrechargeContactor: "precharge-contactor",
	ChannelSupercap:           "supercap",
}

func (k ChannelKind) String() string {
	return kindNames[k]
}

// Wiring is the physical channel table of the board
var Wiring = buildWiring()

func buildWiring() [NumSamples]ChannelKind {
	var w [NumSamples]ChannelKind
	for device := 0; device < 5; device++ {
		base := device * ChannelsPerDevice
		w[base] = ChannelReference
		for ch := 1; ch < ChannelsPerDevice; ch++ {
			w[base+ch] = ChannelThermistor
		}
	}
	w[40] = ChannelReference
	for ch := 41; ch <= 45; ch++ {
		w[ch] = ChannelSupercap
	}
	w[46] = ChannelThermistor
	w[47] = ChannelThermistor
	w[48] = ChannelReference
	w[ShuntReferenceChannel] = ChannelShuntReference
	w[50] = ChannelThermistor
	w[51] = ChannelThermistor
	w[ShuntChannel] = ChannelShunt
	w[PrechargeBatteryChannel] = ChannelPrechargeBattery
	w[PrechargeTapChannel] = ChannelPrechargeTap
	w[PrechargeContactorChannel] = ChannelPrechargeContactor
	return w
}

// Indexes of a given kind, ascending
func ChannelsOf(kind ChannelKind) []int {
	indexes := []int{}
	for i, k := range Wiring {
		if k == kind {
			indexes = append(indexes, i)
		}
	}
	return indexes
}
