// Package plant holds the measured state of the battery pack.
//
// A single [State] is owned by the main loop. Drivers write into it in place
// every polling round; the fault aggregator, the CAN protocol handler, the
// console and the gateway only ever read it (the latter two through snapshots).
package plant

const (
	NumBanks          = 3
	MaxCellsPerBank   = 12
	NumCells          = 35
	NumDevices        = 7
	ChannelsPerDevice = 8
	NumSamples        = NumDevices * ChannelsPerDevice

	// Raw cell code offset and scale of the cell monitors
	CellCodeOffset    = 512
	CellVoltsPerCount = 0.0015
	CellCountsPerVolt = 666.66

	// 24 bit ADC full scale
	AdcFullScale = 16777216.0
)

// Number of series cells wired to each monitor bank
var BankCellCount = [NumBanks]int{11, 12, 12}

// Index of the first cell of each bank in pack numbering
var BankCellOffset = [NumBanks]int{0, 11, 23}

// CellBank is the last reading of one monitor chip
type CellBank struct {
	Voltages [MaxCellsPerBank]uint16
	Count    int
	Status   uint8 // combined status and flag byte of the last read
}

// Cells actually wired on this bank
func (b *CellBank) Cells() []uint16 {
	return b.Voltages[:b.Count]
}

// Clear the status byte once a bank fault has been surfaced
func (b *CellBank) Reset() {
	b.Status = 0
}

// Telemetry is the cache served over CAN, computed on every telemetry cycle.
// The zero value is what a remote request gets before the first computation.
type Telemetry struct {
	MaxCellVoltage      float32
	MaxCellIndex        int
	MinCellVoltage      float32
	MinCellIndex        int
	PackCounts          int64
	MaxTemperature      float32
	MaxTemperatureIndex int
	Current             float32
	Valid               bool
}

// Pack voltage in volts
func (t Telemetry) PackVoltage() float32 {
	return float32(float64(t.PackCounts) / CellCountsPerVolt)
}

// Shunt frame second value
func (t Telemetry) ShuntAuxiliary() float32 {
	return t.MaxCellVoltage * CellVoltsPerCount
}

// State of the whole plant
type State struct {
	Banks   [NumBanks]CellBank
	Samples [NumSamples]int32

	// Latest shunt current in mA, positive when discharging
	Current      float64
	CurrentValid bool

	// Hottest thermistor of the last temperature batch
	HottestCode  int32
	HottestIndex int

	Telemetry Telemetry
}

func NewState() *State {
	s := &State{}
	for i := range s.Banks {
		s.Banks[i].Count = BankCellCount[i]
	}
	return s
}

// Cell voltage in volts from raw code
func CellVolts(code uint16) float32 {
	return float32(int(code)-CellCodeOffset) * CellVoltsPerCount
}

// Linear estimate of thermistor temperature, valid 20 to 45 degrees
func TemperatureCelsius(code int32) float32 {
	ratio := float64(code) / AdcFullScale
	return float32(126.1575 - 311.329*ratio)
}

// Cell code of the pack numbered cell, 0..34
func (s *State) Cell(index int) uint16 {
	for bank := NumBanks - 1; bank >= 0; bank-- {
		if index >= BankCellOffset[bank] {
			return s.Banks[bank].Voltages[index-BankCellOffset[bank]]
		}
	}
	return 0
}

// Recompute max/min cell and pack sum. Ties keep the lowest index.
func (s *State) UpdateCellExtremes() {
	maxCode, maxIndex := uint16(0), 0
	minCode, minIndex := uint16(0x0FFF), 0
	var sum int64
	for bank := range s.Banks {
		for i, code := range s.Banks[bank].Cells() {
			index := BankCellOffset[bank] + i
			if code > maxCode {
				maxCode, maxIndex = code, index
			}
			if code < minCode {
				minCode, minIndex = code, index
			}
			sum += int64(code) - CellCodeOffset
		}
	}
	s.Telemetry.MaxCellVoltage = CellVolts(maxCode)
	s.Telemetry.MaxCellIndex = maxIndex
	s.Telemetry.MinCellVoltage = CellVolts(minCode)
	s.Telemetry.MinCellIndex = minIndex
	s.Telemetry.PackCounts = sum
}

// Refresh the whole telemetry cache from current readings
func (s *State) UpdateTelemetry() {
	s.UpdateCellExtremes()
	s.Telemetry.MaxTemperature = TemperatureCelsius(s.HottestCode)
	s.Telemetry.MaxTemperatureIndex = s.HottestIndex
	s.Telemetry.Current = float32(s.Current)
	s.Telemetry.Valid = true
}

// Compute shunt current in mA from the misc ADC samples
func (s *State) UpdateCurrent(scale, fullScale float64) float64 {
	delta := s.Samples[ShuntChannel] - s.Samples[ShuntReferenceChannel]
	s.Current = float64(delta) * scale / fullScale
	s.CurrentValid = true
	return s.Current
}

// The three precharge rails
func (s *State) PrechargeSignals() (battery, tap, contactor int32) {
	return s.Samples[PrechargeBatteryChannel], s.Samples[PrechargeTapChannel], s.Samples[PrechargeContactorChannel]
}
