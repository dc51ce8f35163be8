package console

import (
	"fmt"
	"io"
	"math"

	"github.com/wmu-sunseeker/gobps/pkg/fault"
	"github.com/wmu-sunseeker/gobps/pkg/plant"
)

var thermistors = plant.ChannelsOf(plant.ChannelThermistor)

func line(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\r\n", args...)
}

// Two decimals, truncated toward zero
func fixed2(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	hundredths := int64(math.Floor(v * 100))
	return fmt.Sprintf("%s%d.%02d", sign, hundredths/100, hundredths%100)
}

// Temperature of every thermistor and the hottest one
func ReportTemps(w io.Writer, state *plant.State) {
	line(w, "")
	line(w, "BATTERY TEMPERATURES:")
	line(w, "MAX Discharge Temp = 60 Degree C")
	line(w, "MAX Charge Temp = 45 Degree C")
	line(w, "")
	for _, ch := range thermistors {
		line(w, "Temp %d = %s Degree C", ch, fixed2(float64(plant.TemperatureCelsius(state.Samples[ch]))))
	}
	t := state.Telemetry
	line(w, "Max Temp %d = %s Degree C", t.MaxTemperatureIndex, fixed2(float64(t.MaxTemperature)))
}

// Every cell voltage and the pack voltage
func ReportVolts(w io.Writer, state *plant.State) {
	line(w, "")
	line(w, "BATTERY CELL VOLTAGES:")
	line(w, "MAX CELL VOLTAGE 4.176 V")
	line(w, "MIN CELL VOLTAGE 2.640 V")
	line(w, "")
	var sum int64
	for cell := range plant.NumCells {
		code := state.Cell(cell)
		sum += int64(code) - plant.CellCodeOffset
		volts := float64(int(code)-plant.CellCodeOffset) / plant.CellCountsPerVolt
		line(w, "Cell %d = %s Volts", cell, fixed2(volts))
	}
	line(w, "Battery = %s Volts", fixed2(float64(sum)/plant.CellCountsPerVolt))
}

func ReportCurrent(w io.Writer, current float64, limits fault.Limits) {
	line(w, "")
	line(w, "BATTERY CURRENT:")
	line(w, "MAX CURRENT DISCHARGE %.0f mA", limits.MaxCurrentDischarge)
	line(w, "MAX CURRENT CHARGE   %.0f mA", limits.MaxCurrentCharge)
	line(w, "")
	line(w, "Battery Current = %s mA", fixed2(current))
}

// State number is the operating mode index plus one
func ReportState(w io.Writer, state int) {
	line(w, "")
	line(w, "BATTERY STATE:")
	line(w, "Battery State = %d", state)
}
