package acoustics

import (
	"math"
	"sort"
)

// SpeedOfSound in air at room temperature, m/s.
const SpeedOfSound = 343.0

// DefaultModeLimitHz bounds the reported room modes.
const DefaultModeLimitHz = 300.0

// RoomDimensions are interior measurements in metres. Zero means unknown.
type RoomDimensions struct {
	LengthM float64
	WidthM  float64
	HeightM float64
}

// AxialModes returns the axial mode frequencies n*c/(2L) of every known
// dimension up to maxHz, sorted and with duplicates removed.
func AxialModes(dims RoomDimensions, maxHz float64) []float64 {
	if maxHz <= 0 {
		maxHz = DefaultModeLimitHz
	}

	var modes []float64
	for _, l := range []float64{dims.LengthM, dims.WidthM, dims.HeightM} {
		if l <= 0 || math.IsNaN(l) || math.IsInf(l, 0) {
			continue
		}
		fundamental := SpeedOfSound / (2 * l)
		for n := 1; float64(n)*fundamental <= maxHz; n++ {
			modes = append(modes, math.Round(float64(n)*fundamental*100)/100)
		}
	}

	sort.Float64s(modes)
	out := modes[:0]
	for _, m := range modes {
		if len(out) == 0 || m != out[len(out)-1] {
			out = append(out, m)
		}
	}
	return out
}
