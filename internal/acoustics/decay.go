package acoustics

import (
	"math"

	"github.com/RMahshie/decaymeter/pkg/models"
)

// FloorDb is the level assigned to frames whose remaining energy is zero.
const FloorDb = -200.0

// BuildDecayCurve applies Schroeder backward integration to s and returns
// the integral in dB relative to its value at the first frame. The result
// is non-increasing. A band without energy yields an empty curve.
func BuildDecayCurve(s models.BandEnergySeries) models.DecayCurve {
	curve := models.DecayCurve{Band: s.Band}
	n := len(s.Points)
	if n == 0 {
		return curve
	}

	integral := make([]float64, n)
	var sum float64
	for i := n - 1; i >= 0; i-- {
		sum += math.Max(s.Points[i].Energy, 0)
		integral[i] = sum
	}

	total := integral[0]
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return curve
	}

	curve.Points = make([]models.DecayPoint, n)
	prev := 0.0
	for i, c := range integral {
		level := FloorDb
		switch {
		case i == 0:
			level = 0
		case c > 0:
			level = math.Max(10*math.Log10(c/total), FloorDb)
		}
		// rounding in the running sum must not lift the curve
		level = math.Min(level, prev)
		curve.Points[i] = models.DecayPoint{TimeSec: s.Points[i].TimeSec, LevelDb: level}
		prev = level
	}
	return curve
}
