package acoustics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/RMahshie/decaymeter/pkg/models"
)

// T20 evaluation range and the shallowest span accepted when a curve does
// not reach the T20 end point.
const (
	FitStartDb      = -5.0
	FitEndDb        = -25.0
	MinDecayRangeDb = 10.0
)

// Re-exported so callers can match RT60Result.Err without importing models.
var (
	ErrNoSignal               = models.ErrNoSignal
	ErrInsufficientDecayRange = models.ErrInsufficientDecayRange
	ErrNotDecaying            = models.ErrNotDecaying
)

// EstimateRT60 fits a line to the -5..-25 dB part of curve and extrapolates
// it to 60 dB of decay. Curves that stop short of -25 dB are fitted over
// whatever lies below -5 dB as long as that spans MinDecayRangeDb.
func EstimateRT60(curve models.DecayCurve) models.RT60Result {
	if curve.Empty() {
		return models.InvalidRT60(curve.Band, models.ReasonNoSignal)
	}

	deepest := 0.0
	for _, p := range curve.Points {
		if p.LevelDb > FloorDb && p.LevelDb < deepest {
			deepest = p.LevelDb
		}
	}
	end := math.Max(deepest, FitEndDb)

	var xs, ys []float64
	hi, lo := math.Inf(-1), math.Inf(1)
	for _, p := range curve.Points {
		if p.LevelDb <= FloorDb || p.LevelDb > FitStartDb || p.LevelDb < end {
			continue
		}
		xs = append(xs, p.TimeSec)
		ys = append(ys, p.LevelDb)
		hi = math.Max(hi, p.LevelDb)
		lo = math.Min(lo, p.LevelDb)
	}

	if len(xs) < 2 || hi-lo < MinDecayRangeDb {
		r := models.InvalidRT60(curve.Band, models.ReasonInsufficientDecayRange)
		if len(xs) > 0 {
			r.RangeDb = hi - lo
		}
		return r
	}

	intercept, slope := stat.LinearRegression(xs, ys, nil, false)

	var sq float64
	for i, x := range xs {
		d := ys[i] - (intercept + slope*x)
		sq += d * d
	}
	fitErr := math.Sqrt(sq / float64(len(xs)))

	if !(slope < 0) {
		r := models.InvalidRT60(curve.Band, models.ReasonNotDecaying)
		r.RangeDb = hi - lo
		r.FitErrorDb = fitErr
		return r
	}

	return models.RT60Result{
		Band:       curve.Band,
		Seconds:    -60 / slope,
		Valid:      true,
		FitErrorDb: fitErr,
		RangeDb:    hi - lo,
	}
}
