package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultAllanPoints is how many averaging factors are tried.
const DefaultAllanPoints = 50

// AllanPoint is the overlapping Allan deviation at one averaging time.
type AllanPoint struct {
	M         int
	Tau       float64
	Deviation float64
}

// AllanDeviation computes the overlapping Allan deviation of series over
// log-spaced averaging factors from 1 to len/5. NaN samples are dropped
// first; repeated factors after rounding are evaluated once.
func AllanDeviation(series []float64, interval float64, points int) []AllanPoint {
	x := make([]float64, 0, len(series))
	for _, v := range series {
		if !math.IsNaN(v) {
			x = append(x, v)
		}
	}
	n := len(x)
	if n/5 < 1 {
		return nil
	}
	if points < 2 {
		points = 2
	}

	sum := make([]float64, n+1)
	floats.CumSum(sum[1:], x)
	blockMean := func(i, m int) float64 { return (sum[i+m] - sum[i]) / float64(m) }

	var out []AllanPoint
	last := 0
	for _, f := range floats.LogSpan(make([]float64, points), 1, float64(n/5)) {
		m := int(math.Floor(f + 1e-9))
		if m <= 0 || m == last {
			continue
		}
		last = m
		samples := n - 2*m
		if samples <= 0 {
			break
		}
		var sq float64
		for i := 0; i < samples; i++ {
			d := blockMean(i+m, m) - blockMean(i, m)
			sq += d * d
		}
		out = append(out, AllanPoint{
			M:         m,
			Tau:       float64(m) * interval,
			Deviation: math.Sqrt(sq / (2 * float64(samples))),
		})
	}
	return out
}

// OptimalTau is the averaging time with the smallest deviation.
func OptimalTau(points []AllanPoint) (AllanPoint, bool) {
	if len(points) == 0 {
		return AllanPoint{}, false
	}
	devs := make([]float64, len(points))
	for i, p := range points {
		devs[i] = p.Deviation
	}
	return points[floats.MinIdx(devs)], true
}

// RowMeans averages each row; a row with any NaN averages to NaN.
func RowMeans(m mat.Matrix) []float64 {
	r, _ := m.Dims()
	out := make([]float64, r)
	for i := range out {
		out[i] = stat.Mean(mat.Row(nil, i, m), nil)
	}
	return out
}

// MeanSpectrum averages each column over the rows that have a value.
func MeanSpectrum(m mat.Matrix) []float64 {
	_, c := m.Dims()
	out := make([]float64, c)
	for j := range out {
		out[j] = nanMean(mat.Col(nil, j, m))
	}
	return out
}

func nanMean(x []float64) float64 {
	kept := x[:0:0]
	for _, v := range x {
		if !math.IsNaN(v) {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return math.NaN()
	}
	return stat.Mean(kept, nil)
}
