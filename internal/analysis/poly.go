package analysis

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultContinuumOrder is the polynomial order removed by SubtractContinuum.
const DefaultContinuumOrder = 2

// ErrFit is returned when a least-squares problem cannot be solved.
var ErrFit = errors.New("analysis: fit failed")

// PolyFit returns least-squares coefficients c, lowest power first, so that
// y ≈ c[0] + c[1]·x + … + c[order]·x^order.
func PolyFit(x, y []float64, order int) ([]float64, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d x values for %d y values", ErrFit, len(x), len(y))
	}
	if order < 0 || len(x) <= order {
		return nil, fmt.Errorf("%w: %d points cannot fit order %d", ErrFit, len(x), order)
	}

	a := vandermonde(x, order)
	var qr mat.QR
	qr.Factorize(a)
	var c mat.VecDense
	if err := qr.SolveVecTo(&c, false, mat.NewVecDense(len(y), append([]float64(nil), y...))); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFit, err)
	}
	return mat.Col(nil, 0, &c), nil
}

// PolyEval evaluates coefficients from PolyFit at x.
func PolyEval(c []float64, x float64) float64 {
	var v float64
	for i := len(c) - 1; i >= 0; i-- {
		v = v*x + c[i]
	}
	return v
}

func vandermonde(x []float64, order int) *mat.Dense {
	a := mat.NewDense(len(x), order+1, nil)
	for i, xi := range x {
		p := 1.0
		for j := 0; j <= order; j++ {
			a.Set(i, j, p)
			p *= xi
		}
	}
	return a
}

// SubtractContinuum fits a polynomial over bin index to the mean spectrum
// and subtracts it from every row. The fitted continuum is returned too.
func SubtractContinuum(spec *mat.Dense, order int) (*mat.Dense, []float64, error) {
	mean := MeanSpectrum(spec)
	var x, y []float64
	for i, v := range mean {
		if !math.IsNaN(v) {
			x = append(x, float64(i))
			y = append(y, v)
		}
	}
	c, err := PolyFit(x, y, order)
	if err != nil {
		return nil, nil, err
	}

	continuum := make([]float64, len(mean))
	for i := range continuum {
		continuum[i] = PolyEval(c, float64(i))
	}

	r, cols := spec.Dims()
	out := mat.NewDense(r, cols, nil)
	out.Apply(func(i, j int, v float64) float64 { return v - continuum[j] }, spec)
	return out, continuum, nil
}
