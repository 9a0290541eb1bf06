package analysis

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Baseline filter defaults.
const (
	DefaultBaselineWindow = 81
	DefaultBaselineOrder  = 3
)

// SavitzkyGolay smooths y with a window-point polynomial of the given order.
// Interior points use the convolution coefficients; the first and last
// half-windows are evaluated on a polynomial fitted to the edge window.
func SavitzkyGolay(y []float64, window, order int) ([]float64, error) {
	switch {
	case window <= 0 || window%2 == 0:
		return nil, fmt.Errorf("%w: window %d must be a positive odd number", ErrFit, window)
	case order >= window:
		return nil, fmt.Errorf("%w: order %d must be less than window %d", ErrFit, order, window)
	case len(y) < window:
		return nil, fmt.Errorf("%w: %d points shorter than window %d", ErrFit, len(y), window)
	}

	coeffs, err := savgolCoefficients(window, order)
	if err != nil {
		return nil, err
	}

	half := window / 2
	out := make([]float64, len(y))
	for i := half; i < len(y)-half; i++ {
		var v float64
		for k, c := range coeffs {
			v += c * y[i-half+k]
		}
		out[i] = v
	}

	x := make([]float64, window)
	for i := range x {
		x[i] = float64(i)
	}
	head, err := PolyFit(x, y[:window], order)
	if err != nil {
		return nil, err
	}
	tail, err := PolyFit(x, y[len(y)-window:], order)
	if err != nil {
		return nil, err
	}
	for i := 0; i < half; i++ {
		out[i] = PolyEval(head, float64(i))
		out[len(y)-half+i] = PolyEval(tail, float64(window-half+i))
	}
	return out, nil
}

// savgolCoefficients returns the weights that evaluate the least-squares
// polynomial at the window centre: row 0 of (AᵀA)⁻¹Aᵀ.
func savgolCoefficients(window, order int) ([]float64, error) {
	half := window / 2
	x := make([]float64, window)
	for i := range x {
		x[i] = float64(i - half)
	}
	a := vandermonde(x, order)

	var ata mat.Dense
	ata.Mul(a.T(), a)
	e0 := mat.NewVecDense(order+1, nil)
	e0.SetVec(0, 1)
	var z mat.VecDense
	if err := z.SolveVec(&ata, e0); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFit, err)
	}
	var c mat.VecDense
	c.MulVec(a, &z)
	return mat.Col(nil, 0, &c), nil
}

// Baseline is the smoothed mean spectrum.
func Baseline(spec mat.Matrix, window, order int) ([]float64, error) {
	return SavitzkyGolay(MeanSpectrum(spec), window, order)
}
