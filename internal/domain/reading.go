package domain

import (
	"strconv"
	"time"
)

// Reading is the value one device produced for one cycle.
type Reading struct {
	Device    string    `json:"device"`
	Scalar    *Scalar   `json:"scalar,omitempty"`
	Vector    []float64 `json:"vector,omitempty"`
	Issued    time.Time `json:"issued"`
	Completed time.Time `json:"completed"`
}

// Scalar is a single value with its unit, as reported by the pressure gauge.
type Scalar struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Latency is the time between dispatching the request and receiving the response.
func (r *Reading) Latency() time.Duration {
	if r == nil || r.Completed.Before(r.Issued) {
		return 0
	}
	return r.Completed.Sub(r.Issued)
}

// Cells renders the payload in column order.
func (r *Reading) Cells() []string {
	if r == nil {
		return nil
	}
	if r.Scalar != nil {
		return []string{FormatFloat(r.Scalar.Value), r.Scalar.Unit}
	}
	out := make([]string, len(r.Vector))
	for i, v := range r.Vector {
		out[i] = FormatFloat(v)
	}
	return out
}

// Result is what every device adapter returns for a read: exactly one of
// Reading or Failure is set.
type Result struct {
	Reading *Reading
	Failure *Failure
}

// OK reports whether the read produced a reading.
func (r Result) OK() bool { return r.Reading != nil && r.Failure == nil }

// Success wraps a reading.
func Success(r *Reading) Result { return Result{Reading: r} }

// Failed wraps a failure.
func Failed(f *Failure) Result { return Result{Failure: f} }

// FormatFloat uses the shortest representation that round-trips.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
