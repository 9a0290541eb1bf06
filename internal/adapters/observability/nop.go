package observability

import "github.com/subradiance/daqlog/internal/ports"

// Nop discards logs and metrics.
type Nop struct{}

var _ ports.Observability = Nop{}

func (Nop) LogInfo(string, ...ports.Field)         {}
func (Nop) LogError(string, error, ...ports.Field) {}
func (Nop) LogDebug(string, ...ports.Field)        {}
func (Nop) IncCounter(string, float64)             {}
func (Nop) ObserveLatency(string, float64)         {}
func (Nop) SetGauge(string, float64)               {}
