package domain

import "time"

// Snapshot is the periodic summary handed to observers.
type Snapshot struct {
	Cycle            uint64             `json:"cycle"`
	Timestamp        time.Time          `json:"timestamp"`
	Elapsed          time.Duration      `json:"elapsed"`
	CycleTime        time.Duration      `json:"cycle_time"`
	InstrumentalTime time.Duration      `json:"instrumental_time"`
	Readings         map[string]Reading `json:"readings"`
	FileSizeBytes    int64              `json:"file_size_bytes"`
	GBPerHour        float64            `json:"gb_per_hour"`
	CadenceHz        float64            `json:"cadence_hz"`
	// Efficiency is the raw sweep/cycle ratio; it may exceed 1.
	Efficiency    float64 `json:"efficiency"`
	HasEfficiency bool    `json:"has_efficiency"`
}

// FileSizeMB reports the tracked log size in MiB.
func (s Snapshot) FileSizeMB() float64 { return float64(s.FileSizeBytes) / (1 << 20) }

// Pressure returns the first scalar reading, if any.
func (s Snapshot) Pressure() (Scalar, bool) {
	for _, r := range s.Readings {
		if r.Scalar != nil {
			return *r.Scalar, true
		}
	}
	return Scalar{}, false
}

// Amplitudes returns the first vector reading, if any.
func (s Snapshot) Amplitudes() []float64 {
	for _, r := range s.Readings {
		if r.Vector != nil {
			return r.Vector
		}
	}
	return nil
}
