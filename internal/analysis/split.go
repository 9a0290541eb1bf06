package analysis

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Phase split defaults.
const (
	DefaultSplitWindow    = 10
	DefaultSplitThreshold = 0.01
	PressureColumn        = "Pressure"
)

// Phases is a log cut at the end of pump-down and the start of venting.
// When no clear split exists the whole log is Depressurization and the
// other phases are empty.
type Phases struct {
	Depressurization *Log
	Transient        *Log
	Repressurization *Log
}

// Split reports whether the log was actually divided.
func (p Phases) Split() bool { return p.Transient.Rows() > 0 || p.Repressurization.Rows() > 0 }

// SplitPhases classifies each row by its pressure step (falling, flat or
// rising beyond threshold) and cuts the log where a window of steps first
// contains a rise, and where the trailing run of non-falling windows begins.
func SplitPhases(l *Log, window int, threshold float64) (Phases, error) {
	if window <= 0 {
		window = DefaultSplitWindow
	}
	pressure, err := l.Series(PressureColumn)
	if err != nil {
		return Phases{}, err
	}
	n := len(pressure)
	whole := Phases{Depressurization: l, Transient: l.Slice(0, 0), Repressurization: l.Slice(0, 0)}

	trend := make([]int, n)
	for i := 1; i < n; i++ {
		d := pressure[i] - pressure[i-1]
		switch {
		case d > threshold:
			trend[i] = 1
		case d < -threshold:
			trend[i] = -1
		}
	}

	endDepress := -1
	for i := 0; i < n-window; i++ {
		if anyTrend(trend[i:i+window], 1) {
			endDepress = i - 1
			break
		}
	}
	if endDepress < 0 {
		return whole, nil
	}

	startRepress := -1
	for i := n - window; i > 0; i-- {
		if !anyTrend(trend[i:i+window], -1) {
			startRepress = i
		} else if startRepress != -1 {
			break
		}
	}
	if startRepress <= endDepress {
		return whole, nil
	}

	return Phases{
		Depressurization: l.Slice(0, endDepress+1),
		Transient:        l.Slice(endDepress+1, startRepress),
		Repressurization: l.Slice(startRepress, n),
	}, nil
}

func anyTrend(block []int, want int) bool {
	for _, s := range block {
		if s == want {
			return true
		}
	}
	return false
}

// SavePhases writes each non-empty phase into a directory named after the
// source log and returns the paths written.
func SavePhases(source string, p Phases, withTransient bool) ([]string, error) {
	dir := strings.TrimSuffix(source, filepath.Ext(source))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	base := filepath.Base(dir)

	parts := []struct {
		suffix string
		log    *Log
	}{
		{"_depressurization.csv", p.Depressurization},
		{"_repressurization.csv", p.Repressurization},
	}
	if withTransient {
		parts = append(parts, struct {
			suffix string
			log    *Log
		}{"_transient.csv", p.Transient})
	}

	var written []string
	for _, part := range parts {
		if part.log == nil || part.log.Rows() == 0 {
			continue
		}
		path := filepath.Join(dir, base+part.suffix)
		if err := WriteLogFile(path, part.log); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}
