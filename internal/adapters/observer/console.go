package observer

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/subradiance/daqlog/internal/domain"
)

var (
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
)

// Console prints one styled summary line per snapshot.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsole(w io.Writer) *Console { return &Console{w: w} }

func (c *Console) Observe(s domain.Snapshot) {
	line := Summary(s)
	c.mu.Lock()
	fmt.Fprintln(c.w, line)
	c.mu.Unlock()
}

// Summary renders the snapshot fields shown on the dashboard.
func Summary(s domain.Snapshot) string {
	parts := []string{
		field("cycle", fmt.Sprint(s.Cycle)),
		field("elapsed", fmt.Sprintf("%.1fs", s.Elapsed.Seconds())),
		field("cycle_time", fmt.Sprintf("%.1fms", ms(s.CycleTime))),
		field("instr", fmt.Sprintf("%.1fms", ms(s.InstrumentalTime))),
		field("rate", fmt.Sprintf("%.2fHz", s.CadenceHz)),
		field("log", fmt.Sprintf("%.2fMB %.3fGB/h", s.FileSizeMB(), s.GBPerHour)),
	}
	if p, ok := s.Pressure(); ok {
		parts = append(parts, field("pressure", domain.FormatFloat(p.Value)+" "+p.Unit))
	}
	if amps := s.Amplitudes(); len(amps) > 0 {
		peak := amps[0]
		for _, a := range amps[1:] {
			if a > peak {
				peak = a
			}
		}
		parts = append(parts, field("peak", fmt.Sprintf("%.2f", peak)))
	}
	if s.HasEfficiency {
		eff := fmt.Sprintf("%.1f%%", s.Efficiency*100)
		if s.Efficiency > 1 {
			eff = warnStyle.Render(eff)
		} else {
			eff = valueStyle.Render(eff)
		}
		parts = append(parts, labelStyle.Render("integration=")+eff)
	}
	return strings.Join(parts, " ")
}

func field(k, v string) string {
	return labelStyle.Render(k+"=") + valueStyle.Render(v)
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
