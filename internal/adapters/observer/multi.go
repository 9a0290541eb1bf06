package observer

import (
	"github.com/subradiance/daqlog/internal/domain"
	"github.com/subradiance/daqlog/internal/ports"
)

// Multi fans a snapshot out to every observer in order.
type Multi []ports.Observer

func (m Multi) Observe(s domain.Snapshot) {
	for _, o := range m {
		o.Observe(s)
	}
}
