package ports

import "github.com/subradiance/daqlog/internal/domain"

// Observer receives periodic snapshots. Observe must not block the caller for
// long and must not panic.
type Observer interface {
	Observe(s domain.Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(domain.Snapshot)

func (f ObserverFunc) Observe(s domain.Snapshot) { f(s) }
