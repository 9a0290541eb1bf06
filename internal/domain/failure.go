package domain

import (
	"errors"
	"fmt"
)

// FailureKind classifies what went wrong.
type FailureKind int

const (
	TransportFailure FailureKind = iota
	ProtocolFailure
	WriteFailure
	ConfigurationFailure
)

var (
	ErrTransport     = errors.New("transport failure")
	ErrProtocol      = errors.New("protocol failure")
	ErrWrite         = errors.New("write failure")
	ErrConfiguration = errors.New("configuration failure")
)

var kindSentinel = map[FailureKind]error{
	TransportFailure:     ErrTransport,
	ProtocolFailure:      ErrProtocol,
	WriteFailure:         ErrWrite,
	ConfigurationFailure: ErrConfiguration,
}

func (k FailureKind) String() string {
	switch k {
	case TransportFailure:
		return "transport"
	case ProtocolFailure:
		return "protocol"
	case WriteFailure:
		return "write"
	case ConfigurationFailure:
		return "configuration"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

// Failure is a typed error. errors.Is matches both the kind sentinel and the
// wrapped cause.
type Failure struct {
	Kind   FailureKind
	Device string
	Err    error
}

// NewFailure builds a failure of the given kind.
func NewFailure(kind FailureKind, device string, err error) *Failure {
	return &Failure{Kind: kind, Device: device, Err: err}
}

// Transportf is shorthand for a transport failure with a formatted cause.
func Transportf(device, format string, a ...any) *Failure {
	return NewFailure(TransportFailure, device, fmt.Errorf(format, a...))
}

// Protocolf is shorthand for a protocol failure with a formatted cause.
func Protocolf(device, format string, a ...any) *Failure {
	return NewFailure(ProtocolFailure, device, fmt.Errorf(format, a...))
}

func (f *Failure) Error() string {
	if f.Device == "" {
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
	return fmt.Sprintf("%s %s: %v", f.Device, f.Kind, f.Err)
}

func (f *Failure) Unwrap() []error {
	errs := []error{kindSentinel[f.Kind]}
	if f.Err != nil {
		errs = append(errs, f.Err)
	}
	return errs
}
