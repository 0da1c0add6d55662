package printer

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

var (
	// ErrPrinterNotFound is returned when a printer is unknown to the
	// registry or did not answer the status handshake.
	ErrPrinterNotFound = errors.New("printer not found")
	// ErrNoRoute is returned when a command has no target printer and no
	// printer is selected.
	ErrNoRoute = errors.New("no printer selected")
)

// TransportKind classifies a TransportError.
type TransportKind int

const (
	KindIO TransportKind = iota
	KindHostUnreachable
	KindConnectionRefused
)

func (k TransportKind) String() string {
	switch k {
	case KindHostUnreachable:
		return "host unreachable"
	case KindConnectionRefused:
		return "connection refused"
	default:
		return "i/o error"
	}
}

// TransportError is a socket failure against a specific printer.
type TransportError struct {
	Kind TransportKind
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Addr, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func newTransportError(op, addr string, err error) *TransportError {
	return &TransportError{Kind: classify(err), Op: op, Addr: addr, Err: err}
}

func classify(err error) TransportKind {
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return KindConnectionRefused
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH), errors.As(err, &dnsErr):
		return KindHostUnreachable
	default:
		return KindIO
	}
}

// InvalidStateError is returned for an operation the connection cannot
// perform in its current state.
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state: %s while connection is %s", e.Op, e.State)
}
