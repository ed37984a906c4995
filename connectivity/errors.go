package connectivity

import "fmt"

// ErrServiceNotFound is returned when Call targets a service with no route
// and no local handler.
type ErrServiceNotFound struct {
	Service string
}

func (e *ErrServiceNotFound) Error() string {
	return fmt.Sprintf("connectivity: service not routable: %s", e.Service)
}

// ErrRemote carries a non-2xx answer from a remote daemon.
type ErrRemote struct {
	Service string
	Status  int
	Message string
}

func (e *ErrRemote) Error() string {
	return fmt.Sprintf("connectivity: %s: status %d: %s", e.Service, e.Status, e.Message)
}

// ErrPanic wraps a recovered panic value as an error.
type ErrPanic struct {
	Value any
}

func (e *ErrPanic) Error() string {
	return fmt.Sprintf("connectivity: handler panicked: %v", e.Value)
}
