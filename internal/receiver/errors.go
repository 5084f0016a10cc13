package receiver

import (
	"errors"
	"fmt"

	"github.com/coreman2200/funtimes-sacn/internal/sacn"
)

// Receiver errors.
var (
	ErrClosed        = errors.New("receiver closed")
	ErrNotSubscribed = errors.New("universe not subscribed")
)

// TransportError reports a socket open or group join that failed. Once
// Attempts reaches the configured bound the binding is Failed and the
// universe stays blanked.
type TransportError struct {
	Universe uint16
	Mode     sacn.TransportMode
	Port     int
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s universe %d port %d after %d attempt(s): %v",
		e.Mode, e.Universe, e.Port, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
