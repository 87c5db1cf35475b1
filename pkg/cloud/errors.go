package cloud

import (
	"errors"
	"fmt"
)

// ErrRejected marks a delivery the control plane refused with a 4xx.
// Rejected items are retained locally and retried on later drains.
var ErrRejected = errors.New("rejected by control plane")

// TransportError wraps network-level and unexpected-status failures.
// Transport failures are always non-fatal: they degrade the
// connectivity state and are retried on the next schedule.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("control plane %s failed (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("control plane %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether an error is a transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
