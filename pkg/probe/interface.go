package probe

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrTimeout is returned when the box does not deliver a complete
	// frame set within the acquisition window.
	ErrTimeout = errors.New("probe: acquisition timed out")
	// ErrMalformed is returned when a payload is not a whole number of frames.
	ErrMalformed = errors.New("probe: malformed payload")
	// ErrNotConnected is returned by Acquire before Connect succeeded.
	ErrNotConnected = errors.New("probe: not connected")
)

// Acquisition is the raw outcome of one read. Count is zero on failure.
type Acquisition struct {
	Count int
	Data  []byte
}

// Transport requests one frame set from the sensor box. Calls are blocking
// and must not overlap on the same instance.
type Transport interface {
	Name() string
	Connect() error
	Acquire(ctx context.Context) (Acquisition, error)
	Close() error
}

// Ensure every transport implements Transport.
var (
	_ Transport = (*Serial)(nil)
	_ Transport = (*Socket)(nil)
	_ Transport = (*Mock)(nil)
)
