// Package schema holds the contracts shared between the notifier core and the
// backend adapters.
package schema

import (
	"context"

	"github.com/alertrelay/alertrelay/internal/bus"
)

// Deliverer is the interface every backend adapter must implement.
type Deliverer interface {
	// Name returns the backend this adapter delivers to.
	Name() bus.Backend
	// Init validates credentials and performs any one-time handshake.
	Init(ctx context.Context) error
	// Deliver sends env to every one of its targets. A fault for one target
	// must not prevent delivery to the others.
	Deliver(ctx context.Context, env bus.Envelope) error
}
