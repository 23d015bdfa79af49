package worker

import (
	"context"
)

// Queue is the narrow store surface the worker depends on. Backends
// live in the queues package.
type Queue interface {
	Total() uint64
	Shutdown() error

	// Push appends one raw payload to the given physical queue.
	Push(ctx context.Context, queue string, payload []byte) error

	// BlockingPop suspends until any of the given queues yields an
	// item, checking them in order, and returns the queue that had it.
	// It returns only with data or with the context's error.
	BlockingPop(ctx context.Context, queues []string) (queue string, payload []byte, err error)
}
