package worker

import (
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
)

// Option configures a Worker at construction.
type Option func(*Worker)

// WithLogger replaces the default standard logger.
func WithLogger(logger *log.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.log = logger
		}
	}
}

// WithBackoff sets the delay after a contained failure.
func WithBackoff(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.backoff = d
		}
	}
}

// WithRateLimit bounds how many tasks per second the loop processes.
func WithRateLimit(perSecond int) Option {
	return func(w *Worker) {
		if perSecond > 0 {
			w.limiter = ratelimit.New(perSecond)
		}
	}
}

// EnqueueOption configures a single Enqueue call.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	queue  string
	taskID string
}

// WithQueue routes the task to the given logical queue instead of the
// first queue of the set.
func WithQueue(name string) EnqueueOption {
	return func(o *enqueueOptions) {
		o.queue = name
	}
}

// WithTaskID uses the given id instead of generating one.
func WithTaskID(id string) EnqueueOption {
	return func(o *enqueueOptions) {
		o.taskID = id
	}
}
