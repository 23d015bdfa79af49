package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
)

// ProcessingSuffix is appended to every logical queue name to form the
// physical store key. The unsuffixed name is never used against the
// store after construction.
const ProcessingSuffix = ":processing"

const defaultBackoff = time.Second

// Worker is a single consumer over an ordered set of queues. It pops
// envelopes, decodes them and hands them to the processor; every
// per-iteration failure is logged and survived.
type Worker struct {
	queue     Queue
	queues    []string // physical names, order preserved
	processor Processor
	limiter   ratelimit.Limiter
	backoff   time.Duration
	log       *log.Logger
}

// New validates the queue set and builds a worker. The processor may
// be nil for enqueue-only use; Run refuses to start without one.
func New(queue Queue, processor Processor, queueNames []string, opts ...Option) (*Worker, error) {
	if queue == nil {
		return nil, ErrNilQueue
	}

	queues, err := QueueSet(queueNames)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		queue:     queue,
		queues:    queues,
		processor: processor,
		limiter:   ratelimit.NewUnlimited(),
		backoff:   defaultBackoff,
		log:       log.StandardLogger(),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// QueueSet validates logical queue names and returns the physical
// names, suffixed and in the same order.
func QueueSet(names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("invalid queue set: %w", ErrNoQueues)
	}

	queues := make([]string, len(names))
	for i, name := range names {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid queue set: %w (entry %d)", ErrBlankQueueName, i)
		}

		queues[i] = name + ProcessingSuffix
	}

	return queues, nil
}

// Run is the main processing loop. It blocks until ctx is cancelled,
// which is the only way it returns nil; a missing processor is the
// only error it returns.
func (w *Worker) Run(ctx context.Context) error {
	w.log.WithFields(log.Fields{
		"queues":    w.queues,
		"processor": w.processorName(),
	}).Info("worker started")

	if w.processor == nil {
		w.log.Debug("no processor registered, refusing to run")
		return ErrNoProcessor
	}

	for {
		queue, raw, err := w.dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.log.Info("worker stopped")
				return nil
			}

			// Store-level hiccup: same containment as a bad task.
			w.handleTaskError(ctx, err)
			continue
		}

		if len(raw) == 0 {
			continue
		}

		if err := w.process(ctx, queue, raw); err != nil {
			if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
				w.log.Info("worker stopped")
				return nil
			}

			w.handleTaskError(ctx, err)
		}
	}
}

// dequeue suspends on the store until any queue yields an item.
func (w *Worker) dequeue(ctx context.Context) (string, []byte, error) {
	queue, raw, err := w.queue.BlockingPop(ctx, w.queues)
	if err != nil {
		return "", nil, err
	}

	w.log.WithFields(log.Fields{
		"processor": w.processorName(),
		"queue":     queue,
		"task":      string(raw),
	}).Info("task received")

	return queue, raw, nil
}

// process decodes one envelope and dispatches it. Decode failures and
// processor failures deliberately share one error path.
func (w *Worker) process(ctx context.Context, queue string, raw []byte) error {
	_ = w.limiter.Take() // limit processing load

	start := time.Now()

	env, err := DecodeEnvelope(raw)
	if err != nil {
		trackTask(start, queue, err)
		return err
	}

	w.log.WithFields(log.Fields{
		"processor": w.processorName(),
		"task_id":   env.TaskID,
		"task":      string(env.Payload),
	}).Info("task decoded")

	err = w.processor.Process(ctx, env.TaskID, env.Payload)
	trackTask(start, queue, err)

	return err
}

// handleTaskError logs a contained failure and backs off before the
// next iteration, so a misbehaving producer or processor cannot spin
// the loop hot.
func (w *Worker) handleTaskError(ctx context.Context, err error) {
	w.log.WithFields(log.Fields{
		"processor": w.processorName(),
		"error":     err.Error(),
	}).Error("task error")

	trackTaskError(w.processorName())

	select {
	case <-ctx.Done():
	case <-time.After(w.backoff):
	}
}

// Enqueue serializes the payload into an envelope and pushes it onto
// the suffixed destination queue, defaulting to the first queue of the
// set. It returns the task id used; store errors propagate uncaught.
func (w *Worker) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) (string, error) {
	options := enqueueOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	taskID := options.taskID
	if taskID == "" {
		taskID = NewTaskID()
	}

	queue := w.queues[0]
	if options.queue != "" {
		queue = options.queue + ProcessingSuffix
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling payload: %w", err)
	}

	raw, err := Envelope{TaskID: taskID, Payload: body}.Encode()
	if err != nil {
		return "", err
	}

	w.log.WithFields(log.Fields{
		"queue":   queue,
		"task_id": taskID,
		"task":    string(body),
	}).Info("task sent")

	if err := w.queue.Push(ctx, queue, raw); err != nil {
		return "", fmt.Errorf("pushing task %s to %s: %w", taskID, queue, err)
	}

	return taskID, nil
}

func (w *Worker) processorName() string {
	if w.processor == nil {
		return ""
	}

	return w.processor.Name()
}
