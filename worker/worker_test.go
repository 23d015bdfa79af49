package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

type popItem struct {
	queue   string
	payload []byte
}

type fakeQueue struct {
	mu      sync.Mutex
	items   chan popItem
	pushed  []popItem
	pops    int
	pushErr error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{items: make(chan popItem, 16)}
}

func (q *fakeQueue) Total() uint64 {
	return uint64(len(q.items))
}

func (q *fakeQueue) Shutdown() error {
	return nil
}

func (q *fakeQueue) Push(ctx context.Context, queue string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pushErr != nil {
		return q.pushErr
	}

	q.pushed = append(q.pushed, popItem{queue, payload})

	return nil
}

func (q *fakeQueue) BlockingPop(ctx context.Context, queues []string) (string, []byte, error) {
	q.mu.Lock()
	q.pops++
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return "", nil, ctx.Err()
	case item := <-q.items:
		return item.queue, item.payload, nil
	}
}

func (q *fakeQueue) popCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.pops
}

func (q *fakeQueue) lastPushed() (popItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pushed) == 0 {
		return popItem{}, false
	}

	return q.pushed[len(q.pushed)-1], true
}

type processedTask struct {
	taskID  string
	payload string
}

type fakeProcessor struct {
	calls    chan processedTask
	failures int32
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{calls: make(chan processedTask, 16)}
}

func (p *fakeProcessor) Name() string {
	return "fake"
}

func (p *fakeProcessor) Process(ctx context.Context, taskID string, payload json.RawMessage) error {
	if atomic.AddInt32(&p.failures, -1) >= 0 {
		return errors.New("processing failed")
	}

	p.calls <- processedTask{taskID, string(payload)}

	return nil
}

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)

	return logger
}

func newTestWorker(t *testing.T, q Queue, p Processor, names ...string) *Worker {
	t.Helper()

	w, err := New(q, p, names,
		WithLogger(quietLogger()),
		WithBackoff(time.Millisecond),
	)
	if err != nil {
		t.Fatalf("worker should build: %s", err)
	}

	return w
}

func runWorker(w *Worker) (context.CancelFunc, chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- w.Run(ctx)
	}()

	return cancel, done
}

func waitProcessed(t *testing.T, p *fakeProcessor) processedTask {
	t.Helper()

	select {
	case task := <-p.calls:
		return task
	case <-time.After(2 * time.Second):
		t.Fatal("task was not processed in time")
		return processedTask{}
	}
}

func waitStopped(t *testing.T, done chan error) {
	t.Helper()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("cancellation should stop the loop cleanly: %s", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop in time")
	}
}

func TestQueueSet(t *testing.T) {
	queues, err := QueueSet([]string{"orders", "emails"})
	if err != nil {
		t.Fatalf("wanted: nil, got: %s", err)
	}
	if len(queues) != 2 {
		t.Fatalf("expected 2 queues, got %d", len(queues))
	}
	if queues[0] != "orders:processing" || queues[1] != "emails:processing" {
		t.Errorf("expected suffixed names in order, got %v", queues)
	}

	if _, err = QueueSet(nil); !errors.Is(err, ErrNoQueues) {
		t.Errorf("empty set must fail with ErrNoQueues, got: %v", err)
	}

	if _, err = QueueSet([]string{"orders", " "}); !errors.Is(err, ErrBlankQueueName) {
		t.Errorf("blank name must fail with ErrBlankQueueName, got: %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, nil, []string{"orders"}); !errors.Is(err, ErrNilQueue) {
		t.Errorf("nil queue must fail, got: %v", err)
	}

	if _, err := New(newFakeQueue(), nil, nil); !errors.Is(err, ErrNoQueues) {
		t.Errorf("empty queue set must fail at construction, got: %v", err)
	}
}

func TestRunWithoutProcessor(t *testing.T) {
	q := newFakeQueue()
	w := newTestWorker(t, q, nil, "orders")

	if err := w.Run(context.Background()); !errors.Is(err, ErrNoProcessor) {
		t.Errorf("wanted ErrNoProcessor, got: %v", err)
	}
	if q.popCount() != 0 {
		t.Errorf("worker must not touch the store without a processor")
	}
}

func TestRunProcessesTask(t *testing.T) {
	q := newFakeQueue()
	p := newFakeProcessor()
	w := newTestWorker(t, q, p, "orders")

	q.items <- popItem{"orders:processing", []byte(`{"a1b2c3d4e5":{"x":1}}`)}

	cancel, done := runWorker(w)

	task := waitProcessed(t, p)
	if task.taskID != "a1b2c3d4e5" {
		t.Errorf("expected task id a1b2c3d4e5, got %s", task.taskID)
	}
	if task.payload != `{"x":1}` {
		t.Errorf("expected payload to be passed through, got %s", task.payload)
	}

	cancel()
	waitStopped(t, done)
}

func TestRunRecoversFromMalformedTask(t *testing.T) {
	q := newFakeQueue()
	p := newFakeProcessor()
	w := newTestWorker(t, q, p, "orders")

	q.items <- popItem{"orders:processing", []byte(`{"broken":`)}
	q.items <- popItem{"orders:processing", []byte(`{"0000000001":"ok"}`)}

	cancel, done := runWorker(w)

	task := waitProcessed(t, p)
	if task.taskID != "0000000001" {
		t.Errorf("expected the well-formed task to survive, got %s", task.taskID)
	}

	cancel()
	waitStopped(t, done)
}

func TestRunRecoversFromProcessorError(t *testing.T) {
	q := newFakeQueue()
	p := newFakeProcessor()
	p.failures = 1
	w := newTestWorker(t, q, p, "orders")

	q.items <- popItem{"orders:processing", []byte(`{"1111111111":1}`)}
	q.items <- popItem{"orders:processing", []byte(`{"2222222222":2}`)}

	cancel, done := runWorker(w)

	task := waitProcessed(t, p)
	if task.taskID != "2222222222" {
		t.Errorf("recovery should be per-iteration, got task %s", task.taskID)
	}

	cancel()
	waitStopped(t, done)
}

func TestRunSkipsEmptyPop(t *testing.T) {
	q := newFakeQueue()
	p := newFakeProcessor()
	w := newTestWorker(t, q, p, "orders")

	q.items <- popItem{"orders:processing", nil}
	q.items <- popItem{"orders:processing", []byte(`{"3333333333":3}`)}

	cancel, done := runWorker(w)

	task := waitProcessed(t, p)
	if task.taskID != "3333333333" {
		t.Errorf("empty pop should be a no-op, got task %s", task.taskID)
	}

	cancel()
	waitStopped(t, done)
}

func TestRunStopsOnCancel(t *testing.T) {
	q := newFakeQueue()
	w := newTestWorker(t, q, newFakeProcessor(), "orders")

	cancel, done := runWorker(w)

	cancel()
	waitStopped(t, done)
}

func TestEnqueueGeneratesFreshIDs(t *testing.T) {
	q := newFakeQueue()
	w := newTestWorker(t, q, nil, "orders", "emails")

	first, err := w.Enqueue(context.Background(), map[string]int{"x": 1})
	if err != nil {
		t.Fatalf("wanted: nil, got: %s", err)
	}
	second, err := w.Enqueue(context.Background(), map[string]int{"x": 2})
	if err != nil {
		t.Fatalf("wanted: nil, got: %s", err)
	}

	if len(first) != 10 || len(second) != 10 {
		t.Errorf("task ids should be 10 characters: %q, %q", first, second)
	}
	if first == second {
		t.Errorf("task ids should be fresh per call: %q", first)
	}

	item, ok := q.lastPushed()
	if !ok {
		t.Fatal("expected a pushed envelope")
	}
	if item.queue != "orders:processing" {
		t.Errorf("default destination should be the first queue, got %s", item.queue)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(item.payload, &envelope); err != nil {
		t.Fatalf("pushed envelope should be valid JSON: %s", err)
	}
	if _, ok := envelope[second]; !ok || len(envelope) != 1 {
		t.Errorf("expected single-key envelope keyed by %s, got %s", second, item.payload)
	}
}

func TestEnqueueExplicitOptions(t *testing.T) {
	q := newFakeQueue()
	w := newTestWorker(t, q, nil, "orders")

	id, err := w.Enqueue(context.Background(), "payload",
		WithTaskID("a1b2c3d4e5"),
		WithQueue("emails"),
	)
	if err != nil {
		t.Fatalf("wanted: nil, got: %s", err)
	}
	if id != "a1b2c3d4e5" {
		t.Errorf("explicit task id should be used exactly, got %s", id)
	}

	item, ok := q.lastPushed()
	if !ok {
		t.Fatal("expected a pushed envelope")
	}
	if item.queue != "emails:processing" {
		t.Errorf("explicit queue should be suffixed, got %s", item.queue)
	}
	if string(item.payload) != `{"a1b2c3d4e5":"payload"}` {
		t.Errorf("unexpected envelope: %s", item.payload)
	}
}

func TestEnqueuePushErrorPropagates(t *testing.T) {
	q := newFakeQueue()
	q.pushErr = errors.New("store is down")
	w := newTestWorker(t, q, nil, "orders")

	if _, err := w.Enqueue(context.Background(), 1); err == nil {
		t.Errorf("store errors must propagate to the caller")
	}
}
