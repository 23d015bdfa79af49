package queues

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/beeker1121/goque"
)

// LevelDBQueue is a local durable backend: one goque queue per
// physical queue name under a shared directory. LevelDB has no
// blocking primitive, so the pop polls the queues in priority order.
type LevelDBQueue struct {
	mu     sync.Mutex
	dir    string
	queues map[string]*goque.Queue
}

func NewLevelDBQueue(dir string) (*LevelDBQueue, error) {
	return &LevelDBQueue{
		dir:    dir,
		queues: make(map[string]*goque.Queue),
	}, nil
}

func (q *LevelDBQueue) Total() (total uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, queue := range q.queues {
		total += queue.Length()
	}

	return
}

func (q *LevelDBQueue) Shutdown() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, queue := range q.queues {
		queue.Close()
	}
	q.queues = make(map[string]*goque.Queue)

	return nil
}

func (q *LevelDBQueue) Push(ctx context.Context, queue string, payload []byte) error {
	dbQueue, err := q.queueFor(queue)
	if err != nil {
		return err
	}

	_, err = dbQueue.Enqueue(payload)

	return err
}

func (q *LevelDBQueue) BlockingPop(ctx context.Context, queues []string) (string, []byte, error) {
	for {
		for _, name := range queues {
			dbQueue, err := q.queueFor(name)
			if err != nil {
				return "", nil, err
			}

			item, err := dbQueue.Dequeue()
			if err == goque.ErrEmpty {
				continue
			}
			if err != nil {
				return "", nil, err
			}

			return name, item.Value, nil
		}

		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (q *LevelDBQueue) queueFor(name string) (*goque.Queue, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if queue, ok := q.queues[name]; ok {
		return queue, nil
	}

	// ":" is legal on linux but awkward in paths
	queue, err := goque.OpenQueue(filepath.Join(q.dir, strings.ReplaceAll(name, ":", "_")))
	if err != nil {
		return nil, err
	}
	q.queues[name] = queue

	return queue, nil
}
