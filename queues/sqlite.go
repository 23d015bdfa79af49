package queues

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	sqlCreateTasks = `
    CREATE TABLE IF NOT EXISTS tasks (
      id INTEGER PRIMARY KEY AUTOINCREMENT,
      queue TEXT NOT NULL,
      payload BLOB NOT NULL,
      timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
    );
  `
	sqliteInsert = `
    INSERT INTO tasks (queue, payload) VALUES (?, ?);
  `
	sqliteSelect = `
    SELECT id, payload FROM tasks
    WHERE queue = ?
    ORDER BY id ASC
    LIMIT 1;
  `
	sqliteDelete = `
    DELETE FROM tasks WHERE id = ?;
  `
	sqliteCountTotal = `
    SELECT COUNT(*) FROM tasks;
  `
)

// SQLiteQueue is a single-file durable backend. Like leveldb it polls
// for the blocking pop.
type SQLiteQueue struct {
	sync.Mutex
	db *sql.DB
}

func NewSQLiteQueue(dbName string) (*SQLiteQueue, error) {
	db, err := sql.Open("sqlite3", dbName)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1) // prevents locks on inserting

	if _, err = db.Exec(sqlCreateTasks); err != nil {
		return nil, err
	}

	return &SQLiteQueue{db: db}, nil
}

func (q *SQLiteQueue) Total() (cnt uint64) {
	_ = q.db.QueryRow(sqliteCountTotal).Scan(&cnt)
	return
}

func (q *SQLiteQueue) Shutdown() error {
	return q.db.Close()
}

func (q *SQLiteQueue) Push(ctx context.Context, queue string, payload []byte) error {
	_, err := q.db.ExecContext(ctx, sqliteInsert, queue, payload)

	return err
}

func (q *SQLiteQueue) BlockingPop(ctx context.Context, queues []string) (string, []byte, error) {
	for {
		for _, name := range queues {
			payload, err := q.popOne(ctx, name)
			if err == errEmptyQueue {
				continue
			}
			if err != nil {
				return "", nil, err
			}

			return name, payload, nil
		}

		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (q *SQLiteQueue) popOne(ctx context.Context, queue string) ([]byte, error) {
	q.Lock()
	defer q.Unlock()

	var (
		id      int64
		payload []byte
	)

	err := q.db.QueryRowContext(ctx, sqliteSelect, queue).Scan(&id, &payload)
	if err == sql.ErrNoRows {
		return nil, errEmptyQueue
	}
	if err != nil {
		return nil, err
	}

	if _, err = q.db.ExecContext(ctx, sqliteDelete, id); err != nil {
		return nil, err
	}

	return payload, nil
}
