package queues

// NOTE: Do not use prepared statements. This service is supposed to
// be used with pg_bouncer in Transaction pooling mode, which does not
// support prepared statements.
// See: https://www.pgbouncer.org/features.html

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "github.com/lib/pq"
)

const (
	pgCreateTasks = `
    CREATE TABLE IF NOT EXISTS tasks (
      id UUID PRIMARY KEY,
      queue TEXT NOT NULL,
      payload BYTEA NOT NULL,
      timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
    );
  `

	pgInsert = `
    INSERT INTO tasks (id, queue, payload) VALUES ($1, $2, $3);
  `

	pgSelect = `
    SELECT id, payload
    FROM tasks
    WHERE queue = $1
    ORDER BY timestamp ASC
    LIMIT 1
    FOR UPDATE
    SKIP LOCKED;
  `

	pgDelete = `
    DELETE FROM tasks WHERE id = $1;
  `

	pgCountTotal = `
    SELECT COUNT(*) FROM tasks;
  `
)

// PgQueue is the shared-database backend: multiple consumers can pop
// concurrently thanks to SKIP LOCKED. The blocking pop polls queues in
// priority order.
type PgQueue struct {
	db *sql.DB
}

func NewPgQueue(connString string, maxConns int) (*PgQueue, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(maxConns)

	if err = db.Ping(); err != nil {
		return nil, err
	}

	if _, err = db.Exec(pgCreateTasks); err != nil {
		return nil, err
	}

	return &PgQueue{db: db}, nil
}

func (q *PgQueue) Total() (cnt uint64) {
	_ = q.db.QueryRow(pgCountTotal).Scan(&cnt)
	return
}

func (q *PgQueue) Shutdown() error {
	return q.db.Close()
}

func (q *PgQueue) Push(ctx context.Context, queue string, payload []byte) error {
	_, err := q.db.ExecContext(ctx, pgInsert, uuid.New(), queue, payload)

	return err
}

func (q *PgQueue) BlockingPop(ctx context.Context, queues []string) (string, []byte, error) {
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

func (q *PgQueue) popOne(ctx context.Context, queue string) ([]byte, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var (
		id      string
		payload []byte
	)

	err = tx.QueryRowContext(ctx, pgSelect, queue).Scan(&id, &payload)
	if err == sql.ErrNoRows {
		return nil, errEmptyQueue
	}
	if err != nil {
		return nil, err
	}

	if _, err = tx.ExecContext(ctx, pgDelete, id); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit error: %v", err)
	}

	return payload, nil
}
