package queues

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/evilmartians/asyncworker/config"
	"github.com/evilmartians/asyncworker/worker"
)

// pollInterval paces the backends that fake a blocking pop by polling.
const pollInterval = 100 * time.Millisecond

var errEmptyQueue = errors.New("queue is empty")

// New builds the store backend selected by the config. watch is the
// physical queue set used for size reporting.
func New(ctx context.Context, cfg *config.Config, watch []string) (worker.Queue, error) {
	switch cfg.Queue.Type {
	case "redis", "":
		return NewRedisQueue(ctx, cfg.Redis.URL, watch)
	case "leveldb":
		return NewLevelDBQueue(cfg.LevelDb.Dir)
	case "sqlite":
		return NewSQLiteQueue(cfg.Sqlite.Path)
	case "postgres":
		return NewPgQueue(cfg.Db.ConnectionString, cfg.Db.MaxConnections)
	default:
		return nil, fmt.Errorf("unknown queue type: %s", cfg.Queue.Type)
	}
}
