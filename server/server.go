package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	cfg "github.com/evilmartians/asyncworker/config"
	"github.com/evilmartians/asyncworker/worker"
)

// Enqueuer is the slice of the worker the server needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload any, opts ...worker.EnqueueOption) (string, error)
}

type Server struct {
	server   *http.Server
	enqueuer Enqueuer

	// Rate limiter for the producer side
	// Can be lowered if the store latency is too big
	rateLimiter *rate.Limiter
}

func NewServer(config *cfg.Config, enqueuer Enqueuer, metrics *Metrics) *Server {
	log.WithFields(log.Fields{
		"bind":             config.Server.Bind,
		"shutdown_timeout": config.Server.ShutdownTimeout,
		"enqueue_rate":     config.Server.EnqueueRate,
	}).Info("Initializing server")

	s := &Server{
		enqueuer:    enqueuer,
		rateLimiter: rate.NewLimiter(rate.Limit(config.Server.EnqueueRate), config.Server.EnqueueRate),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/enqueue", s.handleEnqueue)

	s.server = &http.Server{
		Addr:         config.Server.Bind,
		Handler:      metrics.Middleware(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	s.server.SetKeepAlivesEnabled(false)

	return s
}

func (s *Server) Start() {
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			log.WithError(err).Warn("server error")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Accepts a JSON payload and puts it onto the queue. The task id is
// generated unless an X-Task-Id header supplies one.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	log.WithFields(log.Fields{
		"ip":  r.RemoteAddr,
		"uri": r.RequestURI,
	}).Info("enqueue request")

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if !s.rateLimiter.Allow() {
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}

	var payload json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		log.WithError(err).Warn("bad enqueue payload")
		return
	}

	var opts []worker.EnqueueOption
	if queue := r.URL.Query().Get("queue"); queue != "" {
		opts = append(opts, worker.WithQueue(queue))
	}
	if taskID := r.Header.Get("X-Task-Id"); taskID != "" {
		opts = append(opts, worker.WithTaskID(taskID))
	}

	taskID, err := s.enqueuer.Enqueue(r.Context(), payload, opts...)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		log.WithError(err).Error("enqueueing error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintf(w, `{"task_id":%q}`, taskID)
}
