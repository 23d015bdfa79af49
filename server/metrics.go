package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	cfg "github.com/evilmartians/asyncworker/config"
	"github.com/evilmartians/asyncworker/worker"
)

var (
	requestsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Number of requests.",
	}, []string{"path"})

	requestsDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_response_time_seconds",
		Help:    "Response time.",
		Buckets: []float64{.5, 1, 2.5, 5},
	}, []string{"path"})
)

type Metrics struct {
	server            *http.Server
	prometheusPath    string
	prometheusHandler http.Handler
}

func NewMetrics(config *cfg.Config, queue worker.Queue) *Metrics {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "queue_total_size",
		Help: "Number of all tasks in the queue.",
	}, func() float64 {
		return float64(queue.Total())
	})

	m := &Metrics{
		prometheusPath:    config.Metrics.Path,
		prometheusHandler: promhttp.Handler(),
	}

	m.server = &http.Server{
		Addr:         config.Metrics.Bind,
		Handler:      m,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	return m
}

func (m *Metrics) Start() {
	go func() {
		if err := m.server.ListenAndServe(); err != http.ErrServerClosed {
			log.WithError(err).Warn("metrics error")
		}
	}()
}

func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.server.Shutdown(ctx)
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.WithFields(log.Fields{
		"ip":  r.RemoteAddr,
		"uri": r.RequestURI,
	}).Info("metrics check")

	if r.URL.Path != m.prometheusPath {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	m.prometheusHandler.ServeHTTP(w, r)
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trackRequest(r)

		start := time.Now()
		next.ServeHTTP(w, r)
		trackRequestDuration(start, r)
	})
}

func trackRequest(r *http.Request) {
	requestsCounter.WithLabelValues(r.URL.Path).Inc()
}

func trackRequestDuration(start time.Time, r *http.Request) {
	requestsDuration.
		WithLabelValues(r.URL.Path).
		Observe(time.Since(start).Seconds())
}
