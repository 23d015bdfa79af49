package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/evilmartians/asyncworker/config"
	"github.com/evilmartians/asyncworker/internal/forwarder"
	"github.com/evilmartians/asyncworker/queues"
	"github.com/evilmartians/asyncworker/server"
	"github.com/evilmartians/asyncworker/worker"
)

func main() {
	log.Info("Reading config...")

	path, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Fatal(err)
	}

	// Physical queue set, needed for the queue size gauge
	watch, err := worker.QueueSet(cfg.Worker.Queues)
	if err != nil {
		log.Fatal(err)
	}

	queue, err := queues.New(context.Background(), cfg, watch)
	if err != nil {
		log.Fatal(err)
	}

	processor, err := forwarder.NewClient(cfg)
	if err != nil {
		log.Fatal(err)
	}

	w, err := worker.New(queue, processor, cfg.Worker.Queues,
		worker.WithBackoff(cfg.Worker.Backoff),
		worker.WithRateLimit(cfg.Worker.HandlePerSecond),
	)
	if err != nil {
		log.Fatal(err)
	}

	metrics := server.NewMetrics(cfg, queue)
	srv := server.NewServer(cfg, w, metrics)

	log.Info("Starting worker...")

	runCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan error, 1)
	go func() {
		workerDone <- w.Run(runCtx)
	}()

	srv.Start()
	metrics.Start()

	// Handle shutdowns gracefully
	signalChan := make(chan os.Signal, 1)
	signal.Notify(
		signalChan,
		syscall.SIGINT,
		syscall.SIGTERM,
	)

	<-signalChan
	log.Info("Shutting down gracefully...")

	gracefulCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(gracefulCtx); err != nil {
		log.Fatal(err)
	} else {
		log.Info("Gracefully stopped server")
	}

	if err := metrics.Shutdown(gracefulCtx); err != nil {
		log.Fatal(err)
	} else {
		log.Info("Gracefully stopped metrics")
	}

	stopWorker()
	select {
	case err := <-workerDone:
		if err != nil {
			log.Fatal(err)
		}
		log.Info("Gracefully stopped worker")
	case <-gracefulCtx.Done():
		log.Warn("Worker did not stop in time")
	}

	if err := queue.Shutdown(); err != nil {
		log.Fatal(err)
	} else {
		log.Info("Gracefully stopped queue")
	}
}
