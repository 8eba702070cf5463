// Package server wires the order book to the network: a TCP listener
// accepts connections, a tomb-supervised worker pool reads wire frames off
// each connection, and a single matcher goroutine is the only caller that
// ever touches the book (spec.md §5: the matching core is single-threaded).
// Grounded on _examples/saiputravu-Exchange/internal/worker.go and
// internal/net/server.go, generalized from their AssetType-keyed exchange
// model down to the spec's single instrument.
package server

import (
	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"
)

const defaultTaskChanSize = 100

// WorkerFunction is the unit of work a WorkerPool repeatedly hands to idle
// workers, the same signature saiputravu-Exchange's WorkerPool uses.
type WorkerFunction = func(t *tomb.Tomb, task any) error

// WorkerPool runs a fixed number of persistent worker goroutines under a
// shared tomb, each pulling tasks off one channel. Unlike the teacher's
// pool — which respawns a fresh one-shot worker after every single task via
// a busy-polling loop — workers here loop for the tomb's whole lifetime,
// which is the ordinary idiom for a bounded worker pool and avoids the
// respawn churn.
type WorkerPool struct {
	n     int
	tasks chan any
	log   zerolog.Logger
}

// NewWorkerPool builds a pool of size workers.
func NewWorkerPool(size int, logger zerolog.Logger) WorkerPool {
	return WorkerPool{
		tasks: make(chan any, defaultTaskChanSize),
		n:     size,
		log:   logger,
	}
}

// AddTask enqueues task for the next idle worker.
func (pool *WorkerPool) AddTask(task any) {
	pool.tasks <- task
}

// Setup starts the pool's workers under t, each running work against tasks
// until t starts dying.
func (pool *WorkerPool) Setup(t *tomb.Tomb, work WorkerFunction) {
	pool.log.Info().Int("workers", pool.n).Msg("starting worker pool")
	for i := 0; i < pool.n; i++ {
		t.Go(func() error {
			return pool.workerLoop(t, work)
		})
	}
}

func (pool *WorkerPool) workerLoop(t *tomb.Tomb, work WorkerFunction) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-pool.tasks:
			if err := work(t, task); err != nil {
				pool.log.Error().Err(err).Msg("worker task failed")
				return err
			}
		}
	}
}
