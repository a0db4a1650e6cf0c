// Package worker provides an asynchronous worker pool for building matchers
// from persisted puzzles using the provided store.Driver.
//
// The pool decouples feature extraction from the API's startup and upload
// paths: SIFT over a full reference image is expensive, so matchers are
// rebuilt in the background while the server begins accepting requests.
package worker

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/puzzleworks/piecefinder/pkg/match"
	"github.com/puzzleworks/piecefinder/pkg/registry"
	"github.com/puzzleworks/piecefinder/pkg/store"
	"github.com/puzzleworks/piecefinder/pkg/vision"
)

var (
	defaultNumWorkers   uint = 2
	defaultJobQueueSize uint = 64
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Puzzle *store.Puzzle
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Registry receives the built matchers keyed by puzzle ID.
	Registry *registry.Registry

	// Params are the match pipeline parameters for every built matcher.
	Params match.Params

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 64).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool builds matchers asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			zap.String("puzzle_id", job.Puzzle.ID),
			zap.String("name", job.Puzzle.Name),
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			zap.String("puzzle_id", job.Puzzle.ID),
			zap.String("name", job.Puzzle.Name),
		)
		return false
	}
}

// WarmUp lists every persisted puzzle and enqueues a matcher build for each.
// Returns the number of puzzles queued.
func (p *Pool) WarmUp(ctx context.Context, driver store.Driver) (int, error) {
	puzzles, err := driver.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing puzzles for warm-up: %w", err)
	}

	queued := 0
	for _, meta := range puzzles {
		// List omits image bytes; fetch the full record.
		puzzle, err := driver.Get(ctx, meta.ID)
		if err != nil {
			p.logger.Error("skipping puzzle during warm-up",
				zap.String("puzzle_id", meta.ID),
				zap.Error(err),
			)
			continue
		}

		if p.Enqueue(Job{Puzzle: puzzle}) {
			queued++
		}
	}

	return queued, nil
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the API server has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("matcher worker stopped", zap.Uint("worker_id", id))
}

// processJob decodes the stored reference image, builds a matcher from it,
// and registers the matcher under the puzzle's ID.
func (p *Pool) processJob(job Job) {
	img, err := vision.Decode(job.Puzzle.Image)
	if err != nil {
		p.logger.Error("async matcher build failed",
			zap.String("puzzle_id", job.Puzzle.ID),
			zap.Error(err),
		)
		return
	}
	defer img.Close()

	m := match.NewMatcher(p.config.Params, p.logger)

	count, err := m.SetReference(img)
	if err != nil {
		m.Close()
		p.logger.Error("async matcher build failed",
			zap.String("puzzle_id", job.Puzzle.ID),
			zap.Error(err),
		)
		return
	}

	p.config.Registry.Put(job.Puzzle.ID, m)

	p.logger.Info("matcher ready",
		zap.String("puzzle_id", job.Puzzle.ID),
		zap.String("name", job.Puzzle.Name),
		zap.Int("features", count),
	)
}
