package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// FileProcessor handles one queued photo.
type FileProcessor interface {
	ProcessFile(ctx context.Context, path string) error
}

// QueueStats is a point-in-time snapshot for the status endpoint.
type QueueStats struct {
	Pending   int    `json:"pending"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
}

// Queue accepts discovered photo paths and drains them in batches, with at
// most Concurrency files in flight at once. One file's failure or panic
// never takes down its batch.
type Queue struct {
	proc        FileProcessor
	concurrency int
	batchSize   int
	tasks       chan string
	log         zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}

	processed atomic.Uint64
	failed    atomic.Uint64
}

func NewQueue(proc FileProcessor, concurrency, batchSize, capacity int, log zerolog.Logger) *Queue {
	if concurrency < 1 {
		concurrency = 1
	}
	if batchSize < 1 {
		batchSize = 1
	}
	if capacity < batchSize {
		capacity = batchSize
	}
	return &Queue{
		proc:        proc,
		concurrency: concurrency,
		batchSize:   batchSize,
		tasks:       make(chan string, capacity),
		log:         log,
		done:        make(chan struct{}),
	}
}

// Enqueue adds a path for processing. A full queue drops the path with a
// warning; the periodic backfill scan will pick it up again.
func (q *Queue) Enqueue(path string) {
	select {
	case q.tasks <- path:
	default:
		q.log.Warn().Str("path", path).Msg("queue full, dropping path")
	}
}

func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	go q.dispatch(ctx)
}

// Stop cancels in-flight work and waits for the dispatcher to drain the
// current batch.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	<-q.done
}

func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Pending:   len(q.tasks),
		Processed: q.processed.Load(),
		Failed:    q.failed.Load(),
	}
}

func (q *Queue) dispatch(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			return
		case first := <-q.tasks:
			batch := []string{first}
		fill:
			for len(batch) < q.batchSize {
				select {
				case path := <-q.tasks:
					batch = append(batch, path)
				default:
					break fill
				}
			}
			q.runBatch(ctx, batch)
		}
	}
}

func (q *Queue) runBatch(ctx context.Context, batch []string) {
	sem := make(chan struct{}, q.concurrency)
	var wg sync.WaitGroup
	for _, path := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()
			q.runTask(ctx, path)
		}(path)
	}
	wg.Wait()
}

func (q *Queue) runTask(ctx context.Context, path string) {
	defer func() {
		if rec := recover(); rec != nil {
			q.failed.Add(1)
			q.log.Error().Interface("panic", rec).Str("path", path).Msg("processing panicked")
		}
	}()

	if err := q.proc.ProcessFile(ctx, path); err != nil {
		q.failed.Add(1)
		q.log.Error().Err(err).Str("path", path).Msg("processing failed")
		return
	}
	q.processed.Add(1)
}
