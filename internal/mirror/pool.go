package mirror

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"igtags/pkg/logger"
	"igtags/pkg/metrics"
	"igtags/pkg/ratelimit"
	"igtags/pkg/retry"
	"igtags/pkg/storage"
)

// Job is one file to upload.
type Job struct {
	Name string
	Data []byte
}

// Stats summarizes a pool's work after Stop.
type Stats struct {
	Uploaded int64
	Failed   int64
	Dropped  int64
}

// Pool uploads files to a storage.Mirror from background workers so the
// sequential pipeline never waits on the network for a mirror copy.
type Pool struct {
	numWorkers  int
	jobQueue    chan Job
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	mirror      storage.Mirror
	rateLimiter ratelimit.Limiter
	backoff     retry.Backoff
	attempts    int
	logger      logger.Logger
	metrics     *metrics.Metrics

	mu     sync.Mutex
	closed bool

	uploaded atomic.Int64
	failed   atomic.Int64
	dropped  atomic.Int64
}

// NewPool creates a pool. rateLimiter may be nil.
func NewPool(
	ctx context.Context,
	numWorkers int,
	m storage.Mirror,
	rateLimiter ratelimit.Limiter,
	log logger.Logger,
	mtr *metrics.Metrics,
) *Pool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		ctx:         ctx,
		cancel:      cancel,
		mirror:      m,
		rateLimiter: rateLimiter,
		backoff:     retry.UploadBackoff(),
		attempts:    3,
		logger:      logger.OrGlobal(log).WithFields(map[string]interface{}{"component": "mirror", "provider": m.Name()}),
		metrics:     mtr,
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	logger.LogComponentStart(p.logger, "mirror_pool", map[string]interface{}{
		"num_workers": p.numWorkers,
	})

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit queues a file for upload, blocking while the queue is full.
// Files submitted after Stop are dropped and logged.
func (p *Pool) Submit(name string, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.dropped.Add(1)
		p.logger.WarnWithFields("Mirror pool stopped, dropping file", map[string]interface{}{
			"file": name,
		})
		return
	}

	select {
	case p.jobQueue <- Job{Name: name, Data: data}:
		p.logger.DebugWithFields("File queued for mirror", map[string]interface{}{
			"file": name,
		})
	case <-p.ctx.Done():
		p.dropped.Add(1)
		p.logger.WarnWithFields("Mirror pool cancelled, dropping file", map[string]interface{}{
			"file": name,
		})
	}
}

// Stop waits for queued uploads to finish and returns the totals. It is
// safe to call more than once.
func (p *Pool) Stop() Stats {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobQueue)
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()

	stats := Stats{
		Uploaded: p.uploaded.Load(),
		Failed:   p.failed.Load(),
		Dropped:  p.dropped.Load(),
	}
	p.logger.InfoWithFields("Mirror pool stopped", map[string]interface{}{
		"uploaded": stats.Uploaded,
		"failed":   stats.Failed,
		"dropped":  stats.Dropped,
	})
	return stats
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for job := range p.jobQueue {
		if p.ctx.Err() != nil {
			p.dropped.Add(1)
			continue
		}
		p.process(job, id)
	}
}

func (p *Pool) process(job Job, workerID int) {
	start := time.Now()

	err := retry.Do(p.ctx, retry.Policy{
		Attempts: p.attempts,
		Backoff:  p.backoff,
		Logger:   p.logger,
	}, func(int) error {
		if err := ratelimit.Acquire(p.ctx, p.rateLimiter); err != nil {
			return err
		}
		return p.mirror.Save(p.ctx, job.Name, job.Data)
	})

	if err != nil {
		p.failed.Add(1)
		p.metrics.MirrorUpload(false)
		p.logger.WithError(err).ErrorWithFields("Mirror upload failed", map[string]interface{}{
			"worker_id": workerID,
			"file":      job.Name,
		})
		return
	}

	p.uploaded.Add(1)
	p.metrics.MirrorUpload(true)
	p.logger.DebugWithFields("Mirror upload finished", map[string]interface{}{
		"worker_id": workerID,
		"file":      job.Name,
		"size":      len(job.Data),
		"duration":  time.Since(start),
	})
}
