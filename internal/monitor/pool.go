package monitor

import (
	"context"
	"log/slog"
)

// queueDepth bounds how many probes may wait for a worker.
const queueDepth = 64

// submitter is what async samplers need from the probe pool.
type submitter interface {
	Submit(task func(ctx context.Context)) bool
}

// ProbePool runs slow probes (echo requests, package manager queries) on
// a fixed set of workers so they never stall the sample loop's cadence.
type ProbePool struct {
	workers int
	queue   chan func(ctx context.Context)
	log     *slog.Logger
}

// NewProbePool creates a pool with the given number of workers. Nothing
// runs until Start is called.
func NewProbePool(workers int, logger *slog.Logger) *ProbePool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProbePool{
		workers: workers,
		queue:   make(chan func(ctx context.Context), queueDepth),
		log:     logger,
	}
}

// Start launches the workers. They exit when ctx is cancelled.
func (p *ProbePool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		go p.worker(ctx)
	}
}

func (p *ProbePool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-p.queue:
			task(ctx)
		}
	}
}

// Submit enqueues a probe without blocking. It reports false when the
// queue is saturated: the probe is dropped so a backlog can never delay
// the sample loop.
func (p *ProbePool) Submit(task func(ctx context.Context)) bool {
	select {
	case p.queue <- task:
		return true
	default:
		p.log.Warn("probe queue saturated, dropping probe")
		return false
	}
}
