package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

type diskJob struct {
	what string
	fn   func(ctx context.Context)
}

// persister runs storage work in submission order on one goroutine. submit
// never blocks, so the hub can queue writes while persister resumes wait on it.
type persister struct {
	mu       sync.Mutex
	queue    []diskJob
	closed   bool
	wake     chan struct{}
	finished chan struct{}
	log      *zerolog.Logger
}

func newPersister(logger *zerolog.Logger) *persister {
	return &persister{
		wake:     make(chan struct{}, 1),
		finished: make(chan struct{}),
		log:      logger,
	}
}

// submit queues fn and reports whether it was accepted.
func (p *persister) submit(what string, fn func(ctx context.Context)) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.queue = append(p.queue, diskJob{what: what, fn: fn})
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return true
}

// close stops accepting work. Queued jobs still run.
func (p *persister) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *persister) run(ctx context.Context) {
	defer close(p.finished)
	for {
		p.mu.Lock()
		batch := p.queue
		p.queue = nil
		closed := p.closed
		p.mu.Unlock()

		for _, job := range batch {
			p.exec(ctx, job)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-p.wake
	}
}

func (p *persister) exec(ctx context.Context, job diskJob) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Str("job", job.what).Msg("persistence panic recovered")
		}
	}()
	job.fn(ctx)
}
