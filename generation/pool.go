package generation

import (
	"context"

	"github.com/c360studio/semplan/metrics"
	"golang.org/x/sync/semaphore"
)

// DefaultWorkers is the number of backend calls allowed in flight at once.
const DefaultWorkers = 5

// Pool bounds concurrent backend calls across every orchestration run in the
// process. One Pool is created at startup and shared.
type Pool struct {
	sem     *semaphore.Weighted
	size    int
	metrics *metrics.Metrics
}

// NewPool creates a pool with size slots. size < 1 uses DefaultWorkers.
func NewPool(size int, m *metrics.Metrics) *Pool {
	if size < 1 {
		size = DefaultWorkers
	}
	return &Pool{
		sem:     semaphore.NewWeighted(int64(size)),
		size:    size,
		metrics: m,
	}
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return p.size
}

// Do runs fn while holding one slot. It blocks until a slot is free or ctx
// is done.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.metrics.SlotAcquired()
	defer func() {
		p.metrics.SlotReleased()
		p.sem.Release(1)
	}()
	return fn(ctx)
}
