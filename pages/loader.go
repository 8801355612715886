package pages

import (
	"context"
	"sync"

	"go.starlod.dev/starlod/executor"
	"go.starlod.dev/starlod/logging"
	"go.starlod.dev/starlod/pointcloud"
	"go.starlod.dev/starlod/utils"
)

// Loader loads pages from a Store on background workers and delivers them through a render
// queue, so completion callbacks run on the render thread. Concurrent requests for the same page
// share one load.
type Loader struct {
	store  Store
	queue  *executor.RenderQueue
	logger logging.Logger

	mu       sync.Mutex
	pending  []uint64
	inFlight map[uint64][]func(pointcloud.Records, error)
	wake     chan struct{}

	workers utils.StoppableWorkers
}

// NewLoader starts numWorkers goroutines loading pages from store.
func NewLoader(store Store, queue *executor.RenderQueue, numWorkers int, logger logging.Logger) *Loader {
	l := &Loader{
		store:    store,
		queue:    queue,
		logger:   logger,
		inFlight: make(map[uint64][]func(pointcloud.Records, error)),
		wake:     make(chan struct{}, 1),
	}
	l.workers = utils.NewStoppableWorkers()
	for i := 0; i < max(numWorkers, 1); i++ {
		l.workers.AddWorkers(l.work)
	}
	return l
}

// Request schedules a load of pageID. It never blocks. done is called on the render thread the
// next time the render queue is drained after the load finishes.
func (l *Loader) Request(pageID uint64, done func(pointcloud.Records, error)) {
	l.mu.Lock()
	callbacks, loading := l.inFlight[pageID]
	l.inFlight[pageID] = append(callbacks, done)
	if !loading {
		l.pending = append(l.pending, pageID)
	}
	l.mu.Unlock()
	if !loading {
		l.signal()
	}
}

// Evict forwards to the store.
func (l *Loader) Evict(pageID uint64) {
	l.store.Evict(pageID)
}

// Pending returns the number of pages requested but not yet delivered to the render queue.
func (l *Loader) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.inFlight)
}

// Close stops the workers. Pages still queued are never delivered.
func (l *Loader) Close() {
	l.workers.Stop()
}

func (l *Loader) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loader) next() (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) == 0 {
		return 0, false
	}
	id := l.pending[0]
	l.pending = l.pending[1:]
	if len(l.pending) > 0 {
		l.signal()
	}
	return id, true
}

func (l *Loader) work(ctx context.Context) {
	for {
		pageID, ok := l.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-l.wake:
			}
			continue
		}
		if ctx.Err() != nil {
			return
		}
		l.load(ctx, pageID)
	}
}

func (l *Loader) load(ctx context.Context, pageID uint64) {
	recs, err := l.store.Load(ctx, pageID)
	if err != nil {
		l.logger.Debugw("page load failed", "page", pageID, "error", err)
	}

	// Posting under the lock keeps Pending from reporting zero before delivery is queued.
	l.mu.Lock()
	defer l.mu.Unlock()
	callbacks := l.inFlight[pageID]
	delete(l.inFlight, pageID)
	l.queue.Post(func() {
		for _, done := range callbacks {
			done(recs, err)
		}
	})
}
