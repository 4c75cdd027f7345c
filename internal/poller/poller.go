// Package poller watches job records until they go terminal. It is the
// client-side counterpart of the submission gateway: jobs are fully
// independent, a terminal handler fires at most once per job, and
// cancellation stops scheduling immediately while any in-flight read is
// discarded rather than applied.
package poller

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/labledger/api/internal/model"
	"github.com/labledger/api/internal/store"
)

// DefaultInterval is how often pending jobs are re-read.
const DefaultInterval = 2 * time.Second

// TerminalHandler runs once when a watched job reaches a terminal state.
type TerminalHandler func(job *model.Job)

// Watcher polls a job store for a set of job ids.
type Watcher struct {
	store    store.JobReader
	interval time.Duration
	onDone   TerminalHandler

	mu      sync.Mutex
	pending map[string]bool
	results map[string]*model.Job
}

// New creates a watcher over the given job reader. handler may be nil.
func New(jobs store.JobReader, interval time.Duration, handler TerminalHandler) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{
		store:    jobs,
		interval: interval,
		onDone:   handler,
		pending:  make(map[string]bool),
		results:  make(map[string]*model.Job),
	}
}

// Watch adds job ids to the pending set. Ids already terminal locally are
// not re-armed.
func (w *Watcher) Watch(ids ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, id := range ids {
		if _, done := w.results[id]; done {
			continue
		}
		w.pending[id] = true
	}
}

// Pending returns the ids still being tracked.
func (w *Watcher) Pending() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.pending))
	for id := range w.pending {
		ids = append(ids, id)
	}
	return ids
}

// Result returns the terminal record observed for id, if any.
func (w *Watcher) Result(id string) (*model.Job, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	job, ok := w.results[id]
	return job, ok
}

// Run polls until every watched id is terminal or ctx is cancelled. The
// pending set is only mutated from inside the tick, so no other locking is
// needed around job state.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if w.tick(ctx) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// tick reads every pending id once and returns how many remain.
func (w *Watcher) tick(ctx context.Context) int {
	w.mu.Lock()
	ids := make([]string, 0, len(w.pending))
	for id := range w.pending {
		ids = append(ids, id)
	}
	w.mu.Unlock()

	for _, id := range ids {
		job, err := w.store.Get(ctx, id)

		// A read that resolves after cancellation is discarded, never
		// applied to local state.
		if ctx.Err() != nil {
			break
		}

		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				log.Printf("[Poller] Job %s unknown, dropping", id)
				w.drop(id)
			} else {
				log.Printf("[Poller] Read job %s failed: %v", id, err)
			}
			continue
		}

		if job.Status.IsTerminal() {
			w.settle(id, job)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *Watcher) drop(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pending, id)
}

// settle records a terminal result and fires the handler exactly once.
func (w *Watcher) settle(id string, job *model.Job) {
	w.mu.Lock()
	if _, done := w.results[id]; done {
		w.mu.Unlock()
		return
	}
	delete(w.pending, id)
	w.results[id] = job
	w.mu.Unlock()

	if w.onDone != nil {
		w.onDone(job)
	}
}
