package progress

import (
	"context"
	"sync"

	"github.com/CZERTAINLY/Atelier/internal/model"
)

// Broadcast wraps a Store and lets in-process callers wait for the next
// write of a job instead of re-reading on a timer. Reads and writes go
// straight to the wrapped Store.
type Broadcast struct {
	Store
	mx      sync.Mutex
	waiters map[string]*waiter
}

// waiter is shared by every Next blocked on the same job.
type waiter struct {
	ch chan struct{}
	n  int
}

func NewBroadcast(store Store) *Broadcast {
	return &Broadcast{
		Store:   store,
		waiters: make(map[string]*waiter),
	}
}

func (b *Broadcast) Write(ctx context.Context, jobID string, rec model.Progress) error {
	if err := b.Store.Write(ctx, jobID, rec); err != nil {
		return err
	}
	b.mx.Lock()
	w, ok := b.waiters[jobID]
	delete(b.waiters, jobID)
	b.mx.Unlock()
	if ok {
		close(w.ch)
	}
	return nil
}

// subscribe returns a channel closed by the next successful Write of jobID
// and a func that drops the subscription when the caller stops waiting.
func (b *Broadcast) subscribe(jobID string) (<-chan struct{}, func()) {
	b.mx.Lock()
	defer b.mx.Unlock()
	w, ok := b.waiters[jobID]
	if !ok {
		w = &waiter{ch: make(chan struct{})}
		b.waiters[jobID] = w
	}
	w.n++
	return w.ch, func() {
		b.mx.Lock()
		defer b.mx.Unlock()
		w.n--
		// a Write may already have replaced or removed it
		if w.n == 0 && b.waiters[jobID] == w {
			delete(b.waiters, jobID)
		}
	}
}

// Next blocks until jobID changes or ctx ends and returns the stored
// record. A record that is already terminal is returned immediately.
func (b *Broadcast) Next(ctx context.Context, jobID string) (model.Progress, error) {
	changed, done := b.subscribe(jobID)
	defer done()
	rec, err := b.Store.Read(ctx, jobID)
	if err == nil && rec.Status.Terminal() {
		return rec, nil
	}
	select {
	case <-ctx.Done():
		return rec, ctx.Err()
	case <-changed:
	}
	return b.Store.Read(ctx, jobID)
}

func (b *Broadcast) Close() error {
	if c, ok := b.Store.(StoreCloser); ok {
		return c.Close()
	}
	return nil
}
