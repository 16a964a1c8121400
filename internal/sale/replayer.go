package sale

import (
	"context"
	"errors"
	"log"
	"time"
)

// ReplayObserver receives replay results and queue depth; nil is allowed.
type ReplayObserver interface {
	ObserveReplay(result string)
	SetOutboxPending(n int)
}

// Replayer drains the outbox into the recorder on a fixed interval.
type Replayer struct {
	// OnStored runs once after a flush that stored at least one sale.
	OnStored func(ctx context.Context)

	recorder Recorder
	outbox   Outbox
	interval time.Duration
	observer ReplayObserver
	now      func() time.Time
}

func NewReplayer(recorder Recorder, outbox Outbox, interval time.Duration, observer ReplayObserver) *Replayer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Replayer{
		recorder: recorder,
		outbox:   outbox,
		interval: interval,
		observer: observer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run flushes once, then on every tick until ctx is done.
func (r *Replayer) Run(ctx context.Context) error {
	log.Printf("[outbox] replayer started (interval %s)", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[outbox] WARN flush failed: %v", err)
		}
		select {
		case <-ctx.Done():
			log.Println("[outbox] replayer stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Flush tries every pending entry once and returns how many were stored.
// Entries the recorder rejects as invalid stay queued with their error so an
// admin can inspect them.
func (r *Replayer) Flush(ctx context.Context) (int, error) {
	entries, err := r.outbox.Pending(ctx)
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return stored, err
		}
		applied, err := r.recorder.RecordSale(context.WithoutCancel(ctx), entry.Sale, entry.Metal)
		if err != nil {
			r.observe("failed")
			if merr := r.outbox.MarkFailed(ctx, entry.Sale.ID, err, r.now()); merr != nil {
				log.Printf("[outbox] WARN mark %s failed: %v", entry.Sale.ID, merr)
			}
			continue
		}
		if err := r.outbox.Remove(ctx, entry.Sale.ID); err != nil {
			log.Printf("[outbox] WARN remove %s: %v", entry.Sale.ID, err)
			continue
		}
		stored++
		if applied {
			r.observe("stored")
			log.Printf("[outbox] sale %s stored after %d attempt(s)", entry.Sale.ID, entry.Attempts+1)
		} else {
			r.observe("duplicate")
		}
	}

	if stored > 0 && r.OnStored != nil {
		r.OnStored(context.WithoutCancel(ctx))
	}
	if r.observer != nil {
		r.observer.SetOutboxPending(len(entries) - stored)
	}
	return stored, nil
}

func (r *Replayer) observe(result string) {
	if r.observer != nil {
		r.observer.ObserveReplay(result)
	}
}
