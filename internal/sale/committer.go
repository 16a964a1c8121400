// Package sale turns a paid receipt into a durable sale record.
package sale

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"jewelpos/backend/internal/domain"
	"jewelpos/backend/internal/metal"
	"jewelpos/backend/internal/payment"
	"jewelpos/backend/internal/receipt"
	"jewelpos/backend/internal/store"
	"jewelpos/backend/internal/xid"
)

var ErrEmptyReceipt = fmt.Errorf("%w: receipt has no lines", store.ErrInvalid)

type Status string

const (
	// Committed means the sale and all of its effects are durably stored.
	Committed Status = "committed"
	// PendingRetry means recording failed and the sale sits in the outbox
	// until the replayer stores it.
	PendingRetry Status = "pending_retry"
)

type Outcome struct {
	Status Status      `json:"status"`
	Sale   domain.Sale `json:"sale"`
}

// Policy decides what happens when the backing store rejects a sale.
type Policy string

const (
	PolicyOutbox Policy = "outbox"
	PolicyStrict Policy = "strict"
)

func ParsePolicy(raw string) (Policy, error) {
	switch Policy(raw) {
	case PolicyOutbox, PolicyStrict:
		return Policy(raw), nil
	}
	return "", fmt.Errorf("unknown sale commit fallback %q (want outbox or strict)", raw)
}

// Recorder applies a sale and its effects atomically. It must be idempotent
// by sale id.
type Recorder interface {
	RecordSale(ctx context.Context, sale domain.Sale, metal []domain.MetalTransaction) (bool, error)
}

// Observer receives commit outcomes; nil is allowed.
type Observer interface {
	ObserveSale(status string, total float64)
}

type Committer struct {
	recorder Recorder
	outbox   Outbox
	policy   Policy
	observer Observer
	now      func() time.Time
}

func NewCommitter(recorder Recorder, outbox Outbox, policy Policy, observer Observer) *Committer {
	if outbox == nil {
		policy = PolicyStrict
	}
	return &Committer{
		recorder: recorder,
		outbox:   outbox,
		policy:   policy,
		observer: observer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (c *Committer) Policy() Policy {
	return c.policy
}

// Commit builds an immutable sale from the receipt and payment and records
// it. The receipt is not modified; the caller clears it when the outcome is
// returned without error.
func (c *Committer) Commit(ctx context.Context, r *receipt.Receipt, p *payment.Resolver, actor domain.Actor) (Outcome, error) {
	sale, txs, err := Build(r, p, actor, xid.New("sale"), c.now())
	if err != nil {
		return Outcome{}, err
	}
	return c.Record(ctx, sale, txs)
}

// Build validates the preconditions and snapshots the sale. Metal lots
// become purchase transactions linked to the sale id.
func Build(r *receipt.Receipt, p *payment.Resolver, actor domain.Actor, saleID string, at time.Time) (domain.Sale, []domain.MetalTransaction, error) {
	if !r.CanCheckout() {
		return domain.Sale{}, nil, ErrEmptyReceipt
	}
	if err := p.Validate(); err != nil {
		return domain.Sale{}, nil, err
	}
	total := r.Total()
	if !p.CanComplete(total) {
		return domain.Sale{}, nil, fmt.Errorf("%w: tendered %s, total %s", payment.ErrInsufficient, p.AmountTendered().StringFixed(2), total.StringFixed(2))
	}

	sale := domain.Sale{
		ID:             saleID,
		Timestamp:      at,
		Items:          r.Items(),
		Subtotal:       r.Subtotal(),
		Total:          total,
		PaymentMethod:  p.Mode,
		PaymentDetails: p.Details(),
		Change:         p.Change(total),
		CashierID:      actor.UserID,
	}
	if c := r.Customer(); c != nil {
		sale.CustomerID = c.ID
		sale.CustomerName = c.Name
	}

	var txs []domain.MetalTransaction
	if p.Mode == domain.PaymentMetal {
		lots := sale.PaymentDetails.Metal
		ids := make([]string, len(lots))
		for i := range lots {
			ids[i] = fmt.Sprintf("%s-lot-%d", saleID, i+1)
		}
		txs = metal.FromLots(lots, ids, saleID, actor.UserID, at)
	}
	return sale, txs, nil
}

// Record stores a built sale. Once started it is not cancelled by ctx.
// Validation and not-found failures are returned as they are; other store
// failures go to the outbox under PolicyOutbox and are returned under
// PolicyStrict.
func (c *Committer) Record(ctx context.Context, sale domain.Sale, txs []domain.MetalTransaction) (Outcome, error) {
	ctx = context.WithoutCancel(ctx)
	total, _ := sale.Total.Float64()

	_, err := c.recorder.RecordSale(ctx, sale, txs)
	if err == nil {
		c.observe(Committed, total)
		return Outcome{Status: Committed, Sale: sale}, nil
	}
	if !retryable(err) || c.policy != PolicyOutbox {
		c.observe("failed", total)
		return Outcome{}, fmt.Errorf("record sale %s: %w", sale.ID, err)
	}

	log.Printf("[sale] WARN record sale %s failed, queueing for retry: %v", sale.ID, err)
	entry := domain.OutboxEntry{
		Sale:      sale,
		Metal:     txs,
		Attempts:  1,
		LastError: err.Error(),
		QueuedAt:  c.now(),
	}
	if qerr := c.outbox.Enqueue(ctx, entry); qerr != nil {
		c.observe("failed", total)
		return Outcome{}, fmt.Errorf("record sale %s: %w (outbox: %v)", sale.ID, err, qerr)
	}
	c.observe(PendingRetry, total)
	return Outcome{Status: PendingRetry, Sale: sale}, nil
}

func (c *Committer) observe(status Status, total float64) {
	if c.observer != nil {
		c.observer.ObserveSale(string(status), total)
	}
}

func retryable(err error) bool {
	return !errors.Is(err, store.ErrInvalid) && !errors.Is(err, store.ErrNotFound)
}
