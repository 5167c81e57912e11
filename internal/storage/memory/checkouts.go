package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/lotto-share/internal/domain/checkout"
)

var _ checkout.Repository = (*CheckoutRepository)(nil)

// CheckoutRepository keeps checkout records in memory.
type CheckoutRepository struct {
	mu      sync.RWMutex
	records map[string]checkout.Record
}

// NewCheckoutRepository creates an empty CheckoutRepository.
func NewCheckoutRepository() *CheckoutRepository {
	return &CheckoutRepository{records: make(map[string]checkout.Record)}
}

func (r *CheckoutRepository) Create(_ context.Context, rec *checkout.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[rec.OrderID]; ok {
		return errors.Errorf("checkout %q already exists", rec.OrderID)
	}
	c := *rec
	c.Items = slices.Clone(rec.Items)
	r.records[rec.OrderID] = c
	return nil
}

func (r *CheckoutRepository) Get(_ context.Context, orderID string) (*checkout.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[orderID]
	if !ok {
		return nil, checkout.ErrNotFound
	}
	return &rec, nil
}

// ListBySession returns the records of a session, newest first.
func (r *CheckoutRepository) ListBySession(_ context.Context, sessionID uuid.UUID) ([]checkout.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []checkout.Record
	for _, rec := range r.records {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b checkout.Record) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.OrderID, b.OrderID))
	})
	return out, nil
}
