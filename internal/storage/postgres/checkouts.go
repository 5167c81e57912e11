package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/lotto-share/internal/domain/checkout"
)

const (
	createCheckoutSQL = `INSERT INTO checkouts (order_id, session_id, amount, items, created_at)
	VALUES ($1, $2, $3, $4, $5)`

	getCheckoutSQL = `SELECT order_id, session_id, amount, items, created_at
	FROM checkouts WHERE order_id = $1`

	listCheckoutsBySessionSQL = `SELECT order_id, session_id, amount, items, created_at
	FROM checkouts WHERE session_id = $1 ORDER BY created_at DESC, order_id`
)

var _ checkout.Repository = (*CheckoutRepository)(nil)

// CheckoutRepository implements checkout.Repository backed by PostgreSQL.
type CheckoutRepository struct {
	pool *pgxpool.Pool
}

// NewCheckoutRepository returns a CheckoutRepository that uses the given pool.
func NewCheckoutRepository(pool *pgxpool.Pool) *CheckoutRepository {
	return &CheckoutRepository{pool: pool}
}

// Create persists a checkout record. The cart items are serialized to JSON
// for storage in the JSONB column.
func (r *CheckoutRepository) Create(ctx context.Context, rec *checkout.Record) error {
	itemsJSON, err := json.Marshal(rec.Items)
	if err != nil {
		return fmt.Errorf("marshaling checkout items: %w", err)
	}

	_, err = r.pool.Exec(ctx, createCheckoutSQL,
		rec.OrderID, rec.SessionID, rec.Amount, itemsJSON, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating checkout %q: %w", rec.OrderID, err)
	}
	return nil
}

// Get returns the record of orderID or checkout.ErrNotFound.
func (r *CheckoutRepository) Get(ctx context.Context, orderID string) (*checkout.Record, error) {
	rec, err := scanCheckout(r.pool.QueryRow(ctx, getCheckoutSQL, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, checkout.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting checkout %q: %w", orderID, err)
	}
	return rec, nil
}

// ListBySession returns the records of a session, newest first.
func (r *CheckoutRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]checkout.Record, error) {
	rows, err := r.pool.Query(ctx, listCheckoutsBySessionSQL, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing checkouts: %w", err)
	}
	defer rows.Close()

	var out []checkout.Record
	for rows.Next() {
		rec, err := scanCheckout(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning checkout: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing checkouts: %w", err)
	}
	return out, nil
}

func scanCheckout(row pgx.Row) (*checkout.Record, error) {
	var (
		rec   checkout.Record
		items []byte
	)
	if err := row.Scan(&rec.OrderID, &rec.SessionID, &rec.Amount, &items, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &rec.Items); err != nil {
		return nil, fmt.Errorf("unmarshaling checkout items: %w", err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}
