package purchase

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// PollerConfig controls the polling cadence.
type PollerConfig struct {
	// Interval between order status requests.
	Interval time.Duration
	// Grace is how long an order may stay non-terminal before the one-shot
	// gateway reconciliation is requested.
	Grace time.Duration
	// ReconcileOnEntry requests a reconciliation before the first poll to
	// close the race with a webhook that has not landed yet.
	ReconcileOnEntry bool
}

// DefaultPollerConfig polls every 3s and reconciles once after 10s.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:         3 * time.Second,
		Grace:            10 * time.Second,
		ReconcileOnEntry: true,
	}
}

// Result is the final state observed by a poller.
type Result struct {
	Status    Status
	Purchases []Purchase
	// PurchasesErr is set when the order succeeded but the purchase list
	// could not be loaded.
	PurchasesErr error
}

// Poller watches a single order until it reaches a terminal state.
type Poller struct {
	backend Backend
	cfg     PollerConfig
	clock   clockwork.Clock
	metrics *Metrics
}

// NewPoller creates a Poller. A nil metrics disables instrumentation.
func NewPoller(backend Backend, cfg PollerConfig, clock clockwork.Clock, metrics *Metrics) *Poller {
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Poller{
		backend: backend,
		cfg:     cfg,
		clock:   clock,
		metrics: metrics,
	}
}

// pollState is the per-run bookkeeping of a poller.
type pollState struct {
	start      time.Time
	reconciled bool
}

// Run polls the order status until it is SUCCESS or FAILED, or until ctx is
// cancelled. observe, when non-nil, receives every status read. Status read
// errors are swallowed and polling continues on the next tick.
func (p *Poller) Run(ctx context.Context, orderID string, observe func(Status)) (*Result, error) {
	ctx, span := p.metrics.tracer.Start(ctx, "purchase.Poll")
	defer span.End()

	lg := zctx.From(ctx).With(zap.String("order_id", orderID))

	if p.cfg.ReconcileOnEntry {
		p.reconcile(ctx, lg, orderID, "entry")
	}

	st := &pollState{start: p.clock.Now()}
	ticker := p.clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.metrics.outcomes.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("status", "cancelled")))
			return nil, ctx.Err()
		case now := <-ticker.Chan():
			status, ok := p.step(ctx, lg, orderID, st, now)
			if !ok {
				continue
			}
			if observe != nil {
				observe(status)
			}
			if !status.Terminal() {
				continue
			}

			p.metrics.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
			res := &Result{Status: status}
			if status == StatusSuccess {
				res.Purchases, res.PurchasesErr = p.backend.ListPurchases(ctx)
				if res.PurchasesErr != nil {
					lg.Warn("Load purchases after payment", zap.Error(res.PurchasesErr))
				}
			}
			lg.Info("Order reached terminal state", zap.String("status", string(status)))
			return res, nil
		}
	}
}

// step performs one poll at tick time now. ok is false when the status could
// not be read. Once the order has stayed non-terminal for longer than the
// grace period a single reconciliation is requested.
func (p *Poller) step(ctx context.Context, lg *zap.Logger, orderID string, st *pollState, now time.Time) (status Status, ok bool) {
	p.metrics.polls.Add(ctx, 1)

	status, err := p.backend.OrderStatus(ctx, orderID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			lg.Debug("Order status unavailable", zap.Error(err))
		}
		return "", false
	}
	if status.Terminal() {
		return status, true
	}

	if !st.reconciled && now.Sub(st.start) > p.cfg.Grace {
		st.reconciled = true
		p.reconcile(ctx, lg, orderID, "grace")
	}
	return status, true
}

func (p *Poller) reconcile(ctx context.Context, lg *zap.Logger, orderID, reason string) {
	p.metrics.reconciles.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	if err := p.backend.Reconcile(ctx, orderID); err != nil {
		// Failures are not retried; polling carries on regardless.
		lg.Warn("Gateway reconciliation failed", zap.String("reason", reason), zap.Error(err))
	}
}
