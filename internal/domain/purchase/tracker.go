package purchase

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// TrackerConfig controls background order watches.
type TrackerConfig struct {
	Poller PollerConfig
	// MaxLifetime bounds a single watch; zero means no bound.
	MaxLifetime time.Duration
	// Retention keeps finished snapshots readable for this long.
	Retention time.Duration
}

// Snapshot is the externally visible state of an order watch.
type Snapshot struct {
	OrderID   string     `json:"orderId"`
	Status    Status     `json:"status,omitempty"`
	Done      bool       `json:"done"`
	Cancelled bool       `json:"cancelled,omitempty"`
	Purchases []Purchase `json:"purchases,omitempty"`
	StartedAt time.Time  `json:"startedAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type watch struct {
	owner  string
	cancel context.CancelFunc
	snap   Snapshot
}

// Tracker runs at most one poller per order in the background. Every watch
// stops on a terminal status, on Stop, after MaxLifetime, or on Close.
type Tracker struct {
	cfg     TrackerConfig
	clock   clockwork.Clock
	metrics *Metrics

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	watches map[string]*watch
}

// NewTracker creates a Tracker. Watches inherit values (logger, telemetry)
// from ctx and are all cancelled when ctx is done.
func NewTracker(ctx context.Context, cfg TrackerConfig, clock clockwork.Clock, metrics *Metrics) *Tracker {
	base, cancel := context.WithCancel(ctx)
	return &Tracker{
		cfg:     cfg,
		clock:   clock,
		metrics: metrics,
		base:    base,
		cancel:  cancel,
		watches: make(map[string]*watch),
	}
}

// Watch starts polling orderID on behalf of owner unless a watch for the order
// already exists. It returns the current snapshot and false when the order is
// being watched by a different owner.
func (t *Tracker) Watch(owner, orderID string, backend Backend) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if w, ok := t.watches[orderID]; ok {
		if w.owner != owner {
			return Snapshot{}, false
		}
		return w.snap, true
	}

	ctx, cancel := context.WithCancel(t.base)
	if t.cfg.MaxLifetime > 0 {
		ctx, cancel = withTimeout(ctx, cancel, t.cfg.MaxLifetime)
	}

	now := t.clock.Now()
	w := &watch{
		owner:  owner,
		cancel: cancel,
		snap: Snapshot{
			OrderID:   orderID,
			StartedAt: now,
			UpdatedAt: now,
		},
	}
	t.watches[orderID] = w

	poller := NewPoller(backend, t.cfg.Poller, t.clock, t.metrics)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer cancel()
		t.run(ctx, poller, w)
	}()

	return w.snap, true
}

func (t *Tracker) run(ctx context.Context, poller *Poller, w *watch) {
	orderID := w.snap.OrderID
	res, err := poller.Run(ctx, orderID, func(s Status) {
		t.update(w, func(snap *Snapshot) { snap.Status = s })
	})

	if !t.update(w, func(snap *Snapshot) {
		snap.Done = true
		if err != nil {
			snap.Cancelled = true
			return
		}
		snap.Status = res.Status
		snap.Purchases = res.Purchases
	}) {
		// Stopped and possibly replaced by a newer watch of the same order.
		return
	}
	if err != nil {
		zctx.From(ctx).Debug("Order watch stopped", zap.String("order_id", orderID), zap.Error(err))
	}

	t.clock.AfterFunc(t.cfg.Retention, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.watches[orderID] == w {
			delete(t.watches, orderID)
		}
	})
}

// update applies fn to the snapshot of w while w is still the registered
// watch of its order. It reports whether fn ran.
func (t *Tracker) update(w *watch, fn func(*Snapshot)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.watches[w.snap.OrderID] != w {
		return false
	}
	fn(&w.snap)
	w.snap.UpdatedAt = t.clock.Now()
	return true
}

// Get returns the snapshot of orderID if owner is watching it.
func (t *Tracker) Get(owner, orderID string) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.watches[orderID]
	if !ok || w.owner != owner {
		return Snapshot{}, false
	}
	return w.snap, true
}

// Stop cancels the watch of orderID regardless of its state and forgets it.
func (t *Tracker) Stop(owner, orderID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.watches[orderID]
	if !ok || w.owner != owner {
		return false
	}
	w.cancel()
	delete(t.watches, orderID)
	return true
}

// Close cancels every watch and waits for the pollers to exit.
func (t *Tracker) Close() {
	t.cancel()
	t.wg.Wait()
}

func withTimeout(ctx context.Context, parent context.CancelFunc, d time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, d)
	return ctx, func() {
		cancel()
		parent()
	}
}
