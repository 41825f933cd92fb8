// Package reconciler periodically repairs drift between a Ship's
// recorded status and the actual state of its backing container, and
// backstops the scheduler by expiring any Binding the scheduler's
// per-ship timer failed to act on.
package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harborctl/harbor/pkg/log"
	"github.com/harborctl/harbor/pkg/metrics"
	"github.com/harborctl/harbor/pkg/runtime"
	"github.com/harborctl/harbor/pkg/storage"
	"github.com/harborctl/harbor/pkg/types"
)

// Reconciler runs a periodic sweep of all ships, correcting any
// recorded Status that disagrees with whether the backing container is
// actually running, and expiring still-active bindings left on Stopped
// ships that the scheduler never got to.
type Reconciler struct {
	store  storage.Store
	driver runtime.Driver
	logger zerolog.Logger

	interval time.Duration
	mu       sync.RWMutex
	stopCh   chan struct{}
}

// New creates a Reconciler that sweeps every interval.
func New(store storage.Store, driver runtime.Driver, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Reconciler{
		store:    store,
		driver:   driver,
		logger:   log.WithComponent("reconciler"),
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the reconciliation loop in its own goroutine.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop halts the reconciliation loop.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("reconciler started")

	for {
		select {
		case <-ticker.C:
			if err := r.reconcile(); err != nil {
				r.logger.Error().Err(err).Msg("reconciliation cycle failed")
			}
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

// reconcile performs one sweep: drift repair first (so a ship that
// just came back into agreement isn't also treated as orphaned), then
// the expired-binding backstop.
func (r *Reconciler) reconcile() error {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	// ListShips, not ListActiveShips: drift repair needs to see Stopped
	// ships too (to catch one that came back up), and so does the
	// orphaned-binding backstop below.
	ships, err := r.store.ListShips()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, ship := range ships {
		r.repairDrift(ctx, ship)
	}

	// Second pass: ships left (or newly found) in a Stopped state may
	// still carry bindings nobody released — a cleanup that ran before
	// the scheduler's timer fired, or a process restart that lost the
	// armed timers entirely. Expire them here as a backstop.
	for _, ship := range ships {
		r.expireOrphanedBindings(ship)
	}

	return nil
}

// repairDrift corrects a Ship's Status field when it disagrees with
// whether the backing container is actually running. Grounded on the
// original status checker's three drift cases: running-but-dead,
// stopped-but-alive, and running-with-no-container-recorded.
func (r *Reconciler) repairDrift(ctx context.Context, ship *types.Ship) {
	logger := log.WithShipID(ship.ID)

	if ship.ContainerID == "" {
		if ship.Status == types.ShipRunning {
			logger.Warn().Msg("ship marked running with no container id, demoting to stopped")
			r.setStatus(ship, types.ShipStopped, "demoted")
			r.expireBindingsForShip(ship.ID)
		}
		return
	}

	running := r.driver.IsContainerRunning(ctx, ship.ContainerID)

	switch {
	case ship.Status == types.ShipRunning && !running:
		logger.Warn().Str("container_id", ship.ContainerID).
			Msg("ship marked running but container is not, demoting to stopped")
		r.setStatus(ship, types.ShipStopped, "demoted")
		r.expireBindingsForShip(ship.ID)
	case ship.Status == types.ShipStopped && running:
		logger.Info().Str("container_id", ship.ContainerID).
			Msg("ship marked stopped but container is running, promoting to running")
		r.setStatus(ship, types.ShipRunning, "promoted")
	}
}

// expireBindingsForShip sets ExpiresAt to now on every still-active
// binding for shipID, mirroring the soft-delete path in
// pkg/api's handleDeleteShip: demoting a Ship to Stopped must expire
// its bindings too, never leave one dangling past the container's life.
func (r *Reconciler) expireBindingsForShip(shipID string) {
	bindings, err := r.store.ListBindingsForShip(shipID)
	if err != nil {
		log.WithShipID(shipID).Error().Err(err).Msg("failed to list bindings while expiring after demotion")
		return
	}
	now := time.Now().UTC()
	for _, b := range bindings {
		if !b.ExpiresAt.After(now) {
			continue
		}
		b.ExpiresAt = now
		if err := r.store.UpdateBinding(b); err != nil {
			log.WithShipID(shipID).Error().Err(err).
				Str("binding_id", b.ID).Msg("failed to expire binding after demotion")
		}
	}
}

func (r *Reconciler) setStatus(ship *types.Ship, status types.ShipStatus, repairKind string) {
	ship.Status = status
	ship.UpdatedAt = time.Now().UTC()
	if err := r.store.UpdateShip(ship); err != nil {
		log.WithShipID(ship.ID).Error().Err(err).Msg("failed to persist drift repair")
		return
	}
	metrics.DriftRepairsTotal.WithLabelValues(repairKind).Inc()
}

// expireOrphanedBindings sets ExpiresAt to now on any still-active
// Binding left on a Stopped ship. A Running ship's bindings are the
// scheduler's responsibility; this only backstops ships that are
// already stopped (e.g. by a drift repair above, or by a cleanup that
// raced the process down before its per-ship timer fired).
func (r *Reconciler) expireOrphanedBindings(ship *types.Ship) {
	if ship.Status != types.ShipStopped {
		return
	}

	bindings, err := r.store.ListBindingsForShip(ship.ID)
	if err != nil {
		log.WithShipID(ship.ID).Error().Err(err).Msg("failed to list bindings during orphan sweep")
		return
	}

	now := time.Now().UTC()
	for _, b := range bindings {
		if !b.ExpiresAt.After(now) {
			continue
		}
		b.ExpiresAt = now
		if err := r.store.UpdateBinding(b); err != nil {
			log.WithShipID(ship.ID).Error().Err(err).
				Str("binding_id", b.ID).Msg("failed to expire orphaned binding")
			continue
		}
		metrics.DriftRepairsTotal.WithLabelValues("orphan_expired").Inc()
	}
}
