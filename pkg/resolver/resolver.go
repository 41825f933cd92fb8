// Package resolver implements Harbor's core decision ladder: given a
// session and a requested TTL, produce a Running Ship bound to that
// session by reusing, restoring, taking over a warm Ship, or creating
// one from scratch, in that order.
package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harborctl/harbor/pkg/config"
	"github.com/harborctl/harbor/pkg/harborerr"
	"github.com/harborctl/harbor/pkg/health"
	"github.com/harborctl/harbor/pkg/log"
	"github.com/harborctl/harbor/pkg/metrics"
	"github.com/harborctl/harbor/pkg/runtime"
	"github.com/harborctl/harbor/pkg/scheduler"
	"github.com/harborctl/harbor/pkg/storage"
	"github.com/harborctl/harbor/pkg/types"
)

// Resolver owns the reuse/restore/warm-pool/create ladder.
type Resolver struct {
	store     storage.Store
	driver    runtime.Driver
	scheduler *scheduler.Scheduler
	cfg       *config.Config
}

// New creates a Resolver bound to store, driver, and scheduler.
func New(store storage.Store, driver runtime.Driver, sched *scheduler.Scheduler, cfg *config.Config) *Resolver {
	return &Resolver{
		store:     store,
		driver:    driver,
		scheduler: sched,
		cfg:       cfg,
	}
}

// Request describes a caller's ask for a bound Ship.
type Request struct {
	SessionID   string
	RequestedTTL int // seconds
	Spec         types.ShipSpec
	ForceCreate  bool
}

// Resolve runs the decision ladder and returns a Running Ship bound to
// req.SessionID. ForceCreate skips rungs 1-3 and always creates fresh.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*types.Ship, error) {
	timer := metrics.NewTimer()
	outcome := "created"
	defer func() {
		timer.ObserveDuration(metrics.ResolutionDuration)
		metrics.ResolutionsTotal.WithLabelValues(outcome).Inc()
	}()

	logger := log.WithSessionID(req.SessionID)

	if req.RequestedTTL <= 0 {
		req.RequestedTTL = r.cfg.DefaultShipTTL
	}
	if req.Spec == (types.ShipSpec{}) {
		req.Spec = types.ShipSpec{Cpus: r.cfg.DefaultShipCpus, Memory: r.cfg.DefaultShipMemory, Disk: r.cfg.DefaultShipDisk}
	}

	if !req.ForceCreate {
		if ship, ok, err := r.reuseActive(ctx, req, logger); err != nil {
			return nil, err
		} else if ok {
			outcome = "reused"
			return ship, nil
		}

		if ship, ok, err := r.restoreStopped(ctx, req, logger); err != nil {
			return nil, err
		} else if ok {
			outcome = "restored"
			return ship, nil
		}

		if ship, ok, err := r.takeOverWarm(ctx, req, logger); err != nil {
			return nil, err
		} else if ok {
			outcome = "warm_pool"
			return ship, nil
		}
	}

	ship, err := r.createNew(ctx, req, logger)
	if err != nil {
		outcome = "rejected"
		return nil, err
	}
	return ship, nil
}

// reuseActive is rung 1: reuse the session's current active binding if
// its Ship is still actually running.
func (r *Resolver) reuseActive(ctx context.Context, req Request, logger zerolog.Logger) (*types.Ship, bool, error) {
	binding, err := r.store.GetActiveBindingForSession(req.SessionID)
	if err != nil {
		return nil, false, fmt.Errorf("looking up active binding: %w", err)
	}
	if binding == nil {
		return nil, false, nil
	}

	ship, err := r.store.GetShip(binding.ShipID)
	if err != nil {
		return nil, false, nil // binding points at a row that's gone; fall through
	}

	if ship.ContainerID != "" && r.driver.IsContainerRunning(ctx, ship.ContainerID) {
		binding.LastActivity = time.Now().UTC()
		if err := r.store.UpdateBinding(binding); err != nil {
			return nil, false, fmt.Errorf("refreshing binding: %w", err)
		}
		logger.Debug().Str("ship_id", ship.ID).Msg("reused active binding")
		return ship, true, nil
	}

	logger.Warn().Str("ship_id", ship.ID).Msg("active binding's container is dead, demoting")
	ship.Status = types.ShipStopped
	ship.ContainerID = ""
	ship.IPAddress = ""
	ship.UpdatedAt = time.Now().UTC()
	if err := r.store.UpdateShip(ship); err != nil {
		return nil, false, fmt.Errorf("demoting dead ship: %w", err)
	}
	return nil, false, nil
}

// restoreStopped is rung 2: restore the session's most recent Stopped
// Ship if its on-disk data still exists.
func (r *Resolver) restoreStopped(ctx context.Context, req Request, logger zerolog.Logger) (*types.Ship, bool, error) {
	ship, err := r.store.FindStoppedShipForSession(req.SessionID)
	if err != nil {
		return nil, false, fmt.Errorf("looking up stopped ship: %w", err)
	}
	if ship == nil {
		return nil, false, nil
	}
	if !r.driver.ShipDataExists(ship.ID) {
		logger.Debug().Str("ship_id", ship.ID).Msg("stopped ship has no on-disk data left to restore")
		return nil, false, nil
	}

	if err := r.restore(ctx, ship, req, logger); err != nil {
		return nil, false, err
	}
	return ship, true, nil
}

// restore implements §4.3.1: recreate the backing container over the
// Ship's existing data, probe health, and refresh its session binding.
func (r *Resolver) restore(ctx context.Context, ship *types.Ship, req Request, logger zerolog.Logger) error {
	info, err := r.driver.CreateShipContainer(ctx, ship.ID, ship.Spec)
	if err != nil {
		return fmt.Errorf("restoring ship container: %w", err)
	}

	ship.ContainerID = info.ContainerID
	ship.IPAddress = info.IPAddress
	ship.Status = types.ShipRunning
	ship.UpdatedAt = time.Now().UTC()
	if err := r.store.UpdateShip(ship); err != nil {
		return fmt.Errorf("persisting restored ship: %w", err)
	}

	if err := r.probeHealth(ctx, ship); err != nil {
		ship.Status = types.ShipStopped
		ship.ContainerID = ""
		ship.IPAddress = ""
		ship.UpdatedAt = time.Now().UTC()
		_ = r.store.UpdateShip(ship)
		return err
	}

	binding, err := r.store.GetActiveBindingForSession(req.SessionID)
	if err != nil || binding == nil {
		// No prior active binding (it's expired): look for any binding
		// tying this session to this ship and refresh it, or create one.
		bindings, lerr := r.store.ListBindingsForShip(ship.ID)
		if lerr == nil {
			for _, b := range bindings {
				if b.SessionID == req.SessionID {
					binding = b
					break
				}
			}
		}
	}
	now := time.Now().UTC()
	if binding == nil {
		binding = &types.Binding{
			ID:        uuid.NewString(),
			SessionID: req.SessionID,
			ShipID:    ship.ID,
			CreatedAt: now,
		}
	}
	binding.LastActivity = now
	binding.ExpiresAt = now.Add(time.Duration(req.RequestedTTL) * time.Second)
	binding.InitialTTL = req.RequestedTTL
	if err := r.store.UpdateBinding(binding); err != nil {
		return fmt.Errorf("persisting restored binding: %w", err)
	}

	return r.scheduler.Schedule(ship.ID)
}

// takeOverWarm is rung 3: attach this session to a Running Ship that
// currently has zero active bindings.
func (r *Resolver) takeOverWarm(ctx context.Context, req Request, logger zerolog.Logger) (*types.Ship, bool, error) {
	candidate, err := r.store.FindWarmShip(req.Spec)
	if err != nil {
		return nil, false, fmt.Errorf("looking up warm ship: %w", err)
	}
	if candidate == nil {
		return nil, false, nil
	}

	// Re-verify between selection and commit: another resolver may have
	// already taken this candidate, or its container may have died.
	if candidate.ContainerID == "" || !r.driver.IsContainerRunning(ctx, candidate.ContainerID) {
		logger.Debug().Str("ship_id", candidate.ID).Msg("warm candidate no longer running, falling through")
		return nil, false, nil
	}

	now := time.Now().UTC()
	binding := &types.Binding{
		ID:           uuid.NewString(),
		SessionID:    req.SessionID,
		ShipID:       candidate.ID,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(time.Duration(req.RequestedTTL) * time.Second),
		InitialTTL:   req.RequestedTTL,
	}
	if err := r.store.CreateBinding(binding); err != nil {
		return nil, false, fmt.Errorf("persisting warm takeover binding: %w", err)
	}
	if err := r.scheduler.Schedule(candidate.ID); err != nil {
		return nil, false, fmt.Errorf("scheduling warm takeover cleanup: %w", err)
	}

	logger.Info().Str("ship_id", candidate.ID).Msg("took over warm ship")
	return candidate, true, nil
}

// createNew is rung 4: enforce admission, then create a brand new Ship.
func (r *Resolver) createNew(ctx context.Context, req Request, logger zerolog.Logger) (*types.Ship, error) {
	if err := r.awaitAdmission(ctx); err != nil {
		return nil, err
	}

	ship := &types.Ship{
		ID:        uuid.NewString(),
		Status:    types.ShipCreating,
		Spec:      req.Spec,
		TTL:       req.RequestedTTL,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := r.store.CreateShip(ship); err != nil {
		return nil, fmt.Errorf("persisting new ship: %w", err)
	}

	timer := metrics.NewTimer()
	info, err := r.driver.CreateShipContainer(ctx, ship.ID, ship.Spec)
	timer.ObserveDuration(metrics.ShipCreateDuration)
	if err != nil {
		_ = r.store.DeleteShip(ship.ID)
		return nil, fmt.Errorf("creating ship container: %w", err)
	}

	ship.ContainerID = info.ContainerID
	ship.IPAddress = info.IPAddress
	ship.UpdatedAt = time.Now().UTC()
	if err := r.store.UpdateShip(ship); err != nil {
		return nil, fmt.Errorf("persisting ship container handle: %w", err)
	}

	if err := r.probeHealth(ctx, ship); err != nil {
		_ = r.driver.StopShipContainer(ctx, ship.ContainerID)
		_ = r.store.DeleteShip(ship.ID)
		return nil, err
	}

	now := time.Now().UTC()
	binding := &types.Binding{
		ID:           uuid.NewString(),
		SessionID:    req.SessionID,
		ShipID:       ship.ID,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(time.Duration(req.RequestedTTL) * time.Second),
		InitialTTL:   req.RequestedTTL,
	}
	if err := r.store.CreateBinding(binding); err != nil {
		return nil, fmt.Errorf("persisting new binding: %w", err)
	}

	ship.Status = types.ShipRunning
	ship.UpdatedAt = now
	if err := r.store.UpdateShip(ship); err != nil {
		return nil, fmt.Errorf("promoting ship to running: %w", err)
	}

	if err := r.scheduler.Schedule(ship.ID); err != nil {
		return nil, fmt.Errorf("scheduling cleanup: %w", err)
	}

	metrics.ShipsCreatedTotal.Inc()
	logger.Info().Str("ship_id", ship.ID).Msg("created new ship")
	return ship, nil
}

// awaitAdmission enforces the configured ship cap, either rejecting
// immediately or polling for a free slot, per cfg.BehaviorAfterMaxShip.
func (r *Resolver) awaitAdmission(ctx context.Context) error {
	running, err := r.store.CountRunningShips()
	if err != nil {
		return fmt.Errorf("counting running ships: %w", err)
	}
	if running < r.cfg.MaxShipNum {
		return nil
	}
	if r.cfg.BehaviorAfterMaxShip == types.BehaviorReject {
		return harborerr.ErrAtCapacity
	}

	waitTimer := metrics.NewTimer()
	defer waitTimer.ObserveDuration(metrics.CapacityWaitDuration)

	deadline := time.Now().Add(time.Duration(r.cfg.AdmissionWaitTimeout) * time.Second)
	poll := time.Duration(r.cfg.AdmissionWaitPoll) * time.Second
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
		running, err := r.store.CountRunningShips()
		if err != nil {
			return fmt.Errorf("counting running ships: %w", err)
		}
		if running < r.cfg.MaxShipNum {
			return nil
		}
	}
	return harborerr.ErrCapacityWaitTimeout
}

// probeHealth polls the Ship's health path until it responds healthy
// or the configured timeout elapses.
func (r *Resolver) probeHealth(ctx context.Context, ship *types.Ship) error {
	url := fmt.Sprintf("http://%s%s", r.downstreamAddress(ship), r.cfg.ShipHealthCheckPath)
	checker := health.NewHTTPChecker(url).WithTimeout(5 * time.Second)

	deadline := time.Now().Add(time.Duration(r.cfg.ShipHealthCheckTimeout) * time.Second)
	interval := time.Duration(r.cfg.ShipHealthCheckInterval) * time.Second

	for {
		result := checker.Check(ctx)
		if result.Healthy {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", harborerr.ErrHealthTimeout, result.Message)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// downstreamAddress derives the reachable "host:port" for a Ship from
// its stored address, which may already carry a port (host-mapped
// drivers) or be a bare IP needing the configured default port
// (internal-network drivers). The Proxy applies the same rule.
func (r *Resolver) downstreamAddress(ship *types.Ship) string {
	return runtime.DownstreamAddress(ship.IPAddress, r.cfg.ShipContainerPort)
}
