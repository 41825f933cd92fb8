// Package scheduler manages the deferred cleanup of Ships whose
// Bindings have all expired.
package scheduler

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

// Scheduler holds one pending cleanup timer per Ship. Rescheduling a
// Ship (e.g. because an operation extended a session's TTL) cancels any
// existing timer before arming a new one, so a Ship is cleaned up
// exactly once, at its latest known effective expiry.
type Scheduler struct {
	store  storage.Store
	driver runtime.Driver
	logger zerolog.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// New creates a Scheduler bound to store and driver.
func New(store storage.Store, driver runtime.Driver) *Scheduler {
	return &Scheduler{
		store:  store,
		driver: driver,
		logger: log.WithComponent("scheduler"),
		timers: make(map[string]*time.Timer),
	}
}

// Schedule (re)computes the effective expiry for shipID across all of
// its Bindings and arms a single cleanup timer for that instant,
// canceling any timer already pending for this Ship.
//
// The effective expiry is the latest ExpiresAt among all Bindings for
// the Ship: as long as any session holds a non-expired Binding, the
// Ship must not be cleaned up.
func (s *Scheduler) Schedule(shipID string) error {
	bindings, err := s.store.ListBindingsForShip(shipID)
	if err != nil {
		return err
	}

	var maxExpiry time.Time
	for _, b := range bindings {
		if b.ExpiresAt.After(maxExpiry) {
			maxExpiry = b.ExpiresAt
		}
	}

	now := time.Now().UTC()
	remaining := maxExpiry.Sub(now)
	if remaining < 0 {
		remaining = 0
	}

	s.arm(shipID, remaining)
	return nil
}

// Cancel removes any pending cleanup timer for shipID without arming a
// new one, used when a Ship is deleted explicitly.
func (s *Scheduler) Cancel(shipID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[shipID]; ok {
		t.Stop()
		delete(s.timers, shipID)
	}
}

// Stop cancels every pending timer. Intended for process shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) arm(shipID string, after time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if existing, ok := s.timers[shipID]; ok {
		existing.Stop()
	}
	s.timers[shipID] = time.AfterFunc(after, func() { s.fire(shipID) })
}

func (s *Scheduler) fire(shipID string) {
	s.mu.Lock()
	delete(s.timers, shipID)
	s.mu.Unlock()

	logger := log.WithShipID(shipID)

	ship, err := s.store.GetShip(shipID)
	if err != nil {
		logger.Warn().Err(err).Msg("cleanup fired for ship that no longer exists")
		return
	}
	if ship.Status != types.ShipRunning {
		return
	}

	// Re-verify nothing extended the TTL between the timer firing and
	// acquiring this check — a fresh operation may have rescheduled us
	// concurrently, in which case a new timer is already armed and this
	// firing is stale.
	bindings, err := s.store.ListBindingsForShip(shipID)
	if err != nil {
		logger.Error().Err(err).Msg("listing bindings during scheduled cleanup")
		return
	}
	now := time.Now().UTC()
	for _, b := range bindings {
		if b.ExpiresAt.After(now) {
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.driver.StopShipContainer(ctx, ship.ContainerID); err != nil {
		logger.Error().Err(err).Msg("stopping ship container during scheduled cleanup")
	}

	ship.Status = types.ShipStopped
	ship.ContainerID = ""
	ship.UpdatedAt = now
	if err := s.store.UpdateShip(ship); err != nil {
		logger.Error().Err(err).Msg("persisting ship stopped state after scheduled cleanup")
		return
	}

	metrics.ShipsCleanedUpTotal.Inc()
	logger.Info().Msg("ship cleaned up after ttl expiry")
}
