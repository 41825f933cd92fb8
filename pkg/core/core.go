// Package core wires Harbor's subsystems into a single owned value
// that the API handlers, and nothing else, hold a reference to.
package core

import (
	"fmt"
	"time"

	"github.com/harborctl/harbor/pkg/config"
	"github.com/harborctl/harbor/pkg/log"
	"github.com/harborctl/harbor/pkg/proxy"
	"github.com/harborctl/harbor/pkg/reconciler"
	"github.com/harborctl/harbor/pkg/resolver"
	"github.com/harborctl/harbor/pkg/runtime"
	"github.com/harborctl/harbor/pkg/scheduler"
	"github.com/harborctl/harbor/pkg/storage"
)

// Core holds every wired subsystem Harbor needs to serve requests and
// run its background loops. There is exactly one per process.
type Core struct {
	Config *config.Config

	Store      storage.Store
	Driver     runtime.Driver
	Scheduler  *scheduler.Scheduler
	Resolver   *resolver.Resolver
	Reconciler *reconciler.Reconciler
	Proxy      *proxy.Proxy
}

// New builds a Core from cfg: opens the store, constructs the selected
// driver, and wires the scheduler, resolver, reconciler, and proxy on
// top of them. It does not start any background loop; call Start for that.
func New(cfg *config.Config) (*Core, error) {
	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	driver, err := runtime.NewDriver(cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("constructing driver: %w", err)
	}

	sched := scheduler.New(store, driver)
	res := resolver.New(store, driver, sched, cfg)
	rec := reconciler.New(store, driver, time.Duration(cfg.ReconcileInterval)*time.Second)
	px := proxy.New(store, sched, cfg)

	return &Core{
		Config:     cfg,
		Store:      store,
		Driver:     driver,
		Scheduler:  sched,
		Resolver:   res,
		Reconciler: rec,
		Proxy:      px,
	}, nil
}

// Start arms cleanup timers for every Ship that is not Stopped and
// begins the Reconciler's background sweep. Intended to run once, at
// process startup, after any prior state has been loaded from Store.
func (c *Core) Start() error {
	ships, err := c.Store.ListActiveShips()
	if err != nil {
		return fmt.Errorf("listing active ships at startup: %w", err)
	}
	for _, ship := range ships {
		if err := c.Scheduler.Schedule(ship.ID); err != nil {
			log.WithComponent("core").Error().Err(err).
				Str("ship_id", ship.ID).Msg("failed to arm startup cleanup timer")
		}
	}

	c.Reconciler.Start()
	return nil
}

// Stop halts all background loops and releases the Store.
func (c *Core) Stop() {
	c.Reconciler.Stop()
	c.Scheduler.Stop()
	if err := c.Store.Close(); err != nil {
		log.WithComponent("core").Error().Err(err).Msg("closing store")
	}
}
