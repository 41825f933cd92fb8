package reconciler

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborctl/harbor/pkg/storage"
	"github.com/harborctl/harbor/pkg/types"
)

type fakeDriver struct {
	mu      sync.Mutex
	running map[string]bool
}

func newFakeDriver() *fakeDriver { return &fakeDriver{running: make(map[string]bool)} }

func (f *fakeDriver) setRunning(containerID string, running bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running[containerID] = running
}

func (f *fakeDriver) CreateShipContainer(ctx context.Context, shipID string, spec types.ShipSpec) (types.ContainerInfo, error) {
	return types.ContainerInfo{}, nil
}
func (f *fakeDriver) StopShipContainer(ctx context.Context, containerID string) error { return nil }
func (f *fakeDriver) IsContainerRunning(ctx context.Context, containerID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[containerID]
}
func (f *fakeDriver) GetContainerLogs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	return nil, nil
}
func (f *fakeDriver) ShipDataExists(shipID string) bool             { return true }
func (f *fakeDriver) EnsureShipDirs(shipID string) error            { return nil }
func (f *fakeDriver) DeleteShipData(ctx context.Context, shipID string) error { return nil }

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestReconcileDemotesDeadContainer(t *testing.T) {
	store := newTestStore(t)
	driver := newFakeDriver()
	driver.setRunning("c1", false)

	require.NoError(t, store.CreateShip(&types.Ship{
		ID: "ship-1", Status: types.ShipRunning, ContainerID: "c1", UpdatedAt: time.Now().UTC(),
	}))

	rec := New(store, driver, time.Hour)
	require.NoError(t, rec.reconcile())

	got, err := store.GetShip("ship-1")
	require.NoError(t, err)
	assert.Equal(t, types.ShipStopped, got.Status)
}

func TestReconcilePromotesLiveContainer(t *testing.T) {
	store := newTestStore(t)
	driver := newFakeDriver()
	driver.setRunning("c2", true)

	require.NoError(t, store.CreateShip(&types.Ship{
		ID: "ship-2", Status: types.ShipStopped, ContainerID: "c2", UpdatedAt: time.Now().UTC(),
	}))

	rec := New(store, driver, time.Hour)
	require.NoError(t, rec.reconcile())

	got, err := store.GetShip("ship-2")
	require.NoError(t, err)
	assert.Equal(t, types.ShipRunning, got.Status)
}

func TestReconcileDemotesMissingContainerID(t *testing.T) {
	store := newTestStore(t)
	driver := newFakeDriver()

	require.NoError(t, store.CreateShip(&types.Ship{
		ID: "ship-3", Status: types.ShipRunning, ContainerID: "", UpdatedAt: time.Now().UTC(),
	}))

	rec := New(store, driver, time.Hour)
	require.NoError(t, rec.reconcile())

	got, err := store.GetShip("ship-3")
	require.NoError(t, err)
	assert.Equal(t, types.ShipStopped, got.Status)
}

func TestReconcileLeavesAlreadyExpiredBindingAlone(t *testing.T) {
	store := newTestStore(t)
	driver := newFakeDriver()

	require.NoError(t, store.CreateShip(&types.Ship{
		ID: "ship-4", Status: types.ShipStopped, UpdatedAt: time.Now().UTC(),
	}))
	expiresAt := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.CreateBinding(&types.Binding{
		ID: "b1", ShipID: "ship-4", SessionID: "s1",
		ExpiresAt: expiresAt,
	}))

	rec := New(store, driver, time.Hour)
	require.NoError(t, rec.reconcile())

	bindings, err := store.ListBindingsForShip("ship-4")
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.True(t, bindings[0].ExpiresAt.Equal(expiresAt))
}

func TestReconcileExpiresActiveBindingOnStoppedShip(t *testing.T) {
	store := newTestStore(t)
	driver := newFakeDriver()

	require.NoError(t, store.CreateShip(&types.Ship{
		ID: "ship-5", Status: types.ShipStopped, UpdatedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.CreateBinding(&types.Binding{
		ID: "b1", ShipID: "ship-5", SessionID: "s1",
		ExpiresAt: time.Now().UTC().Add(time.Minute),
	}))

	rec := New(store, driver, time.Hour)
	require.NoError(t, rec.reconcile())

	bindings, err := store.ListBindingsForShip("ship-5")
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.False(t, bindings[0].ExpiresAt.After(time.Now().UTC()))
}

func TestReconcileExpiresBindingsOnDemotedShip(t *testing.T) {
	store := newTestStore(t)
	driver := newFakeDriver()
	driver.setRunning("c6", false)

	require.NoError(t, store.CreateShip(&types.Ship{
		ID: "ship-6", Status: types.ShipRunning, ContainerID: "c6", UpdatedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.CreateBinding(&types.Binding{
		ID: "b1", ShipID: "ship-6", SessionID: "s1",
		ExpiresAt: time.Now().UTC().Add(time.Minute),
	}))

	rec := New(store, driver, time.Hour)
	require.NoError(t, rec.reconcile())

	got, err := store.GetShip("ship-6")
	require.NoError(t, err)
	assert.Equal(t, types.ShipStopped, got.Status)

	bindings, err := store.ListBindingsForShip("ship-6")
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.False(t, bindings[0].ExpiresAt.After(time.Now().UTC()))
}
