package scheduler

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborctl/harbor/pkg/storage"
	"github.com/harborctl/harbor/pkg/types"
)

type fakeDriver struct {
	stopped chan string
}

func newFakeDriver() *fakeDriver { return &fakeDriver{stopped: make(chan string, 8)} }

func (f *fakeDriver) CreateShipContainer(ctx context.Context, shipID string, spec types.ShipSpec) (types.ContainerInfo, error) {
	return types.ContainerInfo{}, nil
}
func (f *fakeDriver) StopShipContainer(ctx context.Context, containerID string) error {
	f.stopped <- containerID
	return nil
}
func (f *fakeDriver) IsContainerRunning(ctx context.Context, containerID string) bool { return false }
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

func TestSchedulerFiresAfterExpiry(t *testing.T) {
	store := newTestStore(t)
	driver := newFakeDriver()
	sched := New(store, driver)

	ship := &types.Ship{ID: "ship-1", Status: types.ShipRunning, ContainerID: "c1", UpdatedAt: time.Now().UTC()}
	require.NoError(t, store.CreateShip(ship))
	require.NoError(t, store.CreateBinding(&types.Binding{
		ID: "b1", ShipID: "ship-1", SessionID: "s1", ExpiresAt: time.Now().UTC().Add(50 * time.Millisecond),
	}))

	require.NoError(t, sched.Schedule("ship-1"))

	select {
	case id := <-driver.stopped:
		assert.Equal(t, "c1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup did not fire in time")
	}

	time.Sleep(20 * time.Millisecond)
	got, err := store.GetShip("ship-1")
	require.NoError(t, err)
	assert.Equal(t, types.ShipStopped, got.Status)
}

func TestSchedulerReschedulingExtendsDeadline(t *testing.T) {
	store := newTestStore(t)
	driver := newFakeDriver()
	sched := New(store, driver)

	ship := &types.Ship{ID: "ship-2", Status: types.ShipRunning, ContainerID: "c2", UpdatedAt: time.Now().UTC()}
	require.NoError(t, store.CreateShip(ship))
	require.NoError(t, store.CreateBinding(&types.Binding{
		ID: "b1", ShipID: "ship-2", SessionID: "s1", ExpiresAt: time.Now().UTC().Add(50 * time.Millisecond),
	}))
	require.NoError(t, sched.Schedule("ship-2"))

	// Extend before the original deadline fires.
	require.NoError(t, store.UpdateBinding(&types.Binding{
		ID: "b1", ShipID: "ship-2", SessionID: "s1", ExpiresAt: time.Now().UTC().Add(300 * time.Millisecond),
	}))
	require.NoError(t, sched.Schedule("ship-2"))

	select {
	case <-driver.stopped:
		t.Fatal("cleanup fired before the extended deadline")
	case <-time.After(100 * time.Millisecond):
	}

	select {
	case <-driver.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup never fired after extension")
	}
}
