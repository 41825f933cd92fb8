package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborctl/harbor/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	dir := t.TempDir()
	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestShipCRUD(t *testing.T) {
	store := newTestStore(t)

	ship := &types.Ship{
		ID:        "ship-1",
		Status:    types.ShipCreating,
		Spec:      types.ShipSpec{Cpus: 1, Memory: "512m", Disk: "1g"},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateShip(ship))

	got, err := store.GetShip("ship-1")
	require.NoError(t, err)
	assert.Equal(t, types.ShipCreating, got.Status)

	ship.Status = types.ShipRunning
	require.NoError(t, store.UpdateShip(ship))

	got, err = store.GetShip("ship-1")
	require.NoError(t, err)
	assert.Equal(t, types.ShipRunning, got.Status)

	all, err := store.ListShips()
	require.NoError(t, err)
	assert.Len(t, all, 1)

	active, err := store.ListActiveShips()
	require.NoError(t, err)
	assert.Len(t, active, 1)

	require.NoError(t, store.DeleteShip("ship-1"))
	_, err = store.GetShip("ship-1")
	assert.Error(t, err)
}

func TestActiveBindingForSession(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	expired := &types.Binding{ID: "b-old", SessionID: "s1", ShipID: "ship-1", ExpiresAt: now.Add(-time.Minute)}
	active := &types.Binding{ID: "b-new", SessionID: "s1", ShipID: "ship-1", ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, store.CreateBinding(expired))
	require.NoError(t, store.CreateBinding(active))

	got, err := store.GetActiveBindingForSession("s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "b-new", got.ID)

	got, err = store.GetActiveBindingForSession("no-such-session")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindWarmShip(t *testing.T) {
	store := newTestStore(t)
	spec := types.ShipSpec{Cpus: 1, Memory: "512m", Disk: "1g"}

	warm := &types.Ship{ID: "ship-warm", Status: types.ShipRunning, Spec: spec, UpdatedAt: time.Now().UTC()}
	require.NoError(t, store.CreateShip(warm))

	got, err := store.FindWarmShip(spec)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ship-warm", got.ID)

	// A still-bound (active) ship must not be offered as a warm candidate.
	require.NoError(t, store.CreateBinding(&types.Binding{
		ID: "b1", SessionID: "s2", ShipID: "ship-warm", ExpiresAt: time.Now().UTC().Add(time.Hour),
	}))
	got, err = store.FindWarmShip(spec)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCountRunningShips(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateShip(&types.Ship{ID: "s1", Status: types.ShipRunning}))
	require.NoError(t, store.CreateShip(&types.Ship{ID: "s2", Status: types.ShipCreating}))
	require.NoError(t, store.CreateShip(&types.Ship{ID: "s3", Status: types.ShipStopped}))

	count, err := store.CountRunningShips()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestListBindingsForSessionAndDelete(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateBinding(&types.Binding{ID: "b1", SessionID: "s1", ShipID: "ship-1"}))
	require.NoError(t, store.CreateBinding(&types.Binding{ID: "b2", SessionID: "s1", ShipID: "ship-2"}))
	require.NoError(t, store.CreateBinding(&types.Binding{ID: "b3", SessionID: "s2", ShipID: "ship-3"}))

	mine, err := store.ListBindingsForSession("s1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	require.NoError(t, store.DeleteBindingsForSession("s1"))
	mine, err = store.ListBindingsForSession("s1")
	require.NoError(t, err)
	assert.Empty(t, mine)

	others, err := store.ListBindingsForSession("s2")
	require.NoError(t, err)
	assert.Len(t, others, 1)
}

func TestExecutionRecordGetAndUpdate(t *testing.T) {
	store := newTestStore(t)
	rec := &types.ExecutionRecord{ID: "e1", SessionID: "s1", ShipID: "ship-1", Kind: types.ExecutionKind("shell/exec"), Success: true}
	require.NoError(t, store.CreateExecutionRecord(rec))

	got, err := store.GetExecutionRecord("e1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SessionID)

	got.Notes = "flaky on retry"
	got.Tags = []string{"flaky"}
	require.NoError(t, store.UpdateExecutionRecord(got))

	got, err = store.GetExecutionRecord("e1")
	require.NoError(t, err)
	assert.Equal(t, "flaky on retry", got.Notes)
	assert.Equal(t, []string{"flaky"}, got.Tags)
}

func TestDeleteBindingsForShip(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateBinding(&types.Binding{ID: "b1", ShipID: "ship-1"}))
	require.NoError(t, store.CreateBinding(&types.Binding{ID: "b2", ShipID: "ship-1"}))
	require.NoError(t, store.CreateBinding(&types.Binding{ID: "b3", ShipID: "ship-2"}))

	require.NoError(t, store.DeleteBindingsForShip("ship-1"))

	remaining, err := store.ListBindingsForShip("ship-1")
	require.NoError(t, err)
	assert.Empty(t, remaining)

	other, err := store.ListBindingsForShip("ship-2")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}
