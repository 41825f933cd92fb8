package proxy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborctl/harbor/pkg/config"
	"github.com/harborctl/harbor/pkg/scheduler"
	"github.com/harborctl/harbor/pkg/storage"
	"github.com/harborctl/harbor/pkg/types"
)

type fakeDriver struct{}

func (f *fakeDriver) CreateShipContainer(ctx context.Context, shipID string, spec types.ShipSpec) (types.ContainerInfo, error) {
	return types.ContainerInfo{}, nil
}
func (f *fakeDriver) StopShipContainer(ctx context.Context, containerID string) error { return nil }
func (f *fakeDriver) IsContainerRunning(ctx context.Context, containerID string) bool  { return true }
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

func TestExecForwardsAndRefreshesBinding(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "s1", r.Header.Get("X-SESSION-ID"))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	store := newTestStore(t)
	sched := scheduler.New(store, &fakeDriver{})
	defer sched.Stop()
	cfg := config.Default()
	cfg.ShipContainerPort = 8123

	now := time.Now().UTC()
	require.NoError(t, store.CreateShip(&types.Ship{
		ID: "ship-1", Status: types.ShipRunning, IPAddress: upstream.Listener.Addr().String(),
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, store.CreateBinding(&types.Binding{
		ID: "b1", ShipID: "ship-1", SessionID: "s1",
		CreatedAt: now, LastActivity: now, ExpiresAt: now.Add(time.Second), InitialTTL: 60,
	}))

	p := New(store, sched, cfg)
	result, err := p.Exec(context.Background(), "ship-1", "s1", "shell/exec", []byte(`{"cmd":"ls"}`))
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, result.ExecutionRecord)

	binding, err := store.GetBinding("b1")
	require.NoError(t, err)
	assert.True(t, binding.ExpiresAt.After(now.Add(time.Second)))

	records, err := store.ListExecutionRecordsForSession("s1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestExecRejectsUnboundSession(t *testing.T) {
	store := newTestStore(t)
	sched := scheduler.New(store, &fakeDriver{})
	defer sched.Stop()
	cfg := config.Default()

	now := time.Now().UTC()
	require.NoError(t, store.CreateShip(&types.Ship{
		ID: "ship-2", Status: types.ShipRunning, IPAddress: "10.0.0.5", CreatedAt: now, UpdatedAt: now,
	}))

	p := New(store, sched, cfg)
	_, err := p.Exec(context.Background(), "ship-2", "unbound-session", "shell/exec", nil)
	assert.Error(t, err)
}

func TestExecRejectsStoppedShip(t *testing.T) {
	store := newTestStore(t)
	sched := scheduler.New(store, &fakeDriver{})
	defer sched.Stop()
	cfg := config.Default()

	now := time.Now().UTC()
	require.NoError(t, store.CreateShip(&types.Ship{
		ID: "ship-3", Status: types.ShipStopped, CreatedAt: now, UpdatedAt: now,
	}))

	p := New(store, sched, cfg)
	_, err := p.Exec(context.Background(), "ship-3", "s1", "shell/exec", nil)
	assert.Error(t, err)
}
