package resolver

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

type fakeDriver struct {
	running map[string]bool
	dataExists map[string]bool
	addr    string
	nextID  int
}

func newFakeDriver(addr string) *fakeDriver {
	return &fakeDriver{running: make(map[string]bool), dataExists: make(map[string]bool), addr: addr}
}

func (f *fakeDriver) CreateShipContainer(ctx context.Context, shipID string, spec types.ShipSpec) (types.ContainerInfo, error) {
	f.nextID++
	id := "c-" + shipID
	f.running[id] = true
	f.dataExists[shipID] = true
	return types.ContainerInfo{ContainerID: id, IPAddress: f.addr, Status: "running"}, nil
}
func (f *fakeDriver) StopShipContainer(ctx context.Context, containerID string) error {
	f.running[containerID] = false
	return nil
}
func (f *fakeDriver) IsContainerRunning(ctx context.Context, containerID string) bool {
	return f.running[containerID]
}
func (f *fakeDriver) GetContainerLogs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	return nil, nil
}
func (f *fakeDriver) ShipDataExists(shipID string) bool             { return f.dataExists[shipID] }
func (f *fakeDriver) EnsureShipDirs(shipID string) error            { return nil }
func (f *fakeDriver) DeleteShipData(ctx context.Context, shipID string) error { return nil }

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newHealthyUpstream(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv.Listener.Addr().String()
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.MaxShipNum = 2
	cfg.ShipHealthCheckTimeout = 2
	cfg.ShipHealthCheckInterval = 1
	cfg.AdmissionWaitTimeout = 1
	cfg.AdmissionWaitPoll = 1
	return cfg
}

func TestResolveCreatesNewShip(t *testing.T) {
	store := newTestStore(t)
	addr := newHealthyUpstream(t)
	driver := newFakeDriver(addr)
	sched := scheduler.New(store, driver)
	defer sched.Stop()

	res := New(store, driver, sched, testConfig())
	ship, err := res.Resolve(context.Background(), Request{SessionID: "s1", RequestedTTL: 60})
	require.NoError(t, err)
	assert.Equal(t, types.ShipRunning, ship.Status)

	binding, err := store.GetActiveBindingForSession("s1")
	require.NoError(t, err)
	require.NotNil(t, binding)
	assert.Equal(t, ship.ID, binding.ShipID)
}

func TestResolveReusesActiveBinding(t *testing.T) {
	store := newTestStore(t)
	addr := newHealthyUpstream(t)
	driver := newFakeDriver(addr)
	sched := scheduler.New(store, driver)
	defer sched.Stop()

	res := New(store, driver, sched, testConfig())
	first, err := res.Resolve(context.Background(), Request{SessionID: "s1", RequestedTTL: 60})
	require.NoError(t, err)

	second, err := res.Resolve(context.Background(), Request{SessionID: "s1", RequestedTTL: 60})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestResolveTakesOverWarmPool(t *testing.T) {
	store := newTestStore(t)
	addr := newHealthyUpstream(t)
	driver := newFakeDriver(addr)
	sched := scheduler.New(store, driver)
	defer sched.Stop()

	spec := types.ShipSpec{Cpus: 1, Memory: "512m", Disk: "1g"}
	now := time.Now().UTC()
	require.NoError(t, store.CreateShip(&types.Ship{
		ID: "warm-1", Status: types.ShipRunning, ContainerID: "c-warm-1",
		Spec: spec, CreatedAt: now, UpdatedAt: now,
	}))
	driver.running["c-warm-1"] = true

	cfg := testConfig()
	cfg.DefaultShipCpus = spec.Cpus
	cfg.DefaultShipMemory = spec.Memory
	cfg.DefaultShipDisk = spec.Disk

	res := New(store, driver, sched, cfg)
	ship, err := res.Resolve(context.Background(), Request{SessionID: "s2", RequestedTTL: 60, Spec: spec})
	require.NoError(t, err)
	assert.Equal(t, "warm-1", ship.ID)
}

func TestResolveRejectsAtCapacityWhenConfigured(t *testing.T) {
	store := newTestStore(t)
	addr := newHealthyUpstream(t)
	driver := newFakeDriver(addr)
	sched := scheduler.New(store, driver)
	defer sched.Stop()

	cfg := testConfig()
	cfg.MaxShipNum = 0
	cfg.BehaviorAfterMaxShip = types.BehaviorReject

	res := New(store, driver, sched, cfg)
	_, err := res.Resolve(context.Background(), Request{SessionID: "s3", RequestedTTL: 60})
	assert.Error(t, err)
}
