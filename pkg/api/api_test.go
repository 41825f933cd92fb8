package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborctl/harbor/pkg/config"
	"github.com/harborctl/harbor/pkg/core"
	"github.com/harborctl/harbor/pkg/proxy"
	"github.com/harborctl/harbor/pkg/reconciler"
	"github.com/harborctl/harbor/pkg/resolver"
	"github.com/harborctl/harbor/pkg/scheduler"
	"github.com/harborctl/harbor/pkg/storage"
	"github.com/harborctl/harbor/pkg/types"
)

type fakeDriver struct {
	addr string
}

func (f *fakeDriver) CreateShipContainer(ctx context.Context, shipID string, spec types.ShipSpec) (types.ContainerInfo, error) {
	return types.ContainerInfo{ContainerID: "c-" + shipID, IPAddress: f.addr}, nil
}
func (f *fakeDriver) StopShipContainer(ctx context.Context, containerID string) error { return nil }
func (f *fakeDriver) IsContainerRunning(ctx context.Context, containerID string) bool  { return true }
func (f *fakeDriver) GetContainerLogs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewBufferString("log output")), nil
}
func (f *fakeDriver) ShipDataExists(shipID string) bool             { return true }
func (f *fakeDriver) EnsureShipDirs(shipID string) error            { return nil }
func (f *fakeDriver) DeleteShipData(ctx context.Context, shipID string) error { return nil }

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(upstream.Close)

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	driver := &fakeDriver{addr: upstream.Listener.Addr().String()}
	cfg := config.Default()
	cfg.AccessToken = "test-token"
	cfg.ShipHealthCheckTimeout = 1
	cfg.ShipHealthCheckInterval = 1

	sched := scheduler.New(store, driver)
	t.Cleanup(sched.Stop)
	res := resolver.New(store, driver, sched, cfg)
	rec := reconciler.New(store, driver, 0)
	px := proxy.New(store, sched, cfg)

	c := &core.Core{
		Config: cfg, Store: store, Driver: driver,
		Scheduler: sched, Resolver: res, Reconciler: rec, Proxy: px,
	}
	return NewServer(c), upstream
}

func authedRequest(method, path string, body []byte) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer test-token")
	req.Header.Set("X-SESSION-ID", "session-1")
	return req
}

func TestHealthAndStatAreUnauthenticated(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stat", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateShipRejectsMissingToken(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/ship", bytes.NewReader([]byte(`{"ttl":60}`)))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateShipRejectsInvalidTTL(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, authedRequest(http.MethodPost, "/ship", []byte(`{"ttl":0}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateShipRejectsUnknownFields(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, authedRequest(http.MethodPost, "/ship", []byte(`{"ttl":60,"bogus":true}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateGetAndDeleteShip(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, authedRequest(http.MethodPost, "/ship", []byte(`{"ttl":60}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created ShipView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, types.ShipRunning, created.Status)
	require.NotNil(t, created.ExpiresAt)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, authedRequest(http.MethodGet, "/ship/"+created.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, authedRequest(http.MethodDelete, "/ship/"+created.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Second delete of an already-Stopped ship is a 404, per the
	// idempotence testable property (soft delete returns 204 then 404).
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, authedRequest(http.MethodDelete, "/ship/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionHistoryAfterExec(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, authedRequest(http.MethodPost, "/ship", []byte(`{"ttl":60}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created ShipView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, authedRequest(http.MethodPost, "/ship/"+created.ID+"/exec", []byte(`{"type":"shell/exec","payload":{"command":"echo hi"}}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var execResp execResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &execResp))
	require.NotEmpty(t, execResp.ExecutionID)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, authedRequest(http.MethodGet, "/sessions/session-1/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var hist historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	assert.Equal(t, 1, hist.Total)
	assert.Equal(t, execResp.ExecutionID, hist.Entries[0].ID)
}
