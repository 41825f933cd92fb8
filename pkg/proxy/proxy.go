// Package proxy forwards client requests (exec, upload, download, and
// the terminal byte stream) from Harbor's API surface to the Ship
// container backing the caller's session.
package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harborctl/harbor/pkg/config"
	"github.com/harborctl/harbor/pkg/harborerr"
	"github.com/harborctl/harbor/pkg/log"
	"github.com/harborctl/harbor/pkg/metrics"
	"github.com/harborctl/harbor/pkg/runtime"
	"github.com/harborctl/harbor/pkg/scheduler"
	"github.com/harborctl/harbor/pkg/storage"
	"github.com/harborctl/harbor/pkg/types"
)

// sessionIDHeader is forwarded downstream so the Ship's own process can
// scope per-session state (e.g. a shell's working directory).
const sessionIDHeader = "X-SESSION-ID"

// Proxy forwards operations to a Ship's HTTP API and keeps the
// session's binding liveness and TTL schedule current on every
// successful forward.
type Proxy struct {
	store     storage.Store
	scheduler *scheduler.Scheduler
	cfg       *config.Config
	logger    zerolog.Logger

	execClient     *http.Client
	transferClient *http.Client
}

// New creates a Proxy bound to store, scheduler, and configuration.
func New(store storage.Store, sched *scheduler.Scheduler, cfg *config.Config) *Proxy {
	return &Proxy{
		store:          store,
		scheduler:      sched,
		cfg:            cfg,
		logger:         log.WithComponent("proxy"),
		execClient:     &http.Client{Timeout: time.Duration(cfg.ForwardExecTimeout) * time.Second},
		transferClient: &http.Client{Timeout: time.Duration(cfg.ForwardTransferTimeout) * time.Second},
	}
}

// ExecResult is what Exec returns to the caller, alongside the execution
// record persisted for it (nil when the forward did not succeed or the
// record could not be persisted). Upload and Download return no result.
type ExecResult struct {
	Success         bool
	Data            []byte // raw downstream response body
	Error           string
	ExecutionRecord *types.ExecutionRecord
}

// Exec forwards a shell/python execution request to shipID's backing
// container and, on success, persists an ExecutionRecord.
func (p *Proxy) Exec(ctx context.Context, shipID, sessionID, operationType string, payload []byte) (*ExecResult, error) {
	ship, binding, err := p.authorize(shipID, sessionID)
	if err != nil {
		return nil, err
	}

	timer := metrics.NewTimer()
	start := time.Now()
	url := fmt.Sprintf("http://%s/%s", runtime.DownstreamAddress(ship.IPAddress, p.cfg.ShipContainerPort), operationType)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", harborerr.ErrUpstreamForward, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(sessionIDHeader, sessionID)

	resp, err := p.execClient.Do(req)
	timer.ObserveDurationVec(metrics.ProxyForwardDuration, "exec")
	elapsedMS := time.Since(start).Milliseconds()

	result := &ExecResult{}
	if err != nil {
		metrics.ProxyForwardsTotal.WithLabelValues("exec", "transport_error").Inc()
		result.Error = err.Error()
	} else {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			metrics.ProxyForwardsTotal.WithLabelValues("exec", "ok").Inc()
			result.Success = true
			result.Data = body
		} else {
			metrics.ProxyForwardsTotal.WithLabelValues("exec", "non_2xx").Inc()
			result.Error = fmt.Sprintf("ship returned %d: %s", resp.StatusCode, string(body))
		}
	}

	if result.Success {
		p.refresh(shipID, binding)

		rec := &types.ExecutionRecord{
			ID:              uuid.NewString(),
			SessionID:       sessionID,
			ShipID:          shipID,
			Kind:            types.ExecutionKind(operationType),
			Command:         string(payload),
			Success:         true,
			ExecutionTimeMS: elapsedMS,
			CreatedAt:       time.Now().UTC(),
		}
		if err := p.store.CreateExecutionRecord(rec); err != nil {
			p.logger.Error().Err(err).Msg("persisting execution record")
		} else {
			result.ExecutionRecord = rec
		}
	}

	return result, nil
}

// Upload forwards a multipart file upload to shipID's backing container.
func (p *Proxy) Upload(ctx context.Context, shipID, sessionID, destPath string, content []byte) error {
	ship, binding, err := p.authorize(shipID, sessionID)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "upload")
	if err != nil {
		return fmt.Errorf("building upload form: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("writing upload form: %w", err)
	}
	if err := writer.WriteField("file_path", destPath); err != nil {
		return fmt.Errorf("writing upload form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing upload form: %w", err)
	}

	downstream := fmt.Sprintf("http://%s/upload", runtime.DownstreamAddress(ship.IPAddress, p.cfg.ShipContainerPort))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, downstream, &body)
	if err != nil {
		return fmt.Errorf("%w: %v", harborerr.ErrUpstreamForward, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set(sessionIDHeader, sessionID)

	timer := metrics.NewTimer()
	resp, err := p.transferClient.Do(req)
	timer.ObserveDurationVec(metrics.ProxyForwardDuration, "upload")
	if err != nil {
		metrics.ProxyForwardsTotal.WithLabelValues("upload", "transport_error").Inc()
		return fmt.Errorf("%w: %v", harborerr.ErrUpstreamForward, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		metrics.ProxyForwardsTotal.WithLabelValues("upload", "non_2xx").Inc()
		return fmt.Errorf("%w: ship returned %d: %s", harborerr.ErrUpstreamForward, resp.StatusCode, string(respBody))
	}
	metrics.ProxyForwardsTotal.WithLabelValues("upload", "ok").Inc()

	p.refresh(shipID, binding)
	return nil
}

// Download forwards a file download request and returns the file's
// raw bytes.
func (p *Proxy) Download(ctx context.Context, shipID, sessionID, filePath string) ([]byte, error) {
	ship, binding, err := p.authorize(shipID, sessionID)
	if err != nil {
		return nil, err
	}

	downstream := fmt.Sprintf("http://%s/download?file_path=%s",
		runtime.DownstreamAddress(ship.IPAddress, p.cfg.ShipContainerPort), url.QueryEscape(filePath))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downstream, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", harborerr.ErrUpstreamForward, err)
	}
	req.Header.Set(sessionIDHeader, sessionID)

	timer := metrics.NewTimer()
	resp, err := p.transferClient.Do(req)
	timer.ObserveDurationVec(metrics.ProxyForwardDuration, "download")
	if err != nil {
		metrics.ProxyForwardsTotal.WithLabelValues("download", "transport_error").Inc()
		return nil, fmt.Errorf("%w: %v", harborerr.ErrUpstreamForward, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		metrics.ProxyForwardsTotal.WithLabelValues("download", "non_2xx").Inc()
		return nil, fmt.Errorf("%w: ship returned %d: %s", harborerr.ErrUpstreamForward, resp.StatusCode, string(respBody))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading downstream response: %w", err)
	}
	metrics.ProxyForwardsTotal.WithLabelValues("download", "ok").Inc()

	p.refresh(shipID, binding)
	return data, nil
}

// authorize loads the Ship and the caller's binding to it, failing as
// the spec requires: ShipNotRunning if the Ship isn't up, AccessDenied
// (ErrSessionNotBound) if this session has no binding to it.
func (p *Proxy) authorize(shipID, sessionID string) (*types.Ship, *types.Binding, error) {
	ship, err := p.store.GetShip(shipID)
	if err != nil {
		return nil, nil, harborerr.ErrNotFound
	}
	if ship.Status != types.ShipRunning {
		return nil, nil, harborerr.ErrShipNotRunning
	}

	bindings, err := p.store.ListBindingsForShip(shipID)
	if err != nil {
		return nil, nil, fmt.Errorf("listing bindings: %w", err)
	}
	now := time.Now().UTC()
	for _, b := range bindings {
		if b.SessionID == sessionID && b.ExpiresAt.After(now) {
			return ship, b, nil
		}
	}
	return nil, nil, harborerr.ErrSessionNotBound
}

// refresh extends binding's expiry to now+initial_ttl and recomputes
// the Ship's cleanup schedule, per the "refresh on operation" rule.
func (p *Proxy) refresh(shipID string, binding *types.Binding) {
	binding.LastActivity = time.Now().UTC()
	binding.ExpiresAt = binding.LastActivity.Add(time.Duration(binding.InitialTTL) * time.Second)
	if err := p.store.UpdateBinding(binding); err != nil {
		p.logger.Error().Err(err).Str("ship_id", shipID).Msg("refreshing binding after forward")
		return
	}
	if err := p.scheduler.Schedule(shipID); err != nil {
		p.logger.Error().Err(err).Str("ship_id", shipID).Msg("rescheduling cleanup after forward")
	}
}
