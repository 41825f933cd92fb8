package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/harborctl/harbor/pkg/harborerr"
	"github.com/harborctl/harbor/pkg/log"
	"github.com/harborctl/harbor/pkg/proxy"
	"github.com/harborctl/harbor/pkg/resolver"
	"github.com/harborctl/harbor/pkg/types"
)

const sessionIDHeader = "X-SESSION-ID"

// expiresAtFor computes a Ship's effective expiry: the latest ExpiresAt
// across its bindings, or nil if it has none (due for cleanup already).
func (s *Server) expiresAtFor(shipID string) (*time.Time, error) {
	bindings, err := s.core.Store.ListBindingsForShip(shipID)
	if err != nil {
		return nil, err
	}
	var latest *time.Time
	for _, b := range bindings {
		if latest == nil || b.ExpiresAt.After(*latest) {
			t := b.ExpiresAt
			latest = &t
		}
	}
	return latest, nil
}

func (s *Server) viewForShip(ship *types.Ship) (ShipView, error) {
	expiresAt, err := s.expiresAtFor(ship.ID)
	if err != nil {
		return ShipView{}, err
	}
	return newShipView(ship, expiresAt), nil
}

func (s *Server) handleListShips(w http.ResponseWriter, r *http.Request) {
	ships, err := s.core.Store.ListShips()
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]ShipView, 0, len(ships))
	for _, ship := range ships {
		view, err := s.viewForShip(ship)
		if err != nil {
			writeError(w, err)
			return
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateShip(w http.ResponseWriter, r *http.Request) {
	var body createShipRequest
	if err := decodeStrict(r, &body); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}
	if body.TTL <= 0 {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "ttl must be > 0"})
		return
	}

	sessionID := r.Header.Get(sessionIDHeader)
	if sessionID == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "missing " + sessionIDHeader + " header"})
		return
	}

	req := resolver.Request{SessionID: sessionID, RequestedTTL: body.TTL, ForceCreate: body.ForceCreate}
	if body.Spec != nil {
		req.Spec = normalizeSpec(*body.Spec)
	}

	ship, err := s.core.Resolver.Resolve(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := s.viewForShip(ship)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// normalizeSpec applies the memory/disk floors from the testable
// properties section: no request may end up below 128 MiB memory or
// 100 MiB disk, however it was expressed ("1m", "0", etc).
func normalizeSpec(spec types.ShipSpec) types.ShipSpec {
	const memFloorMiB = 128
	const diskFloorMiB = 100
	if megabytes(spec.Memory) < memFloorMiB {
		spec.Memory = strconv.Itoa(memFloorMiB) + "Mi"
	}
	if spec.Disk != "" && megabytes(spec.Disk) < diskFloorMiB {
		spec.Disk = strconv.Itoa(diskFloorMiB) + "Mi"
	}
	return spec
}

// megabytes parses a free-form size string ("512m", "1g", "256Mi") down
// to whole megabytes, reading the k/m/g suffix families (with or without
// a trailing b or i) and a bare byte count the way the driver does. It
// returns 0 for anything it can't parse (treated as "below the floor").
func megabytes(size string) int {
	if size == "" {
		return 0
	}
	var numEnd int
	for numEnd < len(size) && (size[numEnd] >= '0' && size[numEnd] <= '9' || size[numEnd] == '.') {
		numEnd++
	}
	value, err := strconv.ParseFloat(size[:numEnd], 64)
	if err != nil {
		return 0
	}
	unit := size[numEnd:]
	switch unit {
	case "g", "G", "Gi", "gi", "gb", "GB":
		return int(value * 1024)
	case "k", "K", "Ki", "ki", "kb", "KB":
		return int(value / 1024)
	case "":
		return int(value / (1024 * 1024))
	default: // m, M, Mi, mi, mb, MB, or unrecognized — treat as megabytes
		return int(value)
	}
}

func (s *Server) handleGetShip(w http.ResponseWriter, r *http.Request) {
	ship, err := s.core.Store.GetShip(r.PathValue("id"))
	if err != nil {
		writeError(w, harborerr.ErrNotFound)
		return
	}
	view, err := s.viewForShip(ship)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleDeleteShip soft-stops a Ship: tells the driver to stop the
// container but preserves the row and on-disk data for later restore.
func (s *Server) handleDeleteShip(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ship, err := s.core.Store.GetShip(id)
	if err != nil {
		writeError(w, harborerr.ErrNotFound)
		return
	}
	if ship.Status == types.ShipStopped {
		writeError(w, harborerr.ErrNotFound)
		return
	}

	s.core.Scheduler.Cancel(id)
	if ship.ContainerID != "" {
		if err := s.core.Driver.StopShipContainer(r.Context(), ship.ContainerID); err != nil {
			writeError(w, err)
			return
		}
	}

	ship.Status = types.ShipStopped
	ship.ContainerID = ""
	ship.IPAddress = ""
	ship.UpdatedAt = time.Now().UTC()
	if err := s.core.Store.UpdateShip(ship); err != nil {
		writeError(w, err)
		return
	}

	now := time.Now().UTC()
	bindings, _ := s.core.Store.ListBindingsForShip(id)
	for _, b := range bindings {
		if b.ExpiresAt.After(now) {
			b.ExpiresAt = now
			_ = s.core.Store.UpdateBinding(b)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteShipPermanent destroys a Ship and its backing data for
// good. Unlike the soft delete above, this is the only path allowed to
// call Driver.DeleteShipData.
func (s *Server) handleDeleteShipPermanent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ship, err := s.core.Store.GetShip(id)
	if err != nil {
		writeError(w, harborerr.ErrNotFound)
		return
	}

	s.core.Scheduler.Cancel(id)
	if ship.ContainerID != "" {
		_ = s.core.Driver.StopShipContainer(r.Context(), ship.ContainerID)
	}
	if err := s.core.Driver.DeleteShipData(r.Context(), id); err != nil {
		log.WithComponent("api").Error().Err(err).Str("ship_id", id).Msg("deleting ship data during permanent delete")
	}
	if err := s.core.Store.DeleteBindingsForShip(id); err != nil {
		writeError(w, err)
		return
	}
	if err := s.core.Store.DeleteShip(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExtendShipTTL(w http.ResponseWriter, r *http.Request) {
	var body extendTTLRequest
	if err := decodeStrict(r, &body); err != nil || body.TTL <= 0 {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "ttl must be > 0"})
		return
	}

	id := r.PathValue("id")
	ship, err := s.core.Store.GetShip(id)
	if err != nil {
		writeError(w, harborerr.ErrNotFound)
		return
	}

	bindings, err := s.core.Store.ListBindingsForShip(id)
	if err != nil {
		writeError(w, err)
		return
	}
	now := time.Now().UTC()
	for _, b := range bindings {
		if b.ExpiresAt.After(now) {
			b.ExpiresAt = b.ExpiresAt.Add(time.Duration(body.TTL) * time.Second)
			if err := s.core.Store.UpdateBinding(b); err != nil {
				writeError(w, err)
				return
			}
		}
	}
	if err := s.core.Scheduler.Schedule(id); err != nil {
		writeError(w, err)
		return
	}

	view, err := s.viewForShip(ship)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleStartShip restores a Stopped Ship directly, without going
// through the full resolver ladder (the caller already knows which Ship
// it wants — this is the dashboard's explicit "start" action).
func (s *Server) handleStartShip(w http.ResponseWriter, r *http.Request) {
	var body extendTTLRequest
	if err := decodeStrict(r, &body); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}
	ttl := body.TTL
	if ttl <= 0 {
		ttl = s.core.Config.DefaultShipTTL
	}

	id := r.PathValue("id")
	ship, err := s.core.Store.GetShip(id)
	if err != nil {
		writeError(w, harborerr.ErrNotFound)
		return
	}
	if ship.Status != types.ShipStopped {
		writeError(w, harborerr.ErrShipNotRunning)
		return
	}

	sessionID := r.Header.Get(sessionIDHeader)
	if sessionID == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "missing " + sessionIDHeader + " header"})
		return
	}

	req := resolver.Request{SessionID: sessionID, RequestedTTL: ttl, Spec: ship.Spec}
	resolved, err := s.core.Resolver.Resolve(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := s.viewForShip(resolved)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleExec(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionIDHeader)
	if sessionID == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "missing " + sessionIDHeader + " header"})
		return
	}

	var body execRequest
	if err := decodeStrict(r, &body); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	result, err := s.core.Proxy.Exec(r.Context(), r.PathValue("id"), sessionID, body.Type, body.Payload)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := execResponse{Success: result.Success, Error: result.Error}
	if result.Success {
		resp.Data = result.Data
	}
	if result.ExecutionRecord != nil {
		resp.ExecutionID = result.ExecutionRecord.ID
	}
	if !result.Success {
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleShipLogs(w http.ResponseWriter, r *http.Request) {
	ship, err := s.core.Store.GetShip(r.PathValue("id"))
	if err != nil {
		writeError(w, harborerr.ErrNotFound)
		return
	}
	if ship.ContainerID == "" {
		writeJSON(w, http.StatusOK, logsResponse{Logs: ""})
		return
	}

	rc, err := s.core.Driver.GetContainerLogs(r.Context(), ship.ContainerID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logsResponse{Logs: string(data)})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionIDHeader)
	if sessionID == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "missing " + sessionIDHeader + " header"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.core.Config.MaxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, harborerr.ErrUploadTooLarge)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "missing file part"})
		return
	}
	defer file.Close()

	destPath := r.FormValue("file_path")
	if destPath == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "missing file_path"})
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.core.Proxy.Upload(r.Context(), r.PathValue("id"), sessionID, destPath, content); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{Success: true, Path: destPath})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionIDHeader)
	if sessionID == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "missing " + sessionIDHeader + " header"})
		return
	}

	filePath := r.URL.Query().Get("file_path")
	if filePath == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "missing file_path"})
		return
	}

	data, err := s.core.Proxy.Download(r.Context(), r.PathValue("id"), sessionID, filePath)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleTerminal(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	cols, _ := strconv.Atoi(query.Get("cols"))
	rows, _ := strconv.Atoi(query.Get("rows"))
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}

	err := s.core.Proxy.ServeTerminal(w, r, query.Get("token"), r.PathValue("id"), query.Get("session_id"), cols, rows)
	if err == nil {
		return
	}

	log.WithComponent("api").Warn().Err(err).Msg("terminal proxy failed")

	// A *proxy.TerminalError means the request was rejected before the
	// websocket upgrade happened, so an ordinary HTTP status is still
	// possible; anything else means the upgrade itself (or the relay)
	// failed and the connection is already gone.
	var terminalErr *proxy.TerminalError
	if errors.As(err, &terminalErr) {
		status := http.StatusBadGateway
		switch terminalErr.Code {
		case proxy.CloseUnauthorized:
			status = http.StatusUnauthorized
		case proxy.CloseAccessDenied:
			status = http.StatusForbidden
		case proxy.CloseShipNotFound:
			status = http.StatusNotFound
		}
		http.Error(w, terminalErr.Error(), status)
	}
}
