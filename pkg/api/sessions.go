package api

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/harborctl/harbor/pkg/harborerr"
)

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	bindings, err := s.core.Store.ListBindings()
	if err != nil {
		writeError(w, err)
		return
	}

	latest := map[string]int{}
	for i, b := range bindings {
		if prev, ok := latest[b.SessionID]; !ok || b.CreatedAt.After(bindings[prev].CreatedAt) {
			latest[b.SessionID] = i
		}
	}

	views := make([]SessionView, 0, len(latest))
	for _, i := range latest {
		views = append(views, newSessionView(bindings[i]))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].CreatedAt.Before(views[j].CreatedAt) })
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.latestSessionView(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) latestSessionView(sessionID string) (SessionView, error) {
	bindings, err := s.core.Store.ListBindingsForSession(sessionID)
	if err != nil {
		return SessionView{}, err
	}
	if len(bindings) == 0 {
		return SessionView{}, harborerr.ErrNotFound
	}
	latest := bindings[0]
	for _, b := range bindings[1:] {
		if b.CreatedAt.After(latest.CreatedAt) {
			latest = b
		}
	}
	return newSessionView(latest), nil
}

func (s *Server) handleListShipSessions(w http.ResponseWriter, r *http.Request) {
	bindings, err := s.core.Store.ListBindingsForShip(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]SessionView, 0, len(bindings))
	for _, b := range bindings {
		views = append(views, newSessionView(b))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].CreatedAt.Before(views[j].CreatedAt) })
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleExtendSessionTTL(w http.ResponseWriter, r *http.Request) {
	var body extendTTLRequest
	if err := decodeStrict(r, &body); err != nil || body.TTL <= 0 {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "ttl must be > 0"})
		return
	}

	sessionID := r.PathValue("id")
	binding, err := s.core.Store.GetActiveBindingForSession(sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if binding == nil {
		writeError(w, harborerr.ErrNotFound)
		return
	}

	binding.ExpiresAt = binding.ExpiresAt.Add(time.Duration(body.TTL) * time.Second)
	binding.InitialTTL = body.TTL
	if err := s.core.Store.UpdateBinding(binding); err != nil {
		writeError(w, err)
		return
	}
	if err := s.core.Scheduler.Schedule(binding.ShipID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(binding))
}

// handleDeleteSession terminates a session's current binding. Unlike
// deleting a Ship, this never touches the container: another session
// may still be using it, or it may come back via the warm pool.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	binding, err := s.core.Store.GetActiveBindingForSession(sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if binding == nil {
		writeError(w, harborerr.ErrNotFound)
		return
	}

	binding.ExpiresAt = time.Now().UTC()
	if err := s.core.Store.UpdateBinding(binding); err != nil {
		writeError(w, err)
		return
	}
	if err := s.core.Scheduler.Schedule(binding.ShipID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// historyFilter mirrors the query parameters §6 lists for session history.
type historyFilter struct {
	ExecType   string
	SuccessOnly bool
	Limit      int
	Offset     int
	Tags       []string
	HasNotes   bool
	HasDescription bool
}

func parseHistoryFilter(r *http.Request) historyFilter {
	q := r.URL.Query()
	f := historyFilter{
		ExecType:       q.Get("exec_type"),
		SuccessOnly:    q.Get("success_only") == "true",
		HasNotes:       q.Get("has_notes") == "true",
		HasDescription: q.Get("has_description") == "true",
		Limit:          100,
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		f.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		f.Offset = v
	}
	if tags := q.Get("tags"); tags != "" {
		f.Tags = strings.Split(tags, ",")
	}
	return f
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	records, err := s.core.Store.ListExecutionRecordsForSession(sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	filter := parseHistoryFilter(r)
	matched := make([]ExecutionRecordView, 0, len(records))
	for _, rec := range records {
		if filter.ExecType != "" && string(rec.Kind) != filter.ExecType {
			continue
		}
		if filter.SuccessOnly && !rec.Success {
			continue
		}
		if filter.HasNotes && rec.Notes == "" {
			continue
		}
		if filter.HasDescription && rec.Description == "" {
			continue
		}
		if len(filter.Tags) > 0 && !hasAnyTag(rec.Tags, filter.Tags) {
			continue
		}
		matched = append(matched, newExecutionRecordView(rec))
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := len(matched)
	matched = paginate(matched, filter.Offset, filter.Limit)

	writeJSON(w, http.StatusOK, historyResponse{Entries: matched, Total: total})
}

func hasAnyTag(recordTags, wanted []string) bool {
	for _, w := range wanted {
		for _, t := range recordTags {
			if t == w {
				return true
			}
		}
	}
	return false
}

func paginate(entries []ExecutionRecordView, offset, limit int) []ExecutionRecordView {
	if offset >= len(entries) {
		return []ExecutionRecordView{}
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}
	return entries[offset:end]
}

func (s *Server) handleSessionHistoryLast(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	execType := r.URL.Query().Get("exec_type")

	records, err := s.core.Store.ListExecutionRecordsForSession(sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	var last *ExecutionRecordView
	for _, rec := range records {
		if execType != "" && string(rec.Kind) != execType {
			continue
		}
		view := newExecutionRecordView(rec)
		if last == nil || view.CreatedAt.After(last.CreatedAt) {
			last = &view
		}
	}
	if last == nil {
		writeError(w, harborerr.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, last)
}

func (s *Server) handleSessionHistoryEntry(w http.ResponseWriter, r *http.Request) {
	rec, err := s.core.Store.GetExecutionRecord(r.PathValue("exec_id"))
	if err != nil || rec.SessionID != r.PathValue("id") {
		writeError(w, harborerr.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newExecutionRecordView(rec))
}

func (s *Server) handleAnnotateHistoryEntry(w http.ResponseWriter, r *http.Request) {
	rec, err := s.core.Store.GetExecutionRecord(r.PathValue("exec_id"))
	if err != nil || rec.SessionID != r.PathValue("id") {
		writeError(w, harborerr.ErrNotFound)
		return
	}

	var body annotateRequest
	if err := decodeStrict(r, &body); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}
	if body.Description != nil {
		rec.Description = *body.Description
	}
	if body.Tags != nil {
		rec.Tags = *body.Tags
	}
	if body.Notes != nil {
		rec.Notes = *body.Notes
	}

	if err := s.core.Store.UpdateExecutionRecord(rec); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newExecutionRecordView(rec))
}
