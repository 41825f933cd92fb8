package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/harborctl/harbor/pkg/harborerr"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps err onto the HTTP status the taxonomy in pkg/harborerr
// assigns it and writes a JSON error body. Unrecognized errors are
// surfaced as 500 without leaking internal detail to the client.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, harborerr.ErrNotFound):
		status, message = http.StatusNotFound, "not found"
	case errors.Is(err, harborerr.ErrShipNotRunning):
		status, message = http.StatusConflict, "ship is not running"
	case errors.Is(err, harborerr.ErrSessionNotBound):
		status, message = http.StatusForbidden, "session is not bound to this ship"
	case errors.Is(err, harborerr.ErrUnauthorized):
		status, message = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, harborerr.ErrUploadTooLarge):
		status, message = http.StatusRequestEntityTooLarge, "upload exceeds maximum size"
	case errors.Is(err, harborerr.ErrUpstreamForward):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, harborerr.ErrHealthTimeout):
		status, message = http.StatusRequestTimeout, "ship health probe timed out"
	case errors.Is(err, harborerr.ErrAtCapacity), errors.Is(err, harborerr.ErrCapacityWaitTimeout):
		status, message = http.StatusServiceUnavailable, "ship capacity exhausted"
	case errors.Is(err, context.DeadlineExceeded):
		status, message = http.StatusRequestTimeout, "request timed out"
	}

	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeStrict JSON-decodes r's body into dst, rejecting unknown
// fields — the spec's "body extra fields rejected" rule for POST /ship.
func decodeStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
