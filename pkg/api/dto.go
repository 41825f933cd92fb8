package api

import (
	"encoding/json"
	"time"

	"github.com/harborctl/harbor/pkg/types"
)

// ShipView is the JSON shape returned for a Ship, with expires_at
// computed from its bindings rather than stored on the row itself.
type ShipView struct {
	ID          string         `json:"id"`
	Status      types.ShipStatus `json:"status"`
	ContainerID string         `json:"container_id,omitempty"`
	Address     string         `json:"address,omitempty"`
	Spec        types.ShipSpec `json:"spec"`
	TTL         int            `json:"ttl"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
}

func newShipView(ship *types.Ship, expiresAt *time.Time) ShipView {
	return ShipView{
		ID:          ship.ID,
		Status:      ship.Status,
		ContainerID: ship.ContainerID,
		Address:     ship.IPAddress,
		Spec:        ship.Spec,
		TTL:         ship.TTL,
		CreatedAt:   ship.CreatedAt,
		UpdatedAt:   ship.UpdatedAt,
		ExpiresAt:   expiresAt,
	}
}

// SessionView is the JSON shape returned for a session, derived from
// its most recent Binding (a session has no row of its own — see
// pkg/storage's Binding table).
type SessionView struct {
	SessionID    string    `json:"session_id"`
	ShipID       string    `json:"ship_id"`
	BindingID    string    `json:"binding_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
	IsActive     bool      `json:"is_active"`
}

func newSessionView(b *types.Binding) SessionView {
	return SessionView{
		SessionID:    b.SessionID,
		ShipID:       b.ShipID,
		BindingID:    b.ID,
		CreatedAt:    b.CreatedAt,
		LastActivity: b.LastActivity,
		ExpiresAt:    b.ExpiresAt,
		IsActive:     b.ExpiresAt.After(time.Now().UTC()),
	}
}

// ExecutionRecordView is the JSON shape returned for a history entry.
type ExecutionRecordView struct {
	ID              string              `json:"id"`
	SessionID       string              `json:"session_id"`
	ShipID          string              `json:"ship_id"`
	Kind            types.ExecutionKind `json:"kind"`
	Command         string              `json:"command"`
	Success         bool                `json:"success"`
	Error           string              `json:"error,omitempty"`
	ExecutionTimeMS int64               `json:"execution_time_ms"`
	CreatedAt       time.Time           `json:"created_at"`
	Description     string              `json:"description,omitempty"`
	Tags            []string            `json:"tags,omitempty"`
	Notes           string              `json:"notes,omitempty"`
}

func newExecutionRecordView(rec *types.ExecutionRecord) ExecutionRecordView {
	return ExecutionRecordView{
		ID:              rec.ID,
		SessionID:       rec.SessionID,
		ShipID:          rec.ShipID,
		Kind:            rec.Kind,
		Command:         rec.Command,
		Success:         rec.Success,
		Error:           rec.Error,
		ExecutionTimeMS: rec.ExecutionTimeMS,
		CreatedAt:       rec.CreatedAt,
		Description:     rec.Description,
		Tags:            rec.Tags,
		Notes:           rec.Notes,
	}
}

// createShipRequest is the body of POST /ship.
type createShipRequest struct {
	TTL         int             `json:"ttl"`
	Spec        *types.ShipSpec `json:"spec,omitempty"`
	ForceCreate bool            `json:"force_create,omitempty"`
}

type extendTTLRequest struct {
	TTL int `json:"ttl"`
}

type execRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type execResponse struct {
	Success     bool            `json:"success"`
	Data        json.RawMessage `json:"data,omitempty"`
	Error       string          `json:"error,omitempty"`
	ExecutionID string          `json:"execution_id,omitempty"`
}

type uploadResponse struct {
	Success bool   `json:"success"`
	Path    string `json:"path"`
}

type logsResponse struct {
	Logs string `json:"logs"`
}

type statResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

type shipCounts struct {
	Total    int `json:"total"`
	Running  int `json:"running"`
	Stopped  int `json:"stopped"`
	Creating int `json:"creating"`
}

type sessionCounts struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

type overviewResponse struct {
	statResponse
	Ships    shipCounts    `json:"ships"`
	Sessions sessionCounts `json:"sessions"`
}

type historyResponse struct {
	Entries []ExecutionRecordView `json:"entries"`
	Total   int                   `json:"total"`
}

type annotateRequest struct {
	Description *string   `json:"description,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	Notes       *string   `json:"notes,omitempty"`
}
