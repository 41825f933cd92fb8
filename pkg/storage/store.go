package storage

import (
	"github.com/harborctl/harbor/pkg/types"
)

// Store defines the persistence interface for Harbor's control-plane
// state. The bbolt-backed implementation lives in boltdb.go.
type Store interface {
	// Ships
	CreateShip(ship *types.Ship) error
	GetShip(id string) (*types.Ship, error)
	ListShips() ([]*types.Ship, error)
	ListActiveShips() ([]*types.Ship, error) // status != stopped
	UpdateShip(ship *types.Ship) error
	DeleteShip(id string) error
	CountRunningShips() (int, error)

	// Bindings
	CreateBinding(binding *types.Binding) error
	GetBinding(id string) (*types.Binding, error)
	ListBindings() ([]*types.Binding, error)
	ListBindingsForShip(shipID string) ([]*types.Binding, error)
	ListBindingsForSession(sessionID string) ([]*types.Binding, error)
	GetActiveBindingForSession(sessionID string) (*types.Binding, error)
	UpdateBinding(binding *types.Binding) error
	DeleteBinding(id string) error
	DeleteBindingsForShip(shipID string) error
	DeleteBindingsForSession(sessionID string) error

	// Warm pool: a Running Ship with no active binding, matching the
	// spec originally requested for a new session.
	FindWarmShip(spec types.ShipSpec) (*types.Ship, error)
	FindStoppedShipForSession(sessionID string) (*types.Ship, error)

	// Execution records
	CreateExecutionRecord(rec *types.ExecutionRecord) error
	GetExecutionRecord(id string) (*types.ExecutionRecord, error)
	UpdateExecutionRecord(rec *types.ExecutionRecord) error
	ListExecutionRecordsForSession(sessionID string) ([]*types.ExecutionRecord, error)

	// Utility
	Close() error
}
