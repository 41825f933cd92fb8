package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/harborctl/harbor/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketShips            = []byte("ships")
	bucketBindings         = []byte("bindings")
	bucketExecutionRecords = []byte("execution_records")
)

// BoltStore implements Store using an embedded bbolt database, one
// bucket per entity, one JSON-marshaled row per key.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if needed) the Harbor database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "harbor.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketShips, bucketBindings, bucketExecutionRecords} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// --- Ships ---

func (s *BoltStore) CreateShip(ship *types.Ship) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketShips)
		data, err := json.Marshal(ship)
		if err != nil {
			return err
		}
		return b.Put([]byte(ship.ID), data)
	})
}

func (s *BoltStore) GetShip(id string) (*types.Ship, error) {
	var ship types.Ship
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketShips)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("ship not found: %s", id)
		}
		return json.Unmarshal(data, &ship)
	})
	if err != nil {
		return nil, err
	}
	return &ship, nil
}

func (s *BoltStore) ListShips() ([]*types.Ship, error) {
	var ships []*types.Ship
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketShips)
		return b.ForEach(func(k, v []byte) error {
			var ship types.Ship
			if err := json.Unmarshal(v, &ship); err != nil {
				return err
			}
			ships = append(ships, &ship)
			return nil
		})
	})
	return ships, err
}

func (s *BoltStore) ListActiveShips() ([]*types.Ship, error) {
	all, err := s.ListShips()
	if err != nil {
		return nil, err
	}
	var active []*types.Ship
	for _, ship := range all {
		if ship.Status != types.ShipStopped {
			active = append(active, ship)
		}
	}
	return active, nil
}

func (s *BoltStore) UpdateShip(ship *types.Ship) error {
	return s.CreateShip(ship) // upsert, matching the teacher's per-entity idiom
}

func (s *BoltStore) DeleteShip(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketShips)
		return b.Delete([]byte(id))
	})
}

func (s *BoltStore) CountRunningShips() (int, error) {
	all, err := s.ListShips()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, ship := range all {
		if ship.Status == types.ShipRunning || ship.Status == types.ShipCreating {
			count++
		}
	}
	return count, nil
}

// --- Bindings ---

func (s *BoltStore) CreateBinding(binding *types.Binding) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBindings)
		data, err := json.Marshal(binding)
		if err != nil {
			return err
		}
		return b.Put([]byte(binding.ID), data)
	})
}

func (s *BoltStore) GetBinding(id string) (*types.Binding, error) {
	var binding types.Binding
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBindings)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("binding not found: %s", id)
		}
		return json.Unmarshal(data, &binding)
	})
	if err != nil {
		return nil, err
	}
	return &binding, nil
}

func (s *BoltStore) listAllBindings() ([]*types.Binding, error) {
	var bindings []*types.Binding
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBindings)
		return b.ForEach(func(k, v []byte) error {
			var binding types.Binding
			if err := json.Unmarshal(v, &binding); err != nil {
				return err
			}
			bindings = append(bindings, &binding)
			return nil
		})
	})
	return bindings, err
}

func (s *BoltStore) ListBindings() ([]*types.Binding, error) {
	return s.listAllBindings()
}

func (s *BoltStore) ListBindingsForShip(shipID string) ([]*types.Binding, error) {
	all, err := s.listAllBindings()
	if err != nil {
		return nil, err
	}
	var filtered []*types.Binding
	for _, binding := range all {
		if binding.ShipID == shipID {
			filtered = append(filtered, binding)
		}
	}
	return filtered, nil
}

func (s *BoltStore) ListBindingsForSession(sessionID string) ([]*types.Binding, error) {
	all, err := s.listAllBindings()
	if err != nil {
		return nil, err
	}
	var filtered []*types.Binding
	for _, binding := range all {
		if binding.SessionID == sessionID {
			filtered = append(filtered, binding)
		}
	}
	return filtered, nil
}

// GetActiveBindingForSession returns the session's current (non-expired)
// binding, if any. A session holds at most one at a time.
func (s *BoltStore) GetActiveBindingForSession(sessionID string) (*types.Binding, error) {
	all, err := s.listAllBindings()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for _, binding := range all {
		if binding.SessionID == sessionID && binding.ExpiresAt.After(now) {
			return binding, nil
		}
	}
	return nil, nil
}

func (s *BoltStore) UpdateBinding(binding *types.Binding) error {
	return s.CreateBinding(binding)
}

func (s *BoltStore) DeleteBinding(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBindings)
		return b.Delete([]byte(id))
	})
}

func (s *BoltStore) DeleteBindingsForShip(shipID string) error {
	bindings, err := s.ListBindingsForShip(shipID)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBindings)
		for _, binding := range bindings {
			if err := b.Delete([]byte(binding.ID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// FindWarmShip returns a Running ship with no active binding whose spec
// matches exactly, for warm-pool reuse by the Resolver. It does not
// verify the backing container still exists; callers must re-verify
// before committing a binding to it (see pkg/resolver).
func (s *BoltStore) FindWarmShip(spec types.ShipSpec) (*types.Ship, error) {
	ships, err := s.ListShips()
	if err != nil {
		return nil, err
	}
	for _, ship := range ships {
		if ship.Status != types.ShipRunning {
			continue
		}
		if ship.Spec != spec {
			continue
		}
		active, err := s.hasActiveBinding(ship.ID)
		if err != nil {
			return nil, err
		}
		if !active {
			return ship, nil
		}
	}
	return nil, nil
}

// FindStoppedShipForSession returns the most recent Stopped ship that was
// previously bound to this session, so its data directory can be restored
// rather than recreated from scratch.
func (s *BoltStore) FindStoppedShipForSession(sessionID string) (*types.Ship, error) {
	bindings, err := s.listAllBindings()
	if err != nil {
		return nil, err
	}
	var best *types.Ship
	for _, binding := range bindings {
		if binding.SessionID != sessionID {
			continue
		}
		ship, err := s.GetShip(binding.ShipID)
		if err != nil {
			continue
		}
		if ship.Status != types.ShipStopped {
			continue
		}
		if best == nil || ship.UpdatedAt.After(best.UpdatedAt) {
			best = ship
		}
	}
	return best, nil
}

func (s *BoltStore) DeleteBindingsForSession(sessionID string) error {
	bindings, err := s.ListBindingsForSession(sessionID)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBindings)
		for _, binding := range bindings {
			if err := b.Delete([]byte(binding.ID)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) hasActiveBinding(shipID string) (bool, error) {
	bindings, err := s.ListBindingsForShip(shipID)
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()
	for _, binding := range bindings {
		if binding.ExpiresAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}

// --- Execution records ---

func (s *BoltStore) CreateExecutionRecord(rec *types.ExecutionRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketExecutionRecords)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.ID), data)
	})
}

func (s *BoltStore) GetExecutionRecord(id string) (*types.ExecutionRecord, error) {
	var rec types.ExecutionRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketExecutionRecords)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("execution record not found: %s", id)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *BoltStore) UpdateExecutionRecord(rec *types.ExecutionRecord) error {
	return s.CreateExecutionRecord(rec)
}

func (s *BoltStore) ListExecutionRecordsForSession(sessionID string) ([]*types.ExecutionRecord, error) {
	var records []*types.ExecutionRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketExecutionRecords)
		return b.ForEach(func(k, v []byte) error {
			var rec types.ExecutionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.SessionID == sessionID {
				records = append(records, &rec)
			}
			return nil
		})
	})
	return records, err
}
