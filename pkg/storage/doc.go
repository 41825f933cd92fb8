/*
Package storage provides BoltDB-backed state persistence for Harbor's
control-plane data: Ships, session Bindings, and ExecutionRecords.

# Architecture

Harbor uses BoltDB (bbolt) for embedded, transactional storage with zero
external services to run:

	┌──────────────────── BOLTDB STORAGE ──────────────────────┐
	│  BoltStore                                                │
	│  - File: <dataDir>/harbor.db                              │
	│  - Format: B+tree with MVCC                               │
	│  - Transactions: ACID with fsync                          │
	│                                                            │
	│  Buckets (one per entity, row key = entity ID):           │
	│    ships              Ship                                │
	│    bindings           Binding                              │
	│    execution_records  ExecutionRecord                     │
	└────────────────────────────────────────────────────────────┘

# CRUD and composite queries

Per-entity Create/Get/List/Update/Delete follow the upsert pattern: Update
is implemented as Create (put overwrites), and Delete is idempotent (no
error on a missing key).

Beyond plain CRUD, the Store interface exposes the composite queries the
Resolver and Reconciler need, implemented as a full bucket scan filtered
in memory (datasets are small — tens to low hundreds of ships per
process, not worth a secondary index):

  - GetActiveBindingForSession: the session's current non-expired binding
  - FindWarmShip: a Running ship matching a spec with no active binding
  - FindStoppedShipForSession: the most recently used Stopped ship for a
    session, so its data directory can be restored instead of recreated
  - CountRunningShips: admission-control check against the ship cap

# Transaction model

Read transactions use db.View (concurrent, MVCC snapshot); writes use
db.Update (serialized, atomic, fsync on commit). Each plain CRUD method
wraps exactly one bolt transaction. FindWarmShip and
FindStoppedShipForSession run one read transaction per lookup they
chain, and DeleteBindingsForShip/DeleteBindingsForSession list in one
transaction and delete in another, so none of these four sees or
changes the store atomically as a whole.

# Data integrity

Schema evolution is additive-only: new fields use Go's zero-value
defaulting on unmarshal, so older rows remain readable. There is no
migration framework; a breaking change needs an explicit NewBoltStore
migration step, which this package does not yet have cause to add.

# See also

  - pkg/resolver for the binding decision ladder built on these queries
  - pkg/scheduler and pkg/reconciler, the other main callers
  - pkg/types for entity definitions
  - BoltDB documentation: https://github.com/etcd-io/bbolt
*/
package storage
