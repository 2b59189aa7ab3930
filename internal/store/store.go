// Package store provides the versioned record storage interface and its
// SQLite implementation.
package store

import (
	"context"

	"github.com/memcore/memcore/internal/embedding"
	"github.com/memcore/memcore/internal/model"
)

// UpdateParams holds a partial update of a record. Nil pointer fields
// are left unchanged. Record type, scope, and supersedes links are
// immutable and have no corresponding field.
type UpdateParams struct {
	ID      string
	OwnerID string

	Content    *string
	Tags       []string // nil leaves tags unchanged
	Importance *int
	Confidence *float64

	// Set by the engine when Content changes.
	ContentHash string
	Embedding   embedding.Vector
}

// SearchParams holds filters for listing candidate records. Every
// search is scoped to OwnerID; there is no way to read across owners.
type SearchParams struct {
	OwnerID       string
	Scope         model.Scope
	AgentID       string
	IncludeGlobal bool
	Tags          []string
	Type          model.RecordType
	Limit         int
}

// Store is the persistence boundary of the versioned record engine.
type Store interface {
	// Insert writes a fresh record plus its create audit entry. The
	// record's id and timestamps are assigned here.
	Insert(ctx context.Context, rec *model.Record, actor model.ActorType) error

	// FindActiveByHash returns the single active record matching the
	// normalized content hash within the owner/scope/agent partition,
	// or memerr.ErrNotFound.
	FindActiveByHash(ctx context.Context, ownerID string, scope model.Scope, agentID, hash string) (*model.Record, error)

	// NearestActive returns the single nearest active record by cosine
	// similarity within the owner/scope/agent/type partition, together
	// with the similarity, or memerr.ErrNotFound when the partition is
	// empty. Ties resolve to whichever row scans first.
	NearestActive(ctx context.Context, ownerID string, scope model.Scope, agentID string, typ model.RecordType, vec embedding.Vector) (*model.Record, float64, error)

	// Supersede atomically invalidates the record oldID and inserts
	// successor in its place, writing audit entries for both. Returns
	// memerr.ErrConflict without any write if oldID is no longer
	// active, so a losing concurrent writer can retry its lookup.
	Supersede(ctx context.Context, oldID string, successor *model.Record) error

	// Get returns a record by id within the caller's owner scope, or
	// memerr.ErrNotFound.
	Get(ctx context.Context, id, ownerID string) (*model.Record, error)

	// Update applies a partial update and writes an audit diff limited
	// to the changed fields. Returns memerr.ErrNotFound for unknown or
	// foreign ids.
	Update(ctx context.Context, p UpdateParams) (*model.Record, error)

	// Delete soft-deletes (sets valid_to) or hard-deletes a record.
	// Returns false when the record is missing or already inactive.
	Delete(ctx context.Context, id, ownerID string, hard bool) (bool, error)

	// Search lists active records matching the filters, most recent
	// first.
	Search(ctx context.Context, p SearchParams) ([]model.Record, error)

	// AuditTrail returns the append-only audit entries for a record,
	// oldest first.
	AuditTrail(ctx context.Context, recordID string) ([]model.AuditEntry, error)

	// Close closes the store.
	Close() error
}
