// Package model defines the core memory data types.
package model

import "time"

// RecordType determines how a new write interacts with existing records.
type RecordType string

const (
	TypeFact    RecordType = "fact"    // stable information, superseded on change
	TypeState   RecordType = "state"   // current conditions, latest wins
	TypeEpisode RecordType = "episode" // past events, append only
	TypePolicy  RecordType = "policy"  // preferences and rules, superseded on change
)

// Valid reports whether t is a known record type.
func (t RecordType) Valid() bool {
	switch t {
	case TypeFact, TypeState, TypeEpisode, TypePolicy:
		return true
	}
	return false
}

// Supersedable reports whether records of this type participate in
// semantic deduplication. Episodes are append-only and never superseded.
func (t RecordType) Supersedable() bool {
	switch t {
	case TypeFact, TypeState, TypePolicy:
		return true
	case TypeEpisode:
		return false
	}
	return false
}

// Decays reports whether retrieval scores for this type lose weight
// with age. Facts and policies do not expire by time alone.
func (t RecordType) Decays() bool {
	switch t {
	case TypeState, TypeEpisode:
		return true
	}
	return false
}

// Scope is the visibility partition of a record.
type Scope string

const (
	ScopeGlobal Scope = "global" // visible to all agents
	ScopeAgent  Scope = "agent"  // visible to one named agent
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeGlobal || s == ScopeAgent
}

// InputChannel identifies where a record entered the system.
type InputChannel string

const (
	ChannelChat   InputChannel = "chat"
	ChannelManual InputChannel = "manual"
	ChannelAPI    InputChannel = "api"
	ChannelImport InputChannel = "import"
)

// Record is the unit of memory.
type Record struct {
	ID           string       `json:"id"`
	OwnerID      string       `json:"owner_id"`
	Content      string       `json:"content"`
	ContentHash  string       `json:"content_hash"`
	Embedding    []float32    `json:"-"`
	Type         RecordType   `json:"record_type"`
	Tags         []string     `json:"tags,omitempty"`
	Scope        Scope        `json:"scope"`
	AgentID      string       `json:"agent_id,omitempty"`
	Importance   int          `json:"importance"`
	Confidence   float64      `json:"confidence"`
	Source       string       `json:"source,omitempty"`
	InputChannel InputChannel `json:"input_channel"`
	ValidFrom    time.Time    `json:"valid_from"`
	ValidTo      *time.Time   `json:"valid_to,omitempty"`
	SupersedesID string       `json:"supersedes_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Active reports whether the record is the current version.
func (r *Record) Active() bool { return r.ValidTo == nil }

// ClampImportance bounds importance to [1,5]. Out-of-range caller
// values are clamped, never rejected.
func ClampImportance(n int) int {
	if n < 1 {
		return 1
	}
	if n > 5 {
		return 5
	}
	return n
}

// ClampConfidence bounds confidence to [0.0,1.0].
func ClampConfidence(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// AuditAction is the kind of change an audit entry records.
type AuditAction string

const (
	AuditCreate AuditAction = "create"
	AuditUpdate AuditAction = "update"
	AuditDelete AuditAction = "delete"
)

// ActorType identifies who performed an audited action.
type ActorType string

const (
	ActorSystem ActorType = "system"
	ActorUser   ActorType = "user"
	ActorAdmin  ActorType = "admin"
)

// AuditDiff captures the changed fields of an audited mutation.
type AuditDiff struct {
	Before map[string]any `json:"before,omitempty"`
	After  map[string]any `json:"after,omitempty"`
}

// AuditEntry is an append-only log row describing one record mutation.
type AuditEntry struct {
	ID        string      `json:"id"`
	RecordID  string      `json:"memory_id"`
	Action    AuditAction `json:"action"`
	Actor     ActorType   `json:"actor_type"`
	Diff      *AuditDiff  `json:"diff,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
