// Package memory implements the versioned record engine: deduplication,
// supersede chains, and ranked retrieval over the backing store.
package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/memcore/memcore/internal/config"
	"github.com/memcore/memcore/internal/contenthash"
	"github.com/memcore/memcore/internal/embedding"
	"github.com/memcore/memcore/internal/extract"
	"github.com/memcore/memcore/internal/memerr"
	"github.com/memcore/memcore/internal/model"
	"github.com/memcore/memcore/internal/rank"
	"github.com/memcore/memcore/internal/store"
)

// Action is the outcome of a create call.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionSkipped Action = "skipped"
)

// CreateParams holds a write request.
type CreateParams struct {
	OwnerID      string
	Content      string
	Type         model.RecordType
	Tags         []string
	Scope        model.Scope
	AgentID      string
	Importance   int
	Confidence   float64
	Source       string
	InputChannel model.InputChannel
	SkipDedup    bool
}

// CreateResult reports what a create call did.
type CreateResult struct {
	Action       Action `json:"action"`
	RecordID     string `json:"memory_id"`
	SupersededID string `json:"superseded_id,omitempty"`
	Message      string `json:"message"`
}

// UpdateParams holds a partial update. Nil fields are unchanged.
type UpdateParams struct {
	ID         string
	OwnerID    string
	Content    *string
	Tags       []string
	Importance *int
	Confidence *float64
}

// SearchParams holds a retrieval request.
type SearchParams struct {
	OwnerID       string
	Query         string
	Tags          []string
	Type          model.RecordType
	Scope         model.Scope
	AgentID       string
	IncludeGlobal bool
	Limit         int
}

// supersedeAttempts bounds the conflict-retry loop. Each retry re-runs
// the similarity lookup against the then-current active record.
const supersedeAttempts = 5

// Manager is the versioned record engine. All operations are scoped to
// the calling owner; cross-owner access is not expressible through it.
type Manager struct {
	store    store.Store
	embedder embedding.Embedder
	synth    extract.Synthesizer
	cfg      *config.Config
	log      *logrus.Entry
}

// NewManager wires the engine together.
func NewManager(st store.Store, emb embedding.Embedder, synth extract.Synthesizer, cfg *config.Config, log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.New()
	}
	return &Manager{
		store:    st,
		embedder: emb,
		synth:    synth,
		cfg:      cfg,
		log:      log.WithField("component", "memory"),
	}
}

func (m *Manager) embed(ctx context.Context, text string) (embedding.Vector, error) {
	if m.embedder == nil {
		return nil, memerr.Upstream("embedding", errors.New("no provider configured"))
	}
	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, memerr.Upstream("embedding", err)
	}
	return vec, nil
}

// Create writes a record, resolving exact and semantic duplicates.
//
// Exact duplicates (same normalized-content hash in the same
// owner/scope/agent partition) are skipped without a write. Semantic
// duplicates (nearest active neighbor of the same type at or above the
// similarity threshold) trigger the supersede protocol for fact, state,
// and policy records. Episodes always append.
func (m *Manager) Create(ctx context.Context, p CreateParams) (*CreateResult, error) {
	if err := validateWrite(&p); err != nil {
		return nil, err
	}

	hash := contenthash.Sum(p.Content)

	if !p.SkipDedup {
		existing, err := m.store.FindActiveByHash(ctx, p.OwnerID, p.Scope, p.AgentID, hash)
		if err == nil {
			m.log.WithFields(logrus.Fields{"owner_id": p.OwnerID, "memory_id": existing.ID}).
				Debug("duplicate content detected")
			return &CreateResult{
				Action:   ActionSkipped,
				RecordID: existing.ID,
				Message:  "Duplicate content detected",
			}, nil
		}
		if !errors.Is(err, memerr.ErrNotFound) {
			return nil, err
		}
	}

	vec, err := m.embed(ctx, p.Content)
	if err != nil {
		return nil, err
	}

	rec := &model.Record{
		OwnerID:      p.OwnerID,
		Content:      p.Content,
		ContentHash:  hash,
		Embedding:    vec,
		Type:         p.Type,
		Tags:         p.Tags,
		Scope:        p.Scope,
		AgentID:      p.AgentID,
		Importance:   p.Importance,
		Confidence:   p.Confidence,
		Source:       p.Source,
		InputChannel: p.InputChannel,
	}

	if !p.SkipDedup && p.Type.Supersedable() {
		res, err := m.trySupersede(ctx, &p, rec)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}

	if err := m.store.Insert(ctx, rec, model.ActorSystem); err != nil {
		return nil, err
	}
	m.log.WithFields(logrus.Fields{"owner_id": p.OwnerID, "memory_id": rec.ID, "record_type": p.Type}).
		Debug("memory created")
	return &CreateResult{
		Action:   ActionCreated,
		RecordID: rec.ID,
		Message:  "Memory created successfully",
	}, nil
}

// trySupersede runs the semantic-duplicate path. It returns a non-nil
// result when an existing record was superseded, and (nil, nil) when
// the caller should insert a fresh record instead. A lost race against
// a concurrent supersede of the same target retries as a fresh lookup.
func (m *Manager) trySupersede(ctx context.Context, p *CreateParams, rec *model.Record) (*CreateResult, error) {
	for attempt := 0; attempt < supersedeAttempts; attempt++ {
		match, sim, err := m.store.NearestActive(ctx, p.OwnerID, p.Scope, p.AgentID, p.Type, rec.Embedding)
		if errors.Is(err, memerr.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if sim < m.cfg.SimilarityThreshold {
			// Near but not a duplicate: insert as a sibling, never merge.
			return nil, nil
		}

		successor := *rec
		successor.Scope = match.Scope
		successor.AgentID = match.AgentID
		successor.Type = match.Type

		err = m.store.Supersede(ctx, match.ID, &successor)
		if errors.Is(err, memerr.ErrConflict) {
			m.log.WithFields(logrus.Fields{"owner_id": p.OwnerID, "target_id": match.ID, "attempt": attempt + 1}).
				Debug("supersede race lost, retrying lookup")
			continue
		}
		if err != nil {
			return nil, err
		}
		m.log.WithFields(logrus.Fields{"owner_id": p.OwnerID, "memory_id": successor.ID, "superseded_id": match.ID, "similarity": sim}).
			Debug("memory superseded")
		return &CreateResult{
			Action:       ActionUpdated,
			RecordID:     successor.ID,
			SupersededID: match.ID,
			Message:      fmt.Sprintf("Memory updated (supersedes %s)", match.ID),
		}, nil
	}
	// Persistent contention: fall back to a plain insert rather than
	// failing the write.
	return nil, nil
}

// Get returns one record within the caller's owner scope.
func (m *Manager) Get(ctx context.Context, id, ownerID string) (*model.Record, error) {
	if ownerID == "" {
		return nil, memerr.Validation("owner_id", "required")
	}
	return m.store.Get(ctx, id, ownerID)
}

// Update applies a partial update. Content changes re-hash and re-embed;
// record type, scope, and supersede links are immutable.
func (m *Manager) Update(ctx context.Context, p UpdateParams) (*model.Record, error) {
	if p.OwnerID == "" {
		return nil, memerr.Validation("owner_id", "required")
	}

	sp := store.UpdateParams{
		ID:      p.ID,
		OwnerID: p.OwnerID,
		Content: p.Content,
		Tags:    p.Tags,
	}
	if p.Importance != nil {
		v := model.ClampImportance(*p.Importance)
		sp.Importance = &v
	}
	if p.Confidence != nil {
		v := model.ClampConfidence(*p.Confidence)
		sp.Confidence = &v
	}
	if p.Content != nil {
		sp.ContentHash = contenthash.Sum(*p.Content)
		vec, err := m.embed(ctx, *p.Content)
		if err != nil {
			return nil, err
		}
		sp.Embedding = vec
	}
	return m.store.Update(ctx, sp)
}

// Delete soft-deletes by default, hard-deletes on request. Deleting an
// already-inactive record reports false, not an error.
func (m *Manager) Delete(ctx context.Context, id, ownerID string, hard bool) (bool, error) {
	if ownerID == "" {
		return false, memerr.Validation("owner_id", "required")
	}
	return m.store.Delete(ctx, id, ownerID, hard)
}

// Search retrieves active records and ranks them. The returned warnings
// report non-fatal degraded conditions.
func (m *Manager) Search(ctx context.Context, p SearchParams) ([]rank.Scored, []string, error) {
	if p.OwnerID == "" {
		return nil, nil, memerr.Validation("owner_id", "required")
	}
	if p.Scope == "" {
		p.Scope = model.ScopeGlobal
	}
	if p.Scope == model.ScopeAgent && p.AgentID == "" {
		return nil, nil, memerr.Validation("agent_id", "required for agent scope")
	}
	limit := p.Limit
	if limit <= 0 {
		limit = m.cfg.SearchLimit
	}

	var query embedding.Vector
	if p.Query != "" {
		vec, err := m.embed(ctx, p.Query)
		if err != nil {
			return nil, nil, err
		}
		query = vec
	}

	records, err := m.store.Search(ctx, store.SearchParams{
		OwnerID:       p.OwnerID,
		Scope:         p.Scope,
		AgentID:       p.AgentID,
		IncludeGlobal: p.IncludeGlobal,
		Tags:          p.Tags,
		Type:          p.Type,
		Limit:         limit,
	})
	if err != nil {
		return nil, nil, err
	}

	var warnings []string
	if query != nil {
		missing := 0
		for i := range records {
			if len(records[i].Embedding) == 0 {
				missing++
			}
		}
		if missing > 0 {
			warnings = append(warnings, fmt.Sprintf("%d records have no embedding and rank at zero similarity", missing))
		}
	}

	return rank.Score(records, query, time.Now()), warnings, nil
}

// BuildContext retrieves ranked memories for a query and asks the
// synthesizer to condense them.
func (m *Manager) BuildContext(ctx context.Context, ownerID, query string, p SearchParams) (*extract.ContextSynthesis, []string, error) {
	if m.synth == nil {
		return nil, nil, memerr.Upstream("synthesis", errors.New("no provider configured"))
	}
	p.OwnerID = ownerID
	p.Query = query
	scored, warnings, err := m.Search(ctx, p)
	if err != nil {
		return nil, nil, err
	}

	records := make([]model.Record, len(scored))
	for i, s := range scored {
		records[i] = s.Record
	}
	out, err := m.synth.Synthesize(ctx, query, records)
	if err != nil {
		return nil, nil, memerr.Upstream("synthesis", err)
	}
	return out, warnings, nil
}

// AuditTrail returns the audit entries for a record the caller owns.
// Ownership is checked against the live row, so trails of hard-deleted
// records are not reachable through this path.
func (m *Manager) AuditTrail(ctx context.Context, id, ownerID string) ([]model.AuditEntry, error) {
	if ownerID == "" {
		return nil, memerr.Validation("owner_id", "required")
	}
	if _, err := m.store.Get(ctx, id, ownerID); err != nil {
		return nil, err
	}
	return m.store.AuditTrail(ctx, id)
}

func validateWrite(p *CreateParams) error {
	if p.OwnerID == "" {
		return memerr.Validation("owner_id", "required")
	}
	if len(contenthash.Normalize(p.Content)) == 0 {
		return memerr.Validation("content", "required")
	}
	if p.Type == "" {
		p.Type = model.TypeFact
	}
	if !p.Type.Valid() {
		return memerr.Validation("record_type", fmt.Sprintf("unknown type %q", p.Type))
	}
	if p.Scope == "" {
		p.Scope = model.ScopeGlobal
	}
	if !p.Scope.Valid() {
		return memerr.Validation("scope", fmt.Sprintf("unknown scope %q", p.Scope))
	}
	if p.Scope == model.ScopeAgent && p.AgentID == "" {
		return memerr.Validation("agent_id", "required for agent scope")
	}
	if p.Scope == model.ScopeGlobal {
		p.AgentID = ""
	}
	if p.InputChannel == "" {
		p.InputChannel = model.ChannelAPI
	}
	if p.Importance == 0 {
		p.Importance = 3
	}
	p.Importance = model.ClampImportance(p.Importance)
	if p.Confidence == 0 {
		p.Confidence = 0.7
	}
	p.Confidence = model.ClampConfidence(p.Confidence)
	return nil
}
