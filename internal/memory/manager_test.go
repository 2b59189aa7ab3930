package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memcore/memcore/internal/config"
	"github.com/memcore/memcore/internal/embedding/mock"
	"github.com/memcore/memcore/internal/extract"
	"github.com/memcore/memcore/internal/memerr"
	"github.com/memcore/memcore/internal/model"
	"github.com/memcore/memcore/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *mock.Embedder) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	emb := mock.New(16)
	cfg := &config.Config{SimilarityThreshold: 0.95, SearchLimit: 50}
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return NewManager(st, emb, nil, cfg, log), emb
}

func create(t *testing.T, m *Manager, p CreateParams) *CreateResult {
	t.Helper()
	res, err := m.Create(context.Background(), p)
	require.NoError(t, err)
	return res
}

func TestExactDedupIdempotence(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	first := create(t, m, CreateParams{OwnerID: "alice", Content: "User likes coffee."})
	assert.Equal(t, ActionCreated, first.Action)

	// Same normalized content: skipped, referencing the original.
	second := create(t, m, CreateParams{OwnerID: "alice", Content: "  user LIKES coffee.  "})
	assert.Equal(t, ActionSkipped, second.Action)
	assert.Equal(t, first.RecordID, second.RecordID)

	results, _, err := m.Search(ctx, SearchParams{OwnerID: "alice"})
	require.NoError(t, err)
	assert.Len(t, results, 1, "exactly one active record")
}

func TestSkipDedupBypassesBothChecks(t *testing.T) {
	m, _ := newTestManager(t)

	first := create(t, m, CreateParams{OwnerID: "alice", Content: "duplicate me"})
	second := create(t, m, CreateParams{OwnerID: "alice", Content: "duplicate me", SkipDedup: true})
	assert.Equal(t, ActionCreated, first.Action)
	assert.Equal(t, ActionCreated, second.Action)
	assert.NotEqual(t, first.RecordID, second.RecordID)
}

func TestSupersedeChain(t *testing.T) {
	m, emb := newTestManager(t)
	ctx := context.Background()
	emb.Alias("lives in", "user-city")

	first := create(t, m, CreateParams{OwnerID: "alice", Content: "User lives in Tokyo."})
	require.Equal(t, ActionCreated, first.Action)

	second := create(t, m, CreateParams{OwnerID: "alice", Content: "User now lives in Osaka."})
	require.Equal(t, ActionUpdated, second.Action)
	assert.Equal(t, first.RecordID, second.SupersededID)

	old, err := m.Get(ctx, first.RecordID, "alice")
	require.NoError(t, err)
	assert.False(t, old.Active())
	assert.Empty(t, old.SupersedesID, "old record must not reference a successor")

	current, err := m.Get(ctx, second.RecordID, "alice")
	require.NoError(t, err)
	assert.True(t, current.Active())
	assert.Equal(t, first.RecordID, current.SupersedesID)

	// Only the successor remains active and tops a related query.
	emb.Alias("user live", "user-city")
	results, _, err := m.Search(ctx, SearchParams{OwnerID: "alice", Query: "Where does the user live?"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "User now lives in Osaka.", results[0].Content)
}

func TestEpisodeAppendOnly(t *testing.T) {
	m, emb := newTestManager(t)
	emb.Alias("ate ramen", "ramen")

	first := create(t, m, CreateParams{OwnerID: "alice", Content: "User ate ramen on Monday.", Type: model.TypeEpisode})
	second := create(t, m, CreateParams{OwnerID: "alice", Content: "User ate ramen again on Tuesday.", Type: model.TypeEpisode})

	assert.Equal(t, ActionCreated, first.Action)
	assert.Equal(t, ActionCreated, second.Action, "episodes append even above the similarity threshold")
	assert.NotEqual(t, first.RecordID, second.RecordID)
}

func TestDissimilarContentInsertsSibling(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	create(t, m, CreateParams{OwnerID: "alice", Content: "User works as a translator."})
	res := create(t, m, CreateParams{OwnerID: "alice", Content: "User has a dog named Mochi."})
	assert.Equal(t, ActionCreated, res.Action)

	results, _, err := m.Search(ctx, SearchParams{OwnerID: "alice"})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestClampingOnCreate(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	res := create(t, m, CreateParams{
		OwnerID:    "alice",
		Content:    "out of range",
		Importance: 9,
		Confidence: -0.3,
	})
	rec, err := m.Get(ctx, res.RecordID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 5, rec.Importance)
	assert.Equal(t, 0.0, rec.Confidence)
}

func TestCreateValidation(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Create(ctx, CreateParams{Content: "no owner"})
	assert.True(t, memerr.IsValidation(err))

	_, err = m.Create(ctx, CreateParams{OwnerID: "alice", Content: "   "})
	assert.True(t, memerr.IsValidation(err))

	_, err = m.Create(ctx, CreateParams{OwnerID: "alice", Content: "x", Type: "note"})
	assert.True(t, memerr.IsValidation(err))

	_, err = m.Create(ctx, CreateParams{OwnerID: "alice", Content: "x", Scope: model.ScopeAgent})
	assert.True(t, memerr.IsValidation(err))
}

func TestEmbedderFailureIsFatalToCreate(t *testing.T) {
	m, emb := newTestManager(t)
	ctx := context.Background()
	emb.FailOn("poison")

	_, err := m.Create(ctx, CreateParams{OwnerID: "alice", Content: "poison pill"})
	assert.True(t, memerr.IsUpstream(err))

	results, _, err := m.Search(ctx, SearchParams{OwnerID: "alice"})
	require.NoError(t, err)
	assert.Empty(t, results, "no partial write on embed failure")
}

func TestNoEmbedderConfigured(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	m := NewManager(st, nil, nil, &config.Config{SimilarityThreshold: 0.95, SearchLimit: 50}, nil)

	_, err = m.Create(context.Background(), CreateParams{OwnerID: "alice", Content: "x"})
	assert.True(t, memerr.IsUpstream(err))
}

func TestUpdateReembedsOnContentChange(t *testing.T) {
	m, emb := newTestManager(t)
	ctx := context.Background()

	res := create(t, m, CreateParams{OwnerID: "alice", Content: "before"})
	before, _ := m.Get(ctx, res.RecordID, "alice")
	calls := emb.Calls()

	content := "after"
	updated, err := m.Update(ctx, UpdateParams{ID: res.RecordID, OwnerID: "alice", Content: &content})
	require.NoError(t, err)
	assert.Equal(t, "after", updated.Content)
	assert.NotEqual(t, before.ContentHash, updated.ContentHash)
	assert.Equal(t, calls+1, emb.Calls(), "content change re-embeds")

	// Metadata-only update does not touch the embedder.
	importance := 4
	_, err = m.Update(ctx, UpdateParams{ID: res.RecordID, OwnerID: "alice", Importance: &importance})
	require.NoError(t, err)
	assert.Equal(t, calls+1, emb.Calls())
}

func TestDeleteIdempotence(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	res := create(t, m, CreateParams{OwnerID: "alice", Content: "to delete"})

	ok, err := m.Delete(ctx, res.RecordID, "alice", false)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Delete(ctx, res.RecordID, "alice", false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSearchWithoutQueryIsNeutral(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	create(t, m, CreateParams{OwnerID: "alice", Content: "older entry"})
	create(t, m, CreateParams{OwnerID: "alice", Content: "newer entry"})

	results, warnings, err := m.Search(ctx, SearchParams{OwnerID: "alice"})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, results, 2)
	assert.Equal(t, "newer entry", results[0].Content, "store order preserved")
	assert.Equal(t, 0.5, results[0].Similarity)
	assert.Equal(t, 0.5, results[1].Similarity)
}

func TestSearchValidation(t *testing.T) {
	m, _ := newTestManager(t)
	_, _, err := m.Search(context.Background(), SearchParams{OwnerID: "alice", Scope: model.ScopeAgent})
	assert.True(t, memerr.IsValidation(err))
}

func TestAuditTrailOwnerScoped(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	res := create(t, m, CreateParams{OwnerID: "alice", Content: "audited"})

	trail, err := m.AuditTrail(ctx, res.RecordID, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, trail)

	_, err = m.AuditTrail(ctx, res.RecordID, "mallory")
	assert.ErrorIs(t, err, memerr.ErrNotFound)
}

type fakeSynth struct {
	gotQuery string
	gotCount int
}

func (f *fakeSynth) Synthesize(_ context.Context, query string, memories []model.Record) (*extract.ContextSynthesis, error) {
	f.gotQuery = query
	f.gotCount = len(memories)
	return &extract.ContextSynthesis{Summary: "ok", Bullets: []string{"b"}}, nil
}

func TestBuildContext(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	synth := &fakeSynth{}
	m.synth = synth

	create(t, m, CreateParams{OwnerID: "alice", Content: "User likes tea."})

	out, _, err := m.BuildContext(ctx, "alice", "what does the user drink?", SearchParams{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Summary)
	assert.Equal(t, "what does the user drink?", synth.gotQuery)
	assert.Equal(t, 1, synth.gotCount)
}

func TestBuildContextWithoutProvider(t *testing.T) {
	m, _ := newTestManager(t)
	_, _, err := m.BuildContext(context.Background(), "alice", "q", SearchParams{})
	assert.True(t, memerr.IsUpstream(err))
}
