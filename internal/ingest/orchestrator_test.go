package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memcore/memcore/internal/config"
	"github.com/memcore/memcore/internal/extract"
	"github.com/memcore/memcore/internal/memerr"
	"github.com/memcore/memcore/internal/memory"
	"github.com/memcore/memcore/internal/model"
)

type fakeExtractor struct {
	candidates []extract.Candidate
	err        error
	gate       chan struct{} // when non-nil, Extract blocks until closed
}

func (f *fakeExtractor) Extract(_ context.Context, _, _ string) ([]extract.Candidate, error) {
	if f.gate != nil {
		<-f.gate
	}
	return f.candidates, f.err
}

type fakeCreator struct {
	mu      sync.Mutex
	actions map[string]memory.Action // per-content outcome, default created
	fail    map[string]error
	got     []memory.CreateParams
	seq     int
}

func (f *fakeCreator) Create(_ context.Context, p memory.CreateParams) (*memory.CreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, p)
	if err := f.fail[p.Content]; err != nil {
		return nil, err
	}
	action := f.actions[p.Content]
	if action == "" {
		action = memory.ActionCreated
	}
	f.seq++
	return &memory.CreateResult{Action: action, RecordID: fmt.Sprintf("mem-%d", f.seq)}, nil
}

func (f *fakeCreator) calls() []memory.CreateParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]memory.CreateParams(nil), f.got...)
}

func candidate(content string, confidence float64) extract.Candidate {
	return extract.Candidate{
		Content:    content,
		Type:       model.TypeFact,
		Importance: 3,
		Confidence: confidence,
	}
}

func newTestOrchestrator(t *testing.T, ext extract.Extractor, creator Creator) *Orchestrator {
	t.Helper()
	cfg := &config.Config{Workers: 2, JobRetention: time.Hour, JobTimeout: time.Minute}
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	o := New(NewInMemoryJobs(), creator, ext, cfg, log)
	t.Cleanup(o.Close)
	return o
}

func waitTerminal(t *testing.T, o *Orchestrator, id string) *model.IngestJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := o.Job(id)
		require.NoError(t, err)
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state")
	return nil
}

func TestSubmitValidation(t *testing.T) {
	o := newTestOrchestrator(t, &fakeExtractor{}, &fakeCreator{})

	_, err := o.Submit(Request{Text: "no owner"})
	assert.True(t, memerr.IsValidation(err))

	_, err = o.Submit(Request{OwnerID: "alice"})
	assert.True(t, memerr.IsValidation(err))

	_, err = o.Submit(Request{OwnerID: "alice", Text: "x", Scope: model.ScopeAgent})
	assert.True(t, memerr.IsValidation(err))
}

func TestSubmitDoesNotBlockOnProcessing(t *testing.T) {
	gate := make(chan struct{})
	ext := &fakeExtractor{gate: gate, candidates: []extract.Candidate{candidate("a", 0.9)}}
	o := newTestOrchestrator(t, ext, &fakeCreator{})

	id, err := o.Submit(Request{OwnerID: "alice", Text: "raw conversation"})
	require.NoError(t, err)

	// The worker is parked inside extraction: the job must be visible
	// and non-terminal.
	job, err := o.Job(id)
	require.NoError(t, err)
	assert.False(t, job.Status.Terminal())

	close(gate)
	job = waitTerminal(t, o, id)
	assert.Equal(t, model.JobCompleted, job.Status)
}

func TestJobUnknown(t *testing.T) {
	o := newTestOrchestrator(t, &fakeExtractor{}, &fakeCreator{})
	_, err := o.Job("no-such-job")
	assert.ErrorIs(t, err, memerr.ErrNotFound)
}

func TestJobAggregatesOutcomes(t *testing.T) {
	ext := &fakeExtractor{candidates: []extract.Candidate{
		candidate("fresh", 0.9),
		candidate("replaces", 0.9),
		candidate("duplicate", 0.9),
	}}
	creator := &fakeCreator{actions: map[string]memory.Action{
		"replaces":  memory.ActionUpdated,
		"duplicate": memory.ActionSkipped,
	}}
	o := newTestOrchestrator(t, ext, creator)

	id, err := o.Submit(Request{OwnerID: "alice", Text: "raw"})
	require.NoError(t, err)

	job := waitTerminal(t, o, id)
	assert.Equal(t, model.JobCompleted, job.Status)
	assert.Equal(t, 1, job.CreatedCount)
	assert.Equal(t, 1, job.UpdatedCount)
	assert.Equal(t, 1, job.SkippedCount)
	assert.Len(t, job.MemoryIDs, 2, "skipped candidates do not contribute ids")
	assert.Empty(t, job.Warnings)
	assert.Empty(t, job.Errors)
}

func TestCandidateFailureIsWarningNotFailure(t *testing.T) {
	ext := &fakeExtractor{candidates: []extract.Candidate{
		candidate("ok one", 0.9),
		candidate("broken", 0.9),
		candidate("ok two", 0.9),
	}}
	creator := &fakeCreator{fail: map[string]error{
		"broken": errors.New("embedding provider unavailable"),
	}}
	o := newTestOrchestrator(t, ext, creator)

	id, err := o.Submit(Request{OwnerID: "alice", Text: "raw"})
	require.NoError(t, err)

	job := waitTerminal(t, o, id)
	assert.Equal(t, model.JobCompleted, job.Status, "per-candidate failures never fail the job")
	assert.Equal(t, 2, job.CreatedCount)
	require.Len(t, job.Warnings, 1)
	assert.Contains(t, job.Warnings[0], "Error processing memory")
	assert.Empty(t, job.Errors)
}

func TestEmptyExtractionCompletesWithWarning(t *testing.T) {
	o := newTestOrchestrator(t, &fakeExtractor{}, &fakeCreator{})

	id, err := o.Submit(Request{OwnerID: "alice", Text: "small talk"})
	require.NoError(t, err)

	job := waitTerminal(t, o, id)
	assert.Equal(t, model.JobCompleted, job.Status)
	assert.Equal(t, 0, job.CreatedCount)
	require.Len(t, job.Warnings, 1)
	assert.Contains(t, job.Warnings[0], "No extractable information")
}

func TestExtractionErrorFailsJob(t *testing.T) {
	ext := &fakeExtractor{err: errors.New("model overloaded")}
	creator := &fakeCreator{}
	o := newTestOrchestrator(t, ext, creator)

	id, err := o.Submit(Request{OwnerID: "alice", Text: "raw"})
	require.NoError(t, err)

	job := waitTerminal(t, o, id)
	assert.Equal(t, model.JobFailed, job.Status)
	require.Len(t, job.Errors, 1)
	assert.Contains(t, job.Errors[0], "extraction failed")
	assert.Empty(t, creator.calls(), "nothing is written when extraction fails")
}

func TestNilExtractorFailsJob(t *testing.T) {
	o := newTestOrchestrator(t, nil, &fakeCreator{})

	id, err := o.Submit(Request{OwnerID: "alice", Text: "raw"})
	require.NoError(t, err)

	job := waitTerminal(t, o, id)
	assert.Equal(t, model.JobFailed, job.Status)
}

func TestLowConfidenceCandidateWarns(t *testing.T) {
	ext := &fakeExtractor{candidates: []extract.Candidate{
		candidate("the user might possibly prefer tea over coffee sometimes", 0.3),
	}}
	o := newTestOrchestrator(t, ext, &fakeCreator{})

	id, err := o.Submit(Request{OwnerID: "alice", Text: "raw"})
	require.NoError(t, err)

	job := waitTerminal(t, o, id)
	assert.Equal(t, model.JobCompleted, job.Status)
	assert.Equal(t, 1, job.CreatedCount, "low confidence is still persisted")
	require.Len(t, job.Warnings, 1)
	assert.Contains(t, job.Warnings[0], "Low confidence extraction")
	assert.Contains(t, job.Warnings[0], "...", "long content is truncated")
}

func TestRequestFieldsReachTheEngine(t *testing.T) {
	ext := &fakeExtractor{candidates: []extract.Candidate{candidate("fact", 0.9)}}
	creator := &fakeCreator{}
	o := newTestOrchestrator(t, ext, creator)

	id, err := o.Submit(Request{
		OwnerID: "alice",
		Text:    "raw",
		Source:  "chat",
		Scope:   model.ScopeAgent,
		AgentID: "helper",
	})
	require.NoError(t, err)
	waitTerminal(t, o, id)

	calls := creator.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "alice", calls[0].OwnerID)
	assert.Equal(t, model.ScopeAgent, calls[0].Scope)
	assert.Equal(t, "helper", calls[0].AgentID)
	assert.Equal(t, "chat", calls[0].Source)
	assert.Equal(t, model.ChannelChat, calls[0].InputChannel)
}
