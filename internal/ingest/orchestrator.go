// Package ingest drives asynchronous batch writes through the memory
// engine and tracks their job state.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/memcore/memcore/internal/config"
	"github.com/memcore/memcore/internal/extract"
	"github.com/memcore/memcore/internal/memerr"
	"github.com/memcore/memcore/internal/memory"
	"github.com/memcore/memcore/internal/model"
)

// lowConfidence marks accepted candidates worth flagging to the caller.
const lowConfidence = 0.5

// Creator is the slice of the memory engine the orchestrator writes
// through.
type Creator interface {
	Create(ctx context.Context, p memory.CreateParams) (*memory.CreateResult, error)
}

// Request is one batch ingestion submission.
type Request struct {
	OwnerID string
	Text    string
	Source  string
	Scope   model.Scope
	AgentID string
}

type task struct {
	jobID string
	req   Request
}

// Orchestrator runs a worker pool that extracts candidates from raw
// text and persists each through the engine. Jobs move
// pending -> processing -> completed|failed; terminal states are final.
type Orchestrator struct {
	jobs      JobRepository
	creator   Creator
	extractor extract.Extractor
	queue     chan task
	retention time.Duration
	timeout   time.Duration
	log       *logrus.Entry

	wg        sync.WaitGroup
	janitorWg sync.WaitGroup
	stop      chan struct{}
	closeOnce sync.Once
}

// New starts an orchestrator with cfg.Workers workers and a janitor
// sweeping terminal jobs past the retention age.
func New(jobs JobRepository, creator Creator, extractor extract.Extractor, cfg *config.Config, log *logrus.Logger) *Orchestrator {
	if log == nil {
		log = logrus.New()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	o := &Orchestrator{
		jobs:      jobs,
		creator:   creator,
		extractor: extractor,
		queue:     make(chan task, 256),
		retention: cfg.JobRetention,
		timeout:   cfg.JobTimeout,
		log:       log.WithField("component", "ingest"),
		stop:      make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}
	o.janitorWg.Add(1)
	go o.janitor()

	return o
}

// Submit accepts a batch and returns the job id immediately; the caller
// is never blocked on extraction or persistence.
func (o *Orchestrator) Submit(req Request) (string, error) {
	if req.OwnerID == "" {
		return "", memerr.Validation("owner_id", "required")
	}
	if req.Text == "" {
		return "", memerr.Validation("text", "required")
	}
	if req.Scope == "" {
		req.Scope = model.ScopeGlobal
	}
	if req.Scope == model.ScopeAgent && req.AgentID == "" {
		return "", memerr.Validation("agent_id", "required for agent scope")
	}

	now := time.Now().UTC()
	job := &model.IngestJob{
		JobID:     uuid.NewString(),
		Status:    model.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.jobs.Create(job)
	o.queue <- task{jobID: job.JobID, req: req}

	o.log.WithFields(logrus.Fields{"job_id": job.JobID, "owner_id": req.OwnerID}).
		Info("ingestion job accepted")
	return job.JobID, nil
}

// Job returns a snapshot of a job's state for polling.
func (o *Orchestrator) Job(id string) (*model.IngestJob, error) {
	job, ok := o.jobs.Get(id)
	if !ok {
		return nil, memerr.ErrNotFound
	}
	return job, nil
}

// Close stops accepting work, drains queued jobs, and waits for the
// workers and janitor to exit.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		close(o.queue)
		o.wg.Wait()
		close(o.stop)
		o.janitorWg.Wait()
	})
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for t := range o.queue {
		o.run(t)
	}
}

func (o *Orchestrator) janitor() {
	defer o.janitorWg.Done()
	ticker := time.NewTicker(o.retention)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := o.jobs.Sweep(o.retention); n > 0 {
				o.log.WithField("removed", n).Debug("swept terminal jobs")
			}
		case <-o.stop:
			return
		}
	}
}

// run executes one job to a terminal state. A per-candidate failure is
// recorded as a warning and the rest of the batch still runs; only a
// failure of extraction itself fails the job.
func (o *Orchestrator) run(t task) {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	log := o.log.WithFields(logrus.Fields{"job_id": t.jobID, "owner_id": t.req.OwnerID})
	o.jobs.Update(t.jobID, func(j *model.IngestJob) {
		j.Status = model.JobProcessing
	})

	candidates, err := o.extract(ctx, t.req)
	if err != nil {
		log.WithError(err).Warn("extraction failed")
		o.jobs.Update(t.jobID, func(j *model.IngestJob) {
			j.Status = model.JobFailed
			j.Errors = append(j.Errors, fmt.Sprintf("extraction failed: %v", err))
		})
		return
	}
	if len(candidates) == 0 {
		o.jobs.Update(t.jobID, func(j *model.IngestJob) {
			j.Status = model.JobCompleted
			j.Warnings = append(j.Warnings, "No extractable information found in input")
		})
		return
	}

	channel := model.ChannelAPI
	if t.req.Source == "chat" {
		channel = model.ChannelChat
	}

	for _, cand := range candidates {
		res, err := o.creator.Create(ctx, memory.CreateParams{
			OwnerID:      t.req.OwnerID,
			Content:      cand.Content,
			Type:         cand.Type,
			Tags:         cand.Tags,
			Scope:        t.req.Scope,
			AgentID:      t.req.AgentID,
			Importance:   cand.Importance,
			Confidence:   cand.Confidence,
			Source:       t.req.Source,
			InputChannel: channel,
		})
		if err != nil {
			log.WithError(err).Warn("candidate write failed")
			o.jobs.Update(t.jobID, func(j *model.IngestJob) {
				j.Warnings = append(j.Warnings, fmt.Sprintf("Error processing memory: %v", err))
			})
			continue
		}

		o.jobs.Update(t.jobID, func(j *model.IngestJob) {
			switch res.Action {
			case memory.ActionCreated:
				j.CreatedCount++
				j.MemoryIDs = append(j.MemoryIDs, res.RecordID)
			case memory.ActionUpdated:
				j.UpdatedCount++
				j.MemoryIDs = append(j.MemoryIDs, res.RecordID)
			case memory.ActionSkipped:
				j.SkippedCount++
			}
			if cand.Confidence < lowConfidence {
				j.Warnings = append(j.Warnings, "Low confidence extraction: "+truncate(cand.Content, 50))
			}
		})
	}

	o.jobs.Update(t.jobID, func(j *model.IngestJob) {
		j.Status = model.JobCompleted
	})
	log.Info("ingestion job completed")
}

func (o *Orchestrator) extract(ctx context.Context, req Request) ([]extract.Candidate, error) {
	if o.extractor == nil {
		return nil, errors.New("no extraction provider configured")
	}
	return o.extractor.Extract(ctx, req.Text, req.Source)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
