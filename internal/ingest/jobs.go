package ingest

import (
	"sync"
	"time"

	"github.com/memcore/memcore/internal/model"
)

// JobRepository tracks ingestion jobs. Implementations must make
// field-level updates appear atomic to concurrent readers.
type JobRepository interface {
	Create(job *model.IngestJob)
	// Get returns a snapshot of the job; mutating it does not affect
	// the stored state.
	Get(id string) (*model.IngestJob, bool)
	// Update applies fn to the job under the repository's lock and
	// bumps its updated timestamp.
	Update(id string, fn func(*model.IngestJob))
	// Sweep removes terminal jobs idle for longer than olderThan and
	// reports how many were removed.
	Sweep(olderThan time.Duration) int
}

// InMemoryJobs is the process-local JobRepository. Job state does not
// survive a restart and is not meant to.
type InMemoryJobs struct {
	mu   sync.RWMutex
	jobs map[string]*model.IngestJob
}

// NewInMemoryJobs creates an empty repository.
func NewInMemoryJobs() *InMemoryJobs {
	return &InMemoryJobs{jobs: map[string]*model.IngestJob{}}
}

func (r *InMemoryJobs) Create(job *model.IngestJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.JobID] = job.Clone()
}

func (r *InMemoryJobs) Get(id string) (*model.IngestJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

func (r *InMemoryJobs) Update(id string, fn func(*model.IngestJob)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return
	}
	fn(job)
	job.UpdatedAt = time.Now().UTC()
}

func (r *InMemoryJobs) Sweep(olderThan time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	removed := 0
	for id, job := range r.jobs {
		if job.Status.Terminal() && job.UpdatedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}
