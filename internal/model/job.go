package model

import "time"

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// IngestJob tracks one asynchronous batch ingestion. Jobs live only for
// the lifetime of the process and are swept after a retention period
// once terminal.
type IngestJob struct {
	JobID        string    `json:"job_id"`
	Status       JobStatus `json:"status"`
	CreatedCount int       `json:"created_count"`
	UpdatedCount int       `json:"updated_count"`
	SkippedCount int       `json:"skipped_count"`
	MemoryIDs    []string  `json:"memory_ids"`
	Warnings     []string  `json:"warnings"`
	Errors       []string  `json:"errors"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Clone returns a deep copy so pollers never share slices with the
// worker mutating the job.
func (j *IngestJob) Clone() *IngestJob {
	c := *j
	c.MemoryIDs = append([]string(nil), j.MemoryIDs...)
	c.Warnings = append([]string(nil), j.Warnings...)
	c.Errors = append([]string(nil), j.Errors...)
	return &c
}
