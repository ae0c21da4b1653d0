package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current state of a seeding job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

func (s JobStatus) active() bool { return s == JobStatusPending || s == JobStatusRunning }

// Job is a background seeding run of one task
type Job struct {
	ID           string    `json:"id"`
	TaskName     string    `json:"task"`
	Status       JobStatus `json:"status"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at,omitempty"`
	SeedCount    int       `json:"seed_count"`
	Enqueued     int       `json:"enqueued"`
	ErrorMessage string    `json:"error_message,omitempty"`

	ctx    context.Context
	cancel context.CancelFunc
}

// JobManager manages background seeding jobs
type JobManager struct {
	jobs   map[string]*Job
	mu     sync.RWMutex
	byTask map[string]string // task name -> job id of the active job
}

// NewJobManager creates a new job manager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:   make(map[string]*Job),
		byTask: make(map[string]string),
	}
}

// CreateJob creates a job for a task, or returns the task's active job
func (m *JobManager) CreateJob(taskName string) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, exists := m.byTask[taskName]; exists {
		if existing := m.jobs[id]; existing != nil && existing.Status.active() {
			return existing
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:        uuid.New().String(),
		TaskName:  taskName,
		Status:    JobStatusPending,
		StartedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	m.jobs[job.ID] = job
	m.byTask[taskName] = job.ID
	return job
}

// GetJob returns a snapshot of a job, or nil
func (m *JobManager) GetJob(jobID string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot(m.jobs[jobID])
}

// GetJobByTask returns a snapshot of the task's latest job, or nil
func (m *JobManager) GetJobByTask(taskName string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, exists := m.byTask[taskName]; exists {
		return m.snapshot(m.jobs[id])
	}
	return nil
}

// snapshot requires m.mu to be held
func (m *JobManager) snapshot(job *Job) *Job {
	if job == nil {
		return nil
	}
	cp := *job
	return &cp
}

// IsRunning reports whether a task has an active job
func (m *JobManager) IsRunning(taskName string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if id, exists := m.byTask[taskName]; exists {
		job := m.jobs[id]
		return job != nil && job.Status.active()
	}
	return false
}

// UpdateStatus updates the status of a job
func (m *JobManager) UpdateStatus(jobID string, status JobStatus, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists {
		return
	}
	job.Status = status
	if !status.active() {
		job.CompletedAt = time.Now()
		job.cancel()
		delete(m.byTask, job.TaskName)
	}
	if errorMsg != "" {
		job.ErrorMessage = errorMsg
	}
}

// UpdateProgress records the seed counts of a job
func (m *JobManager) UpdateProgress(jobID string, seeds, enqueued int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, exists := m.jobs[jobID]; exists {
		job.SeedCount = seeds
		job.Enqueued = enqueued
	}
}

// CancelJob cancels an active job
func (m *JobManager) CancelJob(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[jobID]
	if !exists || !job.Status.active() {
		return false
	}
	job.cancel()
	job.Status = JobStatusCancelled
	job.CompletedAt = time.Now()
	delete(m.byTask, job.TaskName)
	return true
}

// CancelAll cancels every active job
func (m *JobManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.jobs {
		if job.Status.active() {
			job.cancel()
			job.Status = JobStatusCancelled
			job.CompletedAt = time.Now()
		}
	}
	m.byTask = make(map[string]string)
}

// ListJobs returns snapshots of all jobs
func (m *JobManager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, m.snapshot(job))
	}
	return jobs
}

// GetContext returns the context a job runs under
func (m *JobManager) GetContext(jobID string) context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if job, exists := m.jobs[jobID]; exists {
		return job.ctx
	}
	return context.Background()
}
