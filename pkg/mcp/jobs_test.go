package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateJob(t *testing.T) {
	t.Run("new job fields correct", func(t *testing.T) {
		jm := NewJobManager()
		job := jm.CreateJob("BEST_SELLERS")

		assert.NotEmpty(t, job.ID)
		assert.Equal(t, "BEST_SELLERS", job.TaskName)
		assert.Equal(t, JobStatusPending, job.Status)
		assert.False(t, job.StartedAt.IsZero())
		assert.True(t, job.CompletedAt.IsZero())
		assert.Zero(t, job.Enqueued)
	})

	t.Run("active task returns same job", func(t *testing.T) {
		jm := NewJobManager()
		job1 := jm.CreateJob("BEST_SELLERS")
		job2 := jm.CreateJob("BEST_SELLERS")
		assert.Equal(t, job1.ID, job2.ID)
	})

	t.Run("new job allowed after completion", func(t *testing.T) {
		jm := NewJobManager()
		job1 := jm.CreateJob("BEST_SELLERS")
		jm.UpdateStatus(job1.ID, JobStatusCompleted, "")

		job2 := jm.CreateJob("BEST_SELLERS")
		assert.NotEqual(t, job1.ID, job2.ID)
	})

	t.Run("different tasks independent", func(t *testing.T) {
		jm := NewJobManager()
		assert.NotEqual(t, jm.CreateJob("NEW_RELEASES").ID, jm.CreateJob("MOST_WISHED_FOR").ID)
	})
}

func TestGetJob(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob("BEST_SELLERS")

	got := jm.GetJob(job.ID)
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
	assert.Nil(t, jm.GetJob("nonexistent-id"))

	// Snapshots do not alias the managed job
	got.Status = JobStatusFailed
	assert.Equal(t, JobStatusPending, jm.GetJob(job.ID).Status)
}

func TestGetJobByTask(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob("BEST_SELLERS")

	got := jm.GetJobByTask("BEST_SELLERS")
	require.NotNil(t, got)
	assert.Equal(t, job.ID, got.ID)
	assert.Nil(t, jm.GetJobByTask("ASIN"))

	jm.UpdateStatus(job.ID, JobStatusCompleted, "")
	assert.Nil(t, jm.GetJobByTask("BEST_SELLERS"))
}

func TestIsRunning(t *testing.T) {
	tests := []struct {
		name   string
		status JobStatus
		want   bool
	}{
		{"pending", JobStatusPending, true},
		{"running", JobStatusRunning, true},
		{"completed", JobStatusCompleted, false},
		{"failed", JobStatusFailed, false},
		{"cancelled", JobStatusCancelled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jm := NewJobManager()
			job := jm.CreateJob("NEW_RELEASES")
			if tt.status != JobStatusPending {
				jm.UpdateStatus(job.ID, tt.status, "")
			}
			assert.Equal(t, tt.want, jm.IsRunning("NEW_RELEASES"))
		})
	}
	assert.False(t, NewJobManager().IsRunning("ghost"))
}

func TestUpdateStatus(t *testing.T) {
	t.Run("terminal status sets CompletedAt and cancels context", func(t *testing.T) {
		jm := NewJobManager()
		job := jm.CreateJob("BEST_SELLERS")
		jm.UpdateStatus(job.ID, JobStatusFailed, "seed file missing")

		got := jm.GetJob(job.ID)
		assert.Equal(t, JobStatusFailed, got.Status)
		assert.Equal(t, "seed file missing", got.ErrorMessage)
		assert.False(t, got.CompletedAt.IsZero())
		assert.Error(t, jm.GetContext(job.ID).Err())
	})

	t.Run("nonexistent is no-op", func(t *testing.T) {
		assert.NotPanics(t, func() { NewJobManager().UpdateStatus("fake-id", JobStatusRunning, "") })
	})
}

func TestUpdateProgress(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob("BEST_SELLERS")
	jm.UpdateProgress(job.ID, 6, 4)

	got := jm.GetJob(job.ID)
	assert.Equal(t, 6, got.SeedCount)
	assert.Equal(t, 4, got.Enqueued)
	assert.NotPanics(t, func() { jm.UpdateProgress("fake-id", 1, 2) })
}

func TestCancelJob(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob("BEST_SELLERS")
	jm.UpdateStatus(job.ID, JobStatusRunning, "")

	assert.True(t, jm.CancelJob(job.ID))
	got := jm.GetJob(job.ID)
	assert.Equal(t, JobStatusCancelled, got.Status)
	assert.Error(t, jm.GetContext(job.ID).Err())

	assert.False(t, jm.CancelJob(job.ID), "already cancelled")
	assert.False(t, jm.CancelJob("nope"))
}

func TestCancelAll(t *testing.T) {
	jm := NewJobManager()
	job1 := jm.CreateJob("BEST_SELLERS")
	job2 := jm.CreateJob("NEW_RELEASES")
	job3 := jm.CreateJob("MOST_WISHED_FOR")
	jm.UpdateStatus(job3.ID, JobStatusCompleted, "")

	jm.CancelAll()

	assert.Equal(t, JobStatusCancelled, jm.GetJob(job1.ID).Status)
	assert.Equal(t, JobStatusCancelled, jm.GetJob(job2.ID).Status)
	assert.Equal(t, JobStatusCompleted, jm.GetJob(job3.ID).Status)
	assert.NotEqual(t, job1.ID, jm.CreateJob("BEST_SELLERS").ID)
	assert.Len(t, jm.ListJobs(), 4)
}

func TestGetContext(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob("BEST_SELLERS")
	assert.NoError(t, jm.GetContext(job.ID).Err())
	assert.Equal(t, context.Background(), jm.GetContext("nope"))
}
