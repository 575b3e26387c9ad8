package inmemory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/site-ledger/internal/jobs"
	"github.com/dvloznov/site-ledger/internal/pipeline"
)

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.VoiceNoteJob {
	t.Helper()
	var job *jobs.VoiceNoteJob
	require.Eventually(t, func() bool {
		var err error
		job, err = store.GetJob(context.Background(), jobID)
		return err == nil && job.Status == want
	}, 5*time.Second, 10*time.Millisecond, "job %s never reached %s", jobID, want)
	return job
}

func TestQueueProcessesJobs(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, store)
	ctx := context.Background()

	var handled atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.VoiceNoteJob) error {
		handled.Add(1)
		job.Reply = "ok " + job.NoteID
		return nil
	}))
	defer q.Close()

	job := &jobs.VoiceNoteJob{NoteID: "n1", Source: "http", Audio: pipeline.BytesAudio("x")}
	require.NoError(t, q.PublishVoiceNote(ctx, job))
	require.NotEmpty(t, job.JobID)

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, "ok n1", done.Reply)
	assert.Nil(t, done.Audio, "audio is dropped once the job finishes")
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, int32(1), handled.Load())
}

func TestQueueNoRetryByDefault(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, store)
	ctx := context.Background()

	var calls atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.VoiceNoteJob) error {
		calls.Add(1)
		return errors.New("extraction failed")
	}))
	defer q.Close()

	job := &jobs.VoiceNoteJob{NoteID: "n1"}
	require.NoError(t, q.PublishVoiceNote(ctx, job))

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, "extraction failed", failed.Error)
	assert.Equal(t, 0, failed.RetryCount)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestQueueRetriesWhenAllowed(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, store)
	ctx := context.Background()

	var calls atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.VoiceNoteJob) error {
		if calls.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	}))
	defer q.Close()

	job := &jobs.VoiceNoteJob{NoteID: "n1", MaxRetries: 1}
	require.NoError(t, q.PublishVoiceNote(ctx, job))

	require.Eventually(t, func() bool {
		got, err := store.GetJob(ctx, job.JobID)
		return err == nil && got.Status == jobs.JobStatusCompleted && got.RetryCount == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestQueueRecoversHandlerPanic(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, store).WithWorkers(1)
	ctx := context.Background()

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.VoiceNoteJob) error {
		if job.NoteID == "boom" {
			panic("nil map")
		}
		return nil
	}))
	defer q.Close()

	bad := &jobs.VoiceNoteJob{NoteID: "boom"}
	good := &jobs.VoiceNoteJob{NoteID: "fine"}
	require.NoError(t, q.PublishVoiceNote(ctx, bad))
	require.NoError(t, q.PublishVoiceNote(ctx, good))

	failed := waitForStatus(t, store, bad.JobID, jobs.JobStatusFailed)
	assert.Contains(t, failed.Error, "panic")
	waitForStatus(t, store, good.JobID, jobs.JobStatusCompleted)
}

func TestQueueRunsWorkersConcurrently(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, store).WithWorkers(3)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	release := make(chan struct{})
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.VoiceNoteJob) error {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()
		<-release
		mu.Lock()
		running--
		mu.Unlock()
		return nil
	}))
	defer q.Close()

	var ids []string
	for i := 0; i < 3; i++ {
		job := &jobs.VoiceNoteJob{NoteID: "n"}
		require.NoError(t, q.PublishVoiceNote(ctx, job))
		ids = append(ids, job.JobID)
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return running == 3
	}, 5*time.Second, 10*time.Millisecond)
	close(release)

	for _, id := range ids {
		waitForStatus(t, store, id, jobs.JobStatusCompleted)
	}
	assert.Equal(t, 3, peak)
}

func TestQueueClosed(t *testing.T) {
	q := NewQueue(1, nil)
	require.NoError(t, q.Stop(context.Background()))
	require.NoError(t, q.Stop(context.Background()))

	err := q.PublishVoiceNote(context.Background(), &jobs.VoiceNoteJob{NoteID: "n"})
	assert.EqualError(t, err, "queue is closed")
	assert.Error(t, q.Start(context.Background(), func(context.Context, *jobs.VoiceNoteJob) error { return nil }))
}

func TestPublishHonoursContext(t *testing.T) {
	q := NewQueue(0, nil)
	defer q.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := q.PublishVoiceNote(ctx, &jobs.VoiceNoteJob{NoteID: "n"})
	assert.ErrorIs(t, err, context.Canceled)
}
