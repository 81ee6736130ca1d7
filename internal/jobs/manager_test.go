package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/amazon-search-scraper/internal/queue"
	"github.com/maltedev/amazon-search-scraper/internal/runner"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) RunQuery(ctx context.Context, query string, pages int) runner.QueryResult {
	args := m.Called(ctx, query, pages)
	return args.Get(0).(runner.QueryResult)
}

func TestCreateJob(t *testing.T) {
	q := queue.NewInMemoryQueue()
	m := NewManager(q, new(MockRunner), nil)

	job, err := m.CreateJob("  wireless mouse ", 4)
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "wireless mouse", job.SearchQuery)
	assert.Equal(t, 4, job.MaxPages)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, 1, q.Size())

	task, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, job.ID, task.ID)
	assert.Equal(t, "wireless mouse", task.Query)
	assert.Equal(t, 4, task.MaxPages)
}

func TestCreateJobValidation(t *testing.T) {
	q := queue.NewInMemoryQueue()
	m := NewManager(q, new(MockRunner), nil)

	_, err := m.CreateJob("   ", 1)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	job, err := m.CreateJob("q", -3)
	require.NoError(t, err)
	assert.Equal(t, 0, job.MaxPages)

	require.NoError(t, q.Close())
	_, err = m.CreateJob("after close", 1)
	assert.ErrorIs(t, err, queue.ErrQueueClosed)
	assert.Len(t, m.ListJobs(), 1)
}

func TestGetJob(t *testing.T) {
	m := NewManager(queue.NewInMemoryQueue(), new(MockRunner), nil)

	created, err := m.CreateJob("q", 1)
	require.NoError(t, err)

	got, err := m.GetJob(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	got.Status = "tampered"
	again, err := m.GetJob(created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, again.Status)

	_, err = m.GetJob("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestListJobsNewestFirst(t *testing.T) {
	m := NewManager(queue.NewInMemoryQueue(), new(MockRunner), nil)

	for _, q := range []string{"first", "second", "third"} {
		_, err := m.CreateJob(q, 1)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	jobs := m.ListJobs()
	require.Len(t, jobs, 3)
	assert.Equal(t, "third", jobs[0].SearchQuery)
	assert.Equal(t, "first", jobs[2].SearchQuery)
}

func TestWorkerProcessesJobs(t *testing.T) {
	q := queue.NewInMemoryQueue()
	r := new(MockRunner)
	m := NewManager(q, r, nil)

	r.On("RunQuery", mock.Anything, "mouse", 2).Return(runner.QueryResult{Query: "mouse", Products: 7, Priced: 5})
	r.On("RunQuery", mock.Anything, "broken", 0).Return(runner.QueryResult{Query: "broken", Err: errors.New("disk full")})

	ok, err := m.CreateJob("mouse", 2)
	require.NoError(t, err)
	bad, err := m.CreateJob("broken", 0)
	require.NoError(t, err)
	require.NoError(t, q.Close())

	done := make(chan struct{})
	go func() {
		m.StartWorker(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after queue drained")
	}

	gotOK, err := m.GetJob(ok.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, gotOK.Status)
	assert.Equal(t, 7, gotOK.ProductsFound)
	assert.Equal(t, 5, gotOK.PricedFound)
	assert.NotNil(t, gotOK.StartedAt)
	assert.NotNil(t, gotOK.CompletedAt)

	gotBad, err := m.GetJob(bad.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, gotBad.Status)
	assert.Equal(t, "disk full", gotBad.Error)

	stats := m.GetStats()
	assert.Equal(t, 2, stats.TotalJobs)
	assert.Equal(t, 1, stats.CompletedJobs)
	assert.Equal(t, 1, stats.FailedJobs)
	assert.Equal(t, 7, stats.TotalProducts)
	assert.InDelta(t, 50.0, stats.SuccessRate, 1e-9)

	r.AssertExpectations(t)
}

func TestWorkerStopsOnCancel(t *testing.T) {
	m := NewManager(queue.NewInMemoryQueue(), new(MockRunner), nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.StartWorker(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on cancellation")
	}
}
