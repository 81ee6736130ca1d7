package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/maltedev/amazon-search-scraper/internal/queue"
	"github.com/maltedev/amazon-search-scraper/internal/runner"
)

// QueryRunner scrapes and stores one query.
type QueryRunner interface {
	RunQuery(ctx context.Context, query string, pages int) runner.QueryResult
}

// StartWorker processes queued jobs one at a time until ctx is done or the
// queue is closed.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started")

	for {
		task, err := m.queue.Pop(ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrQueueClosed) && !errors.Is(err, context.Canceled) {
				m.logger.Error("failed to take job from queue", "error", err)
			}
			m.logger.Info("job worker stopping")
			return
		}

		m.processJob(ctx, task)
	}
}

func (m *Manager) processJob(ctx context.Context, task *queue.Task) {
	started := time.Now()
	m.update(task.ID, func(j *Job) {
		j.Status = StatusRunning
		j.StartedAt = &started
	})

	m.logger.Info("processing job", "id", task.ID, "query", task.Query)

	result := m.runner.RunQuery(ctx, task.Query, task.MaxPages)

	completed := time.Now()
	m.update(task.ID, func(j *Job) {
		j.ProductsFound = result.Products
		j.PricedFound = result.Priced
		j.CompletedAt = &completed
		if result.Err != nil {
			j.Status = StatusFailed
			j.Error = result.Err.Error()
			return
		}
		j.Status = StatusCompleted
	})

	if result.Err != nil {
		m.logger.Error("job failed", "id", task.ID, "query", task.Query, "error", result.Err)
		return
	}
	m.logger.Info("job completed", "id", task.ID, "query", task.Query, "products", result.Products, "duration", completed.Sub(started))
}
