package jobs

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/amazon-search-scraper/internal/queue"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"

	maxListedJobs = 100
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrEmptyQuery  = errors.New("search query is required")
)

// Job is a scrape request submitted through the API.
type Job struct {
	ID            string     `json:"id"`
	SearchQuery   string     `json:"search_query"`
	MaxPages      int        `json:"max_pages"`
	Status        string     `json:"status"`
	ProductsFound int        `json:"products_found"`
	PricedFound   int        `json:"priced_found"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Error         string     `json:"error,omitempty"`
}

type Stats struct {
	TotalJobs     int     `json:"total_jobs"`
	PendingJobs   int     `json:"pending_jobs"`
	RunningJobs   int     `json:"running_jobs"`
	CompletedJobs int     `json:"completed_jobs"`
	FailedJobs    int     `json:"failed_jobs"`
	TotalProducts int     `json:"total_products"`
	SuccessRate   float64 `json:"success_rate"`
}

// Manager keeps the job registry and feeds new jobs into the queue.
type Manager struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	queue  queue.Queue
	runner QueryRunner
	logger *slog.Logger
}

func NewManager(q queue.Queue, r QueryRunner, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		jobs:   make(map[string]*Job),
		queue:  q,
		runner: r,
		logger: logger.With("component", "job_manager"),
	}
}

// CreateJob registers a pending job and queues it. maxPages < 1 leaves the
// page cap to the scraper configuration.
func (m *Manager) CreateJob(searchQuery string, maxPages int) (*Job, error) {
	searchQuery = strings.TrimSpace(searchQuery)
	if searchQuery == "" {
		return nil, ErrEmptyQuery
	}
	if maxPages < 0 {
		maxPages = 0
	}

	job := &Job{
		ID:          uuid.New().String(),
		SearchQuery: searchQuery,
		MaxPages:    maxPages,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	err := m.queue.Push(&queue.Task{
		ID:        job.ID,
		Query:     job.SearchQuery,
		MaxPages:  job.MaxPages,
		CreatedAt: job.CreatedAt,
	})
	if err != nil {
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to queue job: %w", err)
	}

	m.logger.Info("job created", "id", job.ID, "query", searchQuery, "max_pages", maxPages)

	snapshot := *job
	return &snapshot, nil
}

func (m *Manager) GetJob(jobID string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	snapshot := *job
	return &snapshot, nil
}

// ListJobs returns the most recent jobs, newest first.
func (m *Manager) ListJobs() []*Job {
	m.mu.RLock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		snapshot := *job
		jobs = append(jobs, &snapshot)
	}
	m.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if len(jobs) > maxListedJobs {
		jobs = jobs[:maxListedJobs]
	}
	return jobs
}

func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats Stats
	for _, job := range m.jobs {
		stats.TotalJobs++
		stats.TotalProducts += job.ProductsFound
		switch job.Status {
		case StatusPending:
			stats.PendingJobs++
		case StatusRunning:
			stats.RunningJobs++
		case StatusCompleted:
			stats.CompletedJobs++
		case StatusFailed:
			stats.FailedJobs++
		}
	}
	if stats.TotalJobs > 0 {
		stats.SuccessRate = float64(stats.CompletedJobs) / float64(stats.TotalJobs) * 100
	}
	return stats
}

func (m *Manager) update(jobID string, fn func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job, ok := m.jobs[jobID]; ok {
		fn(job)
	}
}
