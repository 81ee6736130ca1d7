package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/amazon-search-scraper/internal/jobs"
	"github.com/maltedev/amazon-search-scraper/internal/models"
)

type MockJobService struct {
	mock.Mock
}

func (m *MockJobService) CreateJob(searchQuery string, maxPages int) (*jobs.Job, error) {
	args := m.Called(searchQuery, maxPages)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobs.Job), args.Error(1)
}

func (m *MockJobService) GetJob(jobID string) (*jobs.Job, error) {
	args := m.Called(jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jobs.Job), args.Error(1)
}

func (m *MockJobService) ListJobs() []*jobs.Job {
	return m.Called().Get(0).([]*jobs.Job)
}

func (m *MockJobService) GetStats() jobs.Stats {
	return m.Called().Get(0).(jobs.Stats)
}

type MockProductSource struct {
	mock.Mock
}

func (m *MockProductSource) Products(ctx context.Context, query string) ([]models.Product, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Product), args.Error(1)
}

type stubOutbox struct {
	pending, dead int64
	err           error
}

func (s stubOutbox) GetPendingCount(context.Context) (int64, error)    { return s.pending, s.err }
func (s stubOutbox) GetDeadLetterCount(context.Context) (int64, error) { return s.dead, s.err }

func serve(t *testing.T, h *Handlers, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	NewRouter(h).ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestCreateJob(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		svc := new(MockJobService)
		svc.On("CreateJob", "wireless mouse", 3).Return(&jobs.Job{ID: "job-1", Status: jobs.StatusPending}, nil)

		rec := serve(t, NewHandlers(nil, svc, nil, nil), http.MethodPost, "/api/jobs",
			`{"search_query":"wireless mouse","max_pages":3}`)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		resp := decode[CreateJobResponse](t, rec)
		assert.Equal(t, "job-1", resp.JobID)
		assert.Equal(t, jobs.StatusPending, resp.Status)
		svc.AssertExpectations(t)
	})

	t.Run("malformed body", func(t *testing.T) {
		svc := new(MockJobService)
		rec := serve(t, NewHandlers(nil, svc, nil, nil), http.MethodPost, "/api/jobs", `{"search_query":`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid request body", decode[map[string]string](t, rec)["error"])
		svc.AssertNotCalled(t, "CreateJob", mock.Anything, mock.Anything)
	})

	t.Run("missing query", func(t *testing.T) {
		svc := new(MockJobService)
		svc.On("CreateJob", "", 0).Return(nil, jobs.ErrEmptyQuery)

		rec := serve(t, NewHandlers(nil, svc, nil, nil), http.MethodPost, "/api/jobs", `{}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "search_query is required", decode[map[string]string](t, rec)["error"])
	})

	t.Run("queue failure", func(t *testing.T) {
		svc := new(MockJobService)
		svc.On("CreateJob", "mouse", 0).Return(nil, errors.New("queue closed"))

		rec := serve(t, NewHandlers(nil, svc, nil, nil), http.MethodPost, "/api/jobs", `{"search_query":"mouse"}`)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestGetJob(t *testing.T) {
	svc := new(MockJobService)
	svc.On("GetJob", "job-1").Return(&jobs.Job{ID: "job-1", SearchQuery: "hub", Status: jobs.StatusCompleted, ProductsFound: 12}, nil)
	svc.On("GetJob", "missing").Return(nil, jobs.ErrJobNotFound)
	h := NewHandlers(nil, svc, nil, nil)

	rec := serve(t, h, http.MethodGet, "/api/jobs/job-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	job := decode[jobs.Job](t, rec)
	assert.Equal(t, "hub", job.SearchQuery)
	assert.Equal(t, 12, job.ProductsFound)

	rec = serve(t, h, http.MethodGet, "/api/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Job not found", decode[map[string]string](t, rec)["error"])
}

func TestListJobsAndStats(t *testing.T) {
	svc := new(MockJobService)
	svc.On("ListJobs").Return([]*jobs.Job{{ID: "b", CreatedAt: time.Now()}, {ID: "a"}})
	svc.On("GetStats").Return(jobs.Stats{TotalJobs: 2, CompletedJobs: 1, SuccessRate: 50})
	h := NewHandlers(nil, svc, nil, nil)

	rec := serve(t, h, http.MethodGet, "/api/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[[]jobs.Job](t, rec)
	require.Len(t, listed, 2)
	assert.Equal(t, "b", listed[0].ID)

	rec = serve(t, h, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[jobs.Stats](t, rec)
	assert.Equal(t, 2, stats.TotalJobs)
	assert.InDelta(t, 50.0, stats.SuccessRate, 1e-9)
}

func TestListProducts(t *testing.T) {
	price := 19.99
	mouse := models.Product{Title: "Wireless Mouse", Price: &price, SearchQuery: "mouse"}

	t.Run("filtered by query", func(t *testing.T) {
		src := new(MockProductSource)
		src.On("Products", mock.Anything, "mouse").Return([]models.Product{mouse}, nil)

		rec := serve(t, NewHandlers(src, nil, nil, nil), http.MethodGet, "/api/products?query=mouse", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("X-Total-Count"))
		assert.True(t, strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "["))

		products := decode[[]models.Product](t, rec)
		require.Len(t, products, 1)
		assert.Equal(t, "Wireless Mouse", products[0].Title)
		require.NotNil(t, products[0].Price)
		assert.InDelta(t, 19.99, *products[0].Price, 1e-9)
	})

	t.Run("nothing stored", func(t *testing.T) {
		src := new(MockProductSource)
		src.On("Products", mock.Anything, "").Return(nil, nil)

		rec := serve(t, NewHandlers(src, nil, nil, nil), http.MethodGet, "/api/products", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
		assert.Equal(t, "0", rec.Header().Get("X-Total-Count"))
	})

	t.Run("source failure", func(t *testing.T) {
		src := new(MockProductSource)
		src.On("Products", mock.Anything, "").Return(nil, errors.New("disk gone"))

		rec := serve(t, NewHandlers(src, nil, nil, nil), http.MethodGet, "/api/products", "")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		outbox     OutboxMonitor
		wantCode   int
		wantStatus string
	}{
		{"no relay", nil, http.StatusOK, "ok"},
		{"healthy relay", stubOutbox{pending: 3}, http.StatusOK, "ok"},
		{"pending backlog", stubOutbox{pending: 1001}, http.StatusOK, "warning"},
		{"dead letters", stubOutbox{pending: 1001, dead: 101}, http.StatusServiceUnavailable, "error"},
		{"outbox unreachable", stubOutbox{err: errors.New("db down")}, http.StatusServiceUnavailable, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, NewHandlers(nil, nil, tt.outbox, nil), http.MethodGet, "/health", "")

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantStatus, decode[map[string]any](t, rec)["status"])
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/jobs", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()

	NewRouter(NewHandlers(nil, new(MockJobService), nil, nil)).ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
