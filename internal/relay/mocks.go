package relay

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/ostraco/sendonce"
	"github.com/ostraco/sendonce/receiver"
)

// MockJobStore is a map-backed JobStore for tests. Default behavior mimics
// the real store; individual methods can be overridden via the Fn fields.
type MockJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job

	CreateJobFn          func(ctx context.Context, job *Job) error
	FindJobByRequestIDFn func(ctx context.Context, requestID string) (*Job, error)
	UpdateJobFn          func(ctx context.Context, job *Job) error
	FindDueJobsFn        func(ctx context.Context, limit int) ([]*Job, error)
	CountPendingFn       func(ctx context.Context) (int64, error)
	DeleteFinishedJobsFn func(ctx context.Context, olderThan time.Duration) (int64, error)
}

func NewMockJobStore() *MockJobStore {
	return &MockJobStore{
		jobs: make(map[string]*Job),
	}
}

func (m *MockJobStore) CreateJob(ctx context.Context, job *Job) error {
	if m.CreateJobFn != nil {
		return m.CreateJobFn(ctx, job)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.RequestID]; ok {
		return ErrJobExists
	}
	m.jobs[job.RequestID] = job
	return nil
}

func (m *MockJobStore) FindJobByRequestID(ctx context.Context, requestID string) (*Job, error) {
	if m.FindJobByRequestIDFn != nil {
		return m.FindJobByRequestIDFn(ctx, requestID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if job, ok := m.jobs[requestID]; ok {
		return job, nil
	}
	return nil, ErrJobNotFound
}

func (m *MockJobStore) UpdateJob(ctx context.Context, job *Job) error {
	if m.UpdateJobFn != nil {
		return m.UpdateJobFn(ctx, job)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.RequestID]; !ok {
		return ErrJobNotFound
	}
	m.jobs[job.RequestID] = job
	return nil
}

func (m *MockJobStore) FindDueJobs(ctx context.Context, limit int) ([]*Job, error) {
	if m.FindDueJobsFn != nil {
		return m.FindDueJobsFn(ctx, limit)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	var due []*Job
	for _, job := range m.jobs {
		if job.Status != StatusPending {
			continue
		}
		if job.NextRetryAt != nil && job.NextRetryAt.After(now) {
			continue
		}
		due = append(due, job)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *MockJobStore) CountPending(ctx context.Context) (int64, error) {
	if m.CountPendingFn != nil {
		return m.CountPendingFn(ctx)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, job := range m.jobs {
		if job.Status == StatusPending {
			n++
		}
	}
	return n, nil
}

func (m *MockJobStore) DeleteFinishedJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	if m.DeleteFinishedJobsFn != nil {
		return m.DeleteFinishedJobsFn(ctx, olderThan)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var n int64
	for id, job := range m.jobs {
		if job.Finished() && job.UpdatedAt.Before(cutoff) {
			delete(m.jobs, id)
			n++
		}
	}
	return n, nil
}

// Seed stores a job directly, bypassing the uniqueness check.
func (m *MockJobStore) Seed(job *Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.RequestID] = job
}

// MockSender is a scripted Sender for tests.
type MockSender struct {
	mu    sync.Mutex
	calls int

	SendFn func(ctx context.Context, req sendonce.Request[json.RawMessage]) (*receiver.Receipt, error)
}

func (m *MockSender) Send(ctx context.Context, req sendonce.Request[json.RawMessage]) (*receiver.Receipt, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.SendFn != nil {
		return m.SendFn(ctx, req)
	}
	return &receiver.Receipt{
		RequestID:  req.ID,
		Status:     "received",
		ReceivedAt: time.Now(),
	}, nil
}

func (m *MockSender) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
