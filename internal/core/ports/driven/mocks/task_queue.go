package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/persona-core/internal/core/domain"
	"github.com/custodia-labs/persona-core/internal/core/ports/driven"
)

// MockTaskQueue is an in-memory FIFO implementation of TaskQueue for testing
type MockTaskQueue struct {
	mu         sync.Mutex
	pending    []*domain.Task
	processing map[string]*domain.Task
	failed     map[string]*domain.Task
	tasks      map[string]*domain.Task
}

// NewMockTaskQueue creates a new MockTaskQueue
func NewMockTaskQueue() *MockTaskQueue {
	return &MockTaskQueue{
		processing: make(map[string]*domain.Task),
		failed:     make(map[string]*domain.Task),
		tasks:      make(map[string]*domain.Task),
	}
}

func (m *MockTaskQueue) Enqueue(ctx context.Context, task *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, task)
	m.tasks[task.ID] = task
	return nil
}

func (m *MockTaskQueue) Dequeue(ctx context.Context) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pending) == 0 {
		return nil, nil
	}
	task := m.pending[0]
	m.pending = m.pending[1:]
	task.MarkProcessing()
	m.processing[task.ID] = task
	return task, nil
}

func (m *MockTaskQueue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	return m.Dequeue(ctx)
}

func (m *MockTaskQueue) Ack(ctx context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.processing[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	task.MarkCompleted()
	delete(m.processing, taskID)
	return nil
}

func (m *MockTaskQueue) Nack(ctx context.Context, taskID string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.processing[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	delete(m.processing, taskID)

	if task.CanRetry() {
		task.Retry(reason)
		m.pending = append(m.pending, task)
	} else {
		task.MarkFailed(reason)
		m.failed[taskID] = task
	}
	return nil
}

func (m *MockTaskQueue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return task, nil
}

func (m *MockTaskQueue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return &driven.QueueStats{
		PendingCount:    int64(len(m.pending)),
		ProcessingCount: int64(len(m.processing)),
		FailedCount:     int64(len(m.failed)),
	}, nil
}

func (m *MockTaskQueue) Ping(ctx context.Context) error {
	return nil
}

func (m *MockTaskQueue) Close() error {
	return nil
}
