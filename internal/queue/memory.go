package queue

import (
	"context"
	"sync"
)

var _ Queue = (*Memory)(nil)

// Memory is the in-process queue. Pending tasks are inspectable, which is
// what makes the saved-fields union on duplicate enqueue possible.
type Memory struct {
	mu    sync.Mutex
	tasks []*Task
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Enqueue(ctx context.Context, task *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, task)
	return nil
}

func (m *Memory) FindPending(predicate func(*Task) bool) *Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, task := range m.tasks {
		if predicate(task) {
			return task
		}
	}
	return nil
}

func (m *Memory) Dequeue(ctx context.Context) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tasks) == 0 {
		return nil, nil
	}
	task := m.tasks[0]
	m.tasks = m.tasks[1:]
	return task, nil
}

// Len reports the number of pending tasks.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}
