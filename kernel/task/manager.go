package task

import "github.com/PinYu1618/snail/kernel/sync"

// TaskManager is a FIFO queue of ready tasks.
type TaskManager struct {
	ready []*TaskControlBlock
}

// Add appends t to the queue.
func (m *TaskManager) Add(t *TaskControlBlock) {
	m.ready = append(m.ready, t)
}

// Fetch pops the task at the front of the queue.
func (m *TaskManager) Fetch() (*TaskControlBlock, bool) {
	if len(m.ready) == 0 {
		return nil, false
	}
	t := m.ready[0]
	m.ready[0] = nil
	m.ready = m.ready[1:]
	return t, true
}

// Len returns the number of queued tasks.
func (m *TaskManager) Len() int { return len(m.ready) }

var manager = sync.NewUPSafeCell(TaskManager{})

// AddTask makes t ready to run.
func AddTask(t *TaskControlBlock) {
	manager.With(func(m *TaskManager) { m.Add(t) })
}

// FetchTask removes the next ready task from the queue.
func FetchTask() (*TaskControlBlock, bool) {
	var (
		t  *TaskControlBlock
		ok bool
	)
	manager.With(func(m *TaskManager) { t, ok = m.Fetch() })
	return t, ok
}
