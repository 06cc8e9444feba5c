package scheduler

import (
	"sort"
	"sync"
	"time"
)

type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateError   State = "error"
)

// TaskStatus is diagnostic state for one named task. It lives only as long
// as the scheduler that owns it.
type TaskStatus struct {
	Name      string     `json:"name"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	Running   bool       `json:"is_running"`
	Status    State      `json:"status"`
	LastError string     `json:"last_error,omitempty"`
}

// StatusTable tracks task states and guards against a task running twice.
type StatusTable struct {
	mu    sync.Mutex
	tasks map[string]*TaskStatus
}

func NewStatusTable() *StatusTable {
	return &StatusTable{tasks: make(map[string]*TaskStatus)}
}

func (t *StatusTable) entry(name string) *TaskStatus {
	s, ok := t.tasks[name]
	if !ok {
		s = &TaskStatus{Name: name, Status: StateIdle}
		t.tasks[name] = s
	}
	return s
}

// Begin marks the task running. It returns false without changing anything
// if the task is already running.
func (t *StatusTable) Begin(name string, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.entry(name)
	if s.Running {
		return false
	}
	s.Running = true
	s.Status = StateRunning
	s.LastRun = &at
	return true
}

// Finish clears the running flag and records the outcome.
func (t *StatusTable) Finish(name string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.entry(name)
	s.Running = false
	if err != nil {
		s.Status = StateError
		s.LastError = err.Error()
		return
	}
	s.Status = StateIdle
	s.LastError = ""
}

func (t *StatusTable) SetNextRun(name string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entry(name).NextRun = &at
}

// Get returns a copy of one task's status.
func (t *StatusTable) Get(name string) (TaskStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.tasks[name]
	if !ok {
		return TaskStatus{}, false
	}
	return *s, true
}

// Snapshot returns copies of every status, sorted by name.
func (t *StatusTable) Snapshot() []TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TaskStatus, 0, len(t.tasks))
	for _, s := range t.tasks {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
