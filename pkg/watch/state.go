package watch

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Sriram-PR/amazon-crawler/pkg/models"
	"github.com/Sriram-PR/amazon-crawler/pkg/utils"
)

// ScheduleState contains the persistent state of the task scheduler
type ScheduleState struct {
	Tasks     map[string]models.TaskRunState `json:"tasks"`
	UpdatedAt time.Time                      `json:"updated_at"`
}

// StateManager handles persisting and loading schedule state
type StateManager struct {
	statePath string
	state     ScheduleState
	mu        sync.RWMutex
}

// NewStateManager creates a state manager writing to statePath
func NewStateManager(statePath string) *StateManager {
	return &StateManager{
		statePath: statePath,
		state:     ScheduleState{Tasks: make(map[string]models.TaskRunState)},
	}
}

// Path returns the state file location
func (m *StateManager) Path() string { return m.statePath }

// Load loads the state from disk. A missing file starts fresh.
func (m *StateManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			m.state = ScheduleState{Tasks: make(map[string]models.TaskRunState)}
			return nil
		}
		return utils.WrapErrorf(utils.ErrFilesystem, "read state file %s: %v", m.statePath, err)
	}

	var loaded ScheduleState
	if err := json.Unmarshal(data, &loaded); err != nil {
		return utils.WrapErrorf(utils.ErrParsing, "JSON state file %s: %v", m.statePath, err)
	}
	if loaded.Tasks == nil {
		loaded.Tasks = make(map[string]models.TaskRunState)
	}
	m.state = loaded
	return nil
}

// Save writes the state to disk
func (m *StateManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.UpdatedAt = time.Now()

	if err := os.MkdirAll(filepath.Dir(m.statePath), 0755); err != nil {
		return utils.WrapErrorf(utils.ErrFilesystem, "create state directory: %v", err)
	}
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return utils.WrapErrorf(utils.ErrParsing, "JSON marshal state: %v", err)
	}
	tmp := m.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return utils.WrapErrorf(utils.ErrFilesystem, "write state file: %v", err)
	}
	if err := os.Rename(tmp, m.statePath); err != nil {
		return utils.WrapErrorf(utils.ErrFilesystem, "replace state file: %v", err)
	}
	return nil
}

// Get returns the last run of a task
func (m *StateManager) Get(name string) (models.TaskRunState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.state.Tasks[name]
	return st, ok
}

// Record stores the outcome of a seeding run
func (m *StateManager) Record(st models.TaskRunState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Tasks[st.Name] = st
}

// ShouldRun reports whether a task with the given period is due at now
func (m *StateManager) ShouldRun(name string, period time.Duration, now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.state.Tasks[name]
	if !ok || st.LastRun.IsZero() {
		return true
	}
	return !now.Before(st.LastRun.Add(period))
}

// NextRunTime returns when the task is next due
func (m *StateManager) NextRunTime(name string, period time.Duration, now time.Time) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.state.Tasks[name]
	if !ok || st.LastRun.IsZero() {
		return now
	}
	return st.LastRun.Add(period)
}

// All returns a copy of every task state
func (m *StateManager) All() map[string]models.TaskRunState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]models.TaskRunState, len(m.state.Tasks))
	for k, v := range m.state.Tasks {
		result[k] = v
	}
	return result
}
