package operations

import (
	"sync"
	"time"

	"esgpanel/internal/dataset"
	"esgpanel/internal/profile"
	"esgpanel/internal/report"
)

// RunStatus represents the overall run status
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunState is the complete state of one pipeline run. Stages hand data to
// each other through the typed artifact fields rather than an untyped bag,
// so a stage reading an artifact the previous stage never produced is a
// compile error, not a runtime surprise.
type RunState struct {
	mu sync.RWMutex

	ID        string     `json:"id"`
	Status    RunStatus  `json:"status"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	Stages map[string]*StageState `json:"stages"`

	// Artifacts produced along the run
	raw     *dataset.Panel
	clean   *dataset.Panel
	audit   *profile.Report
	results *report.Results

	Error error `json:"error,omitempty"`
}

// NewRunState creates a new run state
func NewRunState(id string) *RunState {
	return &RunState{
		ID:        id,
		Status:    RunStatusPending,
		StartTime: time.Now(),
		Stages:    make(map[string]*StageState),
	}
}

// Start marks the run as running
func (r *RunState) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = RunStatusRunning
	r.StartTime = time.Now()
}

// Complete marks the run as completed
func (r *RunState) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.EndTime = &now
	r.Status = RunStatusCompleted
}

// Fail marks the run as failed
func (r *RunState) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.EndTime = &now
	r.Status = RunStatusFailed
	r.Error = err
}

// Cancel marks the run as cancelled
func (r *RunState) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.EndTime = &now
	r.Status = RunStatusCancelled
}

// GetStatus returns the current run status under the read lock
func (r *RunState) GetStatus() RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status
}

// GetStage returns the state of a specific stage
func (r *RunState) GetStage(stageID string) *StageState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Stages[stageID]
}

// SetStage updates the state of a specific stage
func (r *RunState) SetStage(stageID string, state *StageState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Stages[stageID] = state
}

// RawPanel returns the panel as ingested, before any transformation.
func (r *RunState) RawPanel() *dataset.Panel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.raw
}

// SetRawPanel stores the ingested panel.
func (r *RunState) SetRawPanel(p *dataset.Panel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.raw = p
}

// CleanPanel returns the transformed estimation panel.
func (r *RunState) CleanPanel() *dataset.Panel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clean
}

// SetCleanPanel stores the transformed estimation panel.
func (r *RunState) SetCleanPanel(p *dataset.Panel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clean = p
}

// Audit returns the data quality report.
func (r *RunState) Audit() *profile.Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.audit
}

// SetAudit stores the data quality report.
func (r *RunState) SetAudit(rep *profile.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audit = rep
}

// Results returns the accumulating results bundle.
func (r *RunState) Results() *report.Results {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.results
}

// SetResults stores the results bundle.
func (r *RunState) SetResults(res *report.Results) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = res
}

// Duration returns the duration of the run
func (r *RunState) Duration() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.EndTime != nil {
		return r.EndTime.Sub(r.StartTime)
	}
	return time.Since(r.StartTime)
}

// HasFailures returns true if any stage has failed
func (r *RunState) HasFailures() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, stage := range r.Stages {
		if stage.GetStatus() == StageStatusFailed {
			return true
		}
	}
	return false
}
