package server

import (
	"sync"
	"time"

	"github.com/joseph-ayodele/claims-processor/constants"
	"github.com/joseph-ayodele/claims-processor/internal/async"
	"github.com/joseph-ayodele/claims-processor/internal/claims"
)

// JobView is what GET /jobs/{id} returns.
type JobView struct {
	JobID      string                `json:"job_id"`
	Name       string                `json:"name,omitempty"`
	Status     constants.JobStatus   `json:"status"`
	ClaimID    string                `json:"claim_id,omitempty"`
	Decision   *claims.ClaimDecision `json:"claim_decision,omitempty"`
	Error      string                `json:"error,omitempty"`
	FinishedAt *time.Time            `json:"finished_at,omitempty"`
}

// Finished reports whether the job reached a terminal state.
func (v JobView) Finished() bool {
	return v.Status == constants.JobStatusDone || v.Status == constants.JobStatusFailed
}

// JobTracker remembers queued jobs and their outcomes. Record is meant to be the
// queue's completion callback. Finished jobs are forgotten once older than the TTL.
type JobTracker struct {
	mu   sync.RWMutex
	jobs map[string]JobView
	ttl  time.Duration
	now  func() time.Time
}

func NewJobTracker() *JobTracker {
	return NewJobTrackerWithTTL(async.DefaultStatusTTL)
}

// NewJobTrackerWithTTL keeps finished jobs for ttl; ttl <= 0 uses the default.
func NewJobTrackerWithTTL(ttl time.Duration) *JobTracker {
	if ttl <= 0 {
		ttl = async.DefaultStatusTTL
	}
	return &JobTracker{jobs: make(map[string]JobView), ttl: ttl, now: time.Now}
}

// Queued registers a submitted job unless its outcome already arrived.
func (t *JobTracker) Queued(id, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.jobs[id]; ok {
		if v.Name == "" {
			v.Name = name
			t.jobs[id] = v
		}
		return
	}
	t.jobs[id] = JobView{JobID: id, Name: name, Status: constants.JobStatusQueued}
}

// Record stores a finished job.
func (t *JobTracker) Record(out async.Outcome) {
	now := t.now().UTC()
	v := JobView{
		JobID:      out.Job.ID,
		Name:       out.Job.Name,
		Status:     out.Status,
		FinishedAt: &now,
	}
	if out.Err != nil {
		v.Error = out.Err.Error()
	}
	if out.Result.ClaimID != "" {
		v.ClaimID = out.Result.ClaimID
		d := out.Result.Decision
		v.Decision = &d
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[out.Job.ID] = v
	for id, j := range t.jobs {
		if j.FinishedAt != nil && now.Sub(*j.FinishedAt) > t.ttl {
			delete(t.jobs, id)
		}
	}
}

func (t *JobTracker) Get(id string) (JobView, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.jobs[id]
	return v, ok
}
