package jobs

import (
	"fmt"
	"sync"
)

// Session is the serializable view of a Registry. NeedsAuthorization is owned
// by the authorization gate and carried here so it persists with the jobs.
type Session struct {
	Jobs               []Job  `json:"jobs"`
	SelectedJobID      string `json:"selected_job_id,omitempty"`
	NeedsAuthorization bool   `json:"needs_authorization"`
}

// Registry holds the jobs of one session, newest first, plus the selection cursor.
type Registry struct {
	mu       sync.RWMutex
	jobs     []Job
	selected string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Insert places a new job at the front of the list.
func (r *Registry) Insert(job Job) error {
	if job.ID == "" {
		return fmt.Errorf("insert job: id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexLocked(job.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateID, job.ID)
	}
	r.jobs = append([]Job{job.Clone()}, r.jobs...)
	return nil
}

// UpdateStatus moves a job along a legal edge of the status graph. Terminal
// statuses carry outcome fields, so done and error go through Update with
// Job.Complete or Job.Fail.
func (r *Registry) UpdateStatus(id string, status Status) (Job, error) {
	return r.Update(id, func(job *Job) error {
		return job.transition(status)
	})
}

// Update applies fn to a copy of the job and stores the result when fn
// succeeds. Status changes made by fn must still follow the status graph.
func (r *Registry) Update(id string, fn func(*Job) error) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexLocked(id)
	if idx < 0 {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	current := r.jobs[idx]
	next := current.Clone()
	if err := fn(&next); err != nil {
		return current.Clone(), err
	}
	if next.ID != current.ID {
		return current.Clone(), fmt.Errorf("update job %s: id is immutable", id)
	}
	if next.Status != current.Status && !legalChange(current.Status, next.Status) {
		return current.Clone(), fmt.Errorf("%w: job %s %s -> %s", ErrIllegalTransition, id, current.Status, next.Status)
	}
	if err := checkOutcome(next); err != nil {
		return current.Clone(), err
	}
	r.jobs[idx] = next
	return next.Clone(), nil
}

// checkOutcome keeps resultRef present iff done and errorKind present iff error.
func checkOutcome(job Job) error {
	switch {
	case job.Status == StatusDone && job.ResultRef == "":
		return fmt.Errorf("job %s: done without result handle", job.ID)
	case job.Status != StatusDone && job.ResultRef != "":
		return fmt.Errorf("job %s: result handle on %s job", job.ID, job.Status)
	case job.Status == StatusError && job.ErrorKind == ErrorKindNone:
		return fmt.Errorf("job %s: error without classification", job.ID)
	case job.Status != StatusError && job.ErrorKind != ErrorKindNone:
		return fmt.Errorf("job %s: error kind on %s job", job.ID, job.Status)
	}
	return nil
}

// legalChange admits the per-attempt edges plus the error -> queued reopen.
func legalChange(from, to Status) bool {
	return CanTransition(from, to) || (from == StatusError && to == StatusQueued)
}

// Get returns a copy of the job with the given id.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := r.indexLocked(id)
	if idx < 0 {
		return Job{}, false
	}
	return r.jobs[idx].Clone(), true
}

// Select moves the cursor to id. Unknown ids leave the cursor unchanged.
func (r *Registry) Select(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexLocked(id) < 0 {
		return false
	}
	r.selected = id
	return true
}

// Selected returns the job under the cursor.
func (r *Registry) Selected() (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.selected == "" {
		return Job{}, false
	}
	idx := r.indexLocked(r.selected)
	if idx < 0 {
		return Job{}, false
	}
	return r.jobs[idx].Clone(), true
}

// Remove deletes a job and clears the cursor if it pointed at it.
func (r *Registry) Remove(id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexLocked(id)
	if idx < 0 {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	removed := r.jobs[idx]
	r.jobs = append(r.jobs[:idx:idx], r.jobs[idx+1:]...)
	if r.selected == id {
		r.selected = ""
	}
	return removed, nil
}

// List returns copies of all jobs, newest first.
func (r *Registry) List() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job.Clone())
	}
	return out
}

// Len reports the number of jobs held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// ActiveForSource reports whether any queued or processing job was created
// for the given source asset.
func (r *Registry) ActiveForSource(assetID string) bool {
	if assetID == "" {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, job := range r.jobs {
		if job.SourceAssetID == assetID && job.IsActive() {
			return true
		}
	}
	return false
}

// Active returns the jobs with an attempt in flight, newest first.
func (r *Registry) Active() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Job
	for _, job := range r.jobs {
		if job.IsActive() {
			out = append(out, job.Clone())
		}
	}
	return out
}

// Reset drops every job and clears the cursor.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = nil
	r.selected = ""
}

// Snapshot captures the registry for persistence.
func (r *Registry) Snapshot() Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session := Session{
		Jobs:          make([]Job, 0, len(r.jobs)),
		SelectedJobID: r.selected,
	}
	for _, job := range r.jobs {
		session.Jobs = append(session.Jobs, job.Clone())
	}
	return session
}

// Restore replaces the registry contents with a persisted session. A cursor
// naming a missing job is dropped.
func (r *Registry) Restore(session Session) error {
	seen := make(map[string]struct{}, len(session.Jobs))
	jobs := make([]Job, 0, len(session.Jobs))
	for _, job := range session.Jobs {
		if job.ID == "" {
			return fmt.Errorf("restore session: job without id")
		}
		if _, dup := seen[job.ID]; dup {
			return fmt.Errorf("restore session: %w: %s", ErrDuplicateID, job.ID)
		}
		seen[job.ID] = struct{}{}
		jobs = append(jobs, job.Clone())
	}
	selected := session.SelectedJobID
	if _, ok := seen[selected]; !ok {
		selected = ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = jobs
	r.selected = selected
	return nil
}

func (r *Registry) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range r.jobs {
		if r.jobs[i].ID == id {
			return i
		}
	}
	return -1
}
