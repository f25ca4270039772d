package tui

import "sync"

// JobStatus is a tracked job's lifecycle state for live progress display.
type JobStatus int

const (
	JobPending JobStatus = iota
	JobRunning
	JobSuccess
	JobFailed
	JobSkipped
)

func (s JobStatus) String() string {
	switch s {
	case JobRunning:
		return "running"
	case JobSuccess:
		return "success"
	case JobFailed:
		return "failed"
	case JobSkipped:
		return "skipped"
	default:
		return "pending"
	}
}

// Icon renders the glyph a progress line shows for this status.
func (s JobStatus) Icon() string {
	switch s {
	case JobRunning:
		return WarningStyle.Render("◐")
	case JobSuccess:
		return SuccessStyle.Render("✓")
	case JobFailed:
		return ErrorStyle.Render("✗")
	case JobSkipped:
		return MutedStyle.Render("⊘")
	default:
		return MutedStyle.Render("○")
	}
}

// TrackedJob is one job's live display state.
type TrackedJob struct {
	ID     string
	Name   string
	Status JobStatus
}

// JobTracker holds per-job display state for a running pipeline,
// updated as the scheduler emits job start/finish/skip events.
type JobTracker struct {
	mu      sync.RWMutex
	jobs    []*TrackedJob
	byID    map[string]*TrackedJob
}

// NewJobTracker seeds one pending TrackedJob per job ID, in order.
func NewJobTracker(ids []string, names map[string]string) *JobTracker {
	t := &JobTracker{
		jobs: make([]*TrackedJob, 0, len(ids)),
		byID: make(map[string]*TrackedJob, len(ids)),
	}
	for _, id := range ids {
		name := names[id]
		if name == "" {
			name = id
		}
		tj := &TrackedJob{ID: id, Name: name, Status: JobPending}
		t.jobs = append(t.jobs, tj)
		t.byID[id] = tj
	}
	return t
}

// Start marks a job running, returning true if its status changed.
func (t *JobTracker) Start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	job := t.byID[id]
	if job == nil || job.Status != JobPending {
		return false
	}
	job.Status = JobRunning
	return true
}

// Finish marks a job success or failed, returning true if its status
// changed.
func (t *JobTracker) Finish(id string, success bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	job := t.byID[id]
	if job == nil || (job.Status != JobRunning && job.Status != JobPending) {
		return false
	}
	if success {
		job.Status = JobSuccess
	} else {
		job.Status = JobFailed
	}
	return true
}

// Skip marks a pending job skipped, returning true if its status
// changed.
func (t *JobTracker) Skip(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	job := t.byID[id]
	if job == nil || job.Status != JobPending {
		return false
	}
	job.Status = JobSkipped
	return true
}

// Jobs returns every tracked job in declared order.
func (t *JobTracker) Jobs() []*TrackedJob {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*TrackedJob, len(t.jobs))
	copy(out, t.jobs)
	return out
}

// Render renders one line per tracked job: icon, name, status word.
func (t *JobTracker) Render() string {
	jobs := t.Jobs()
	out := ""
	for i, j := range jobs {
		if i > 0 {
			out += "\n"
		}
		out += j.Status.Icon() + " " + PrimaryStyle.Render(j.Name) + " " + MutedStyle.Render(j.Status.String())
	}
	return out
}
