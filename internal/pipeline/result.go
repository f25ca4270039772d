package pipeline

import "time"

// StepResult is produced by the scheduler for one executed (or skipped)
// step. It embeds no live pointers into the owning Step - only copied
// display data - per the §3 lifecycle/ownership invariant.
type StepResult struct {
	Name      string
	Success   bool
	Error     string
	Duration  time.Duration
	ExitCode  int
	Output    string
	Reason    string // why it ran, was skipped, or was gated
	Skipped   bool
	Cancelled bool
}

// JobResult is produced by the scheduler for one job.
type JobResult struct {
	ID       string
	Name     string
	Success  bool
	Error    string
	Duration time.Duration
	Skipped  bool
	Reason   string
	Steps    []*StepResult
}

// AllSucceeded reports whether every executed (non-skipped) step in the
// job succeeded. A failed continue-on-error step counts as a failure here,
// since StepResult does not record the step's continue-on-error setting.
func (j *JobResult) AllSucceeded() bool {
	for _, s := range j.Steps {
		if s.Skipped {
			continue
		}
		if !s.Success {
			return false
		}
	}
	return true
}
