package history

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/pdk-cli/pdk/internal/pipeline"
)

// RunRecord is a JobResult/StepResult rollup as recorded, for RecentRuns.
type RunRecord struct {
	RunID        string
	PipelineFile string
	PipelineName string
	Provider     string
	RunnerMode   string
	Success      bool
	StartedAt    time.Time
	CompletedAt  time.Time
	Duration     time.Duration
	Jobs         []JobRecord
}

// JobRecord is one job's recorded outcome.
type JobRecord struct {
	JobID    string
	Name     string
	Success  bool
	Skipped  bool
	Reason   string
	Error    string
	Duration time.Duration
	Steps    []StepRecord
}

// StepRecord is one step's recorded outcome.
type StepRecord struct {
	Name      string
	Success   bool
	Skipped   bool
	Cancelled bool
	ExitCode  int
	Error     string
	Reason    string
	Duration  time.Duration
}

// RecordRun appends one run's job/step results. started marks when the
// run began; the store stamps its own completion time.
func (s *Store) RecordRun(pipelineFile, pipelineName, provider, runnerMode string, success bool, jobs []*pipeline.JobResult, started time.Time) (string, error) {
	runID, err := newRunID()
	if err != nil {
		return "", fmt.Errorf("generating run id: %w", err)
	}
	completed := time.Now()

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("beginning run record transaction: %w", err)
	}

	var totalDuration time.Duration
	for _, j := range jobs {
		totalDuration += j.Duration
	}

	if _, err := tx.Exec(
		`INSERT INTO runs (run_id, pipeline_file, pipeline_name, provider, runner_mode, success, started_at, completed_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, pipelineFile, pipelineName, provider, runnerMode, boolToInt(success),
		started.Unix(), completed.Unix(), completed.Sub(started).Milliseconds(),
	); err != nil {
		_ = tx.Rollback()
		return "", fmt.Errorf("recording run: %w", err)
	}

	for _, j := range jobs {
		res, err := tx.Exec(
			`INSERT INTO jobs (run_id, job_id, name, success, skipped, reason, error, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, j.ID, j.Name, boolToInt(j.Success), boolToInt(j.Skipped), j.Reason, j.Error, j.Duration.Milliseconds(),
		)
		if err != nil {
			_ = tx.Rollback()
			return "", fmt.Errorf("recording job %q: %w", j.ID, err)
		}
		jobRowID, err := res.LastInsertId()
		if err != nil {
			_ = tx.Rollback()
			return "", fmt.Errorf("resolving job row id for %q: %w", j.ID, err)
		}
		for _, st := range j.Steps {
			if _, err := tx.Exec(
				`INSERT INTO steps (job_row_id, name, success, skipped, cancelled, exit_code, error, reason, duration_ms)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				jobRowID, st.Name, boolToInt(st.Success), boolToInt(st.Skipped), boolToInt(st.Cancelled),
				st.ExitCode, st.Error, st.Reason, st.Duration.Milliseconds(),
			); err != nil {
				_ = tx.Rollback()
				return "", fmt.Errorf("recording step %q: %w", st.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing run record: %w", err)
	}
	return runID, nil
}

// RecentRuns returns up to limit of the most recent runs recorded for
// pipelineFile, newest first, with their jobs and steps populated —
// backing `pdk list --history` (spec §6, SUPPLEMENTED FEATURES "Run
// history").
func (s *Store) RecentRuns(pipelineFile string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(
		`SELECT run_id, pipeline_file, pipeline_name, provider, runner_mode, success, started_at, completed_at, duration_ms
		 FROM runs WHERE pipeline_file = ? ORDER BY started_at DESC LIMIT ?`,
		pipelineFile, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var success int
		var startedAt, completedAt int64
		var durationMS int64
		if err := rows.Scan(&r.RunID, &r.PipelineFile, &r.PipelineName, &r.Provider, &r.RunnerMode, &success, &startedAt, &completedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Success = success != 0
		r.StartedAt = time.Unix(startedAt, 0)
		r.CompletedAt = time.Unix(completedAt, 0)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	for i := range out {
		jobs, err := s.jobsForRun(out[i].RunID)
		if err != nil {
			return nil, err
		}
		out[i].Jobs = jobs
	}
	return out, nil
}

func (s *Store) jobsForRun(runID string) ([]JobRecord, error) {
	rows, err := s.db.Query(
		`SELECT job_row_id, job_id, name, success, skipped, reason, error, duration_ms
		 FROM jobs WHERE run_id = ? ORDER BY job_row_id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying jobs for run %q: %w", runID, err)
	}
	defer rows.Close()

	type rowJob struct {
		rowID int64
		rec   JobRecord
	}
	var rowJobs []rowJob
	for rows.Next() {
		var rj rowJob
		var success, skipped int
		var durationMS int64
		if err := rows.Scan(&rj.rowID, &rj.rec.JobID, &rj.rec.Name, &success, &skipped, &rj.rec.Reason, &rj.rec.Error, &durationMS); err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		rj.rec.Success = success != 0
		rj.rec.Skipped = skipped != 0
		rj.rec.Duration = time.Duration(durationMS) * time.Millisecond
		rowJobs = append(rowJobs, rj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating jobs: %w", err)
	}

	out := make([]JobRecord, len(rowJobs))
	for i, rj := range rowJobs {
		steps, err := s.stepsForJob(rj.rowID)
		if err != nil {
			return nil, err
		}
		rec := rj.rec
		rec.Steps = steps
		out[i] = rec
	}
	return out, nil
}

func (s *Store) stepsForJob(jobRowID int64) ([]StepRecord, error) {
	rows, err := s.db.Query(
		`SELECT name, success, skipped, cancelled, exit_code, error, reason, duration_ms
		 FROM steps WHERE job_row_id = ? ORDER BY step_row_id ASC`,
		jobRowID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying steps for job row %d: %w", jobRowID, err)
	}
	defer rows.Close()

	var out []StepRecord
	for rows.Next() {
		var st StepRecord
		var success, skipped, cancelled int
		var durationMS int64
		if err := rows.Scan(&st.Name, &success, &skipped, &cancelled, &st.ExitCode, &st.Error, &st.Reason, &durationMS); err != nil {
			return nil, fmt.Errorf("scanning step: %w", err)
		}
		st.Success = success != 0
		st.Skipped = skipped != 0
		st.Cancelled = cancelled != 0
		st.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating steps: %w", err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func newRunID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
