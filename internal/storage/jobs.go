package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateJob records a freshly submitted job with status queued.
func (s *Store) CreateJob(j Job) error {
	status := j.Status
	if status == "" {
		status = JobQueued
	}
	createdAt := j.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, type, status, params_json, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		j.ID, j.Type, status, j.ParamsJSON, createdAt.Format(time.RFC3339),
	)
	return err
}

// DeleteJob removes a job record. Only used to roll back a submission whose
// queue hand-off failed; the worker never deletes jobs.
func (s *Store) DeleteJob(id string) error {
	res, err := s.db.Exec(`DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkJobRunning transitions a queued job to in_progress. The guarded WHERE
// keeps the transition monotonic: a terminal job can never go back to
// running.
func (s *Store) MarkJobRunning(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`
		UPDATE jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		JobInProgress, now, id, JobQueued,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return nil
}

// CompleteJob transitions a running job to completed and stores its result.
func (s *Store) CompleteJob(id string, resultJSON string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`
		UPDATE jobs SET status = ?, result_json = ?, finished_at = ? WHERE id = ? AND status = ?`,
		JobCompleted, resultJSON, now, id, JobInProgress,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return nil
}

// FailJob transitions a job to failed with a captured error description and
// an error-shaped result. Jobs are failed from the queued state too, for
// submissions whose resources never came up.
func (s *Store) FailJob(id string, errMsg string, resultJSON string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`
		UPDATE jobs SET status = ?, error = ?, result_json = ?, finished_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		JobFailed, errMsg, resultJSON, now, id, JobQueued, JobInProgress,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetJob returns a job record by id.
func (s *Store) GetJob(id string) (Job, error) {
	var j Job
	var createdAt string
	var startedAt, finishedAt sql.NullString
	err := s.db.QueryRow(`
		SELECT id, type, status, params_json, result_json, error, created_at, started_at, finished_at
		FROM jobs WHERE id = ?`, id,
	).Scan(&j.ID, &j.Type, &j.Status, &j.ParamsJSON, &j.ResultJSON, &j.Error, &createdAt, &startedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, err
	}
	if err := fillJobTimes(&j, createdAt, startedAt, finishedAt); err != nil {
		return Job{}, err
	}
	return j, nil
}

// ListJobs returns the most recently created jobs first.
func (s *Store) ListJobs(limit int) ([]Job, error) {
	rows, err := s.db.Query(`
		SELECT id, type, status, params_json, result_json, error, created_at, started_at, finished_at
		FROM jobs ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Job
	for rows.Next() {
		var j Job
		var createdAt string
		var startedAt, finishedAt sql.NullString
		if err := rows.Scan(&j.ID, &j.Type, &j.Status, &j.ParamsJSON, &j.ResultJSON, &j.Error, &createdAt, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		if err := fillJobTimes(&j, createdAt, startedAt, finishedAt); err != nil {
			return nil, err
		}
		results = append(results, j)
	}
	return results, rows.Err()
}

func fillJobTimes(j *Job, createdAt string, startedAt, finishedAt sql.NullString) error {
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	j.CreatedAt = t

	if startedAt.Valid {
		t, err := time.Parse(time.RFC3339, startedAt.String)
		if err != nil {
			return fmt.Errorf("parsing started_at for job %s: %w", j.ID, err)
		}
		j.StartedAt = &t
	}
	if finishedAt.Valid {
		t, err := time.Parse(time.RFC3339, finishedAt.String)
		if err != nil {
			return fmt.Errorf("parsing finished_at for job %s: %w", j.ID, err)
		}
		j.FinishedAt = &t
	}
	return nil
}
