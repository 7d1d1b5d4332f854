package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bobarin/codereel/internal/apperr"
	"github.com/bobarin/codereel/internal/models"
)

func (db *DB) CreateJob(ctx context.Context, job *models.Job) error {
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = job.CreatedAt

	query := `
		INSERT INTO jobs (
			id, status, language, external_problem_id, algo,
			playback_url, stream_uid, message, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(
		ctx, db.rebind(query),
		job.ID, job.Status, job.Language, job.ExternalProblemID, job.Algo,
		job.PlaybackURL, job.StreamUID, job.Message,
		job.CreatedAt.Unix(), job.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (db *DB) GetJob(ctx context.Context, id string) (*models.Job, error) {
	query := `
		SELECT
			id, status, language, external_problem_id, algo,
			playback_url, stream_uid, message, created_at, updated_at
		FROM jobs
		WHERE id = ?
	`

	var (
		job                  models.Job
		createdAt, updatedAt int64
	)
	err := db.QueryRowContext(ctx, db.rebind(query), id).Scan(
		&job.ID, &job.Status, &job.Language, &job.ExternalProblemID, &job.Algo,
		&job.PlaybackURL, &job.StreamUID, &job.Message, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "job %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	job.CreatedAt = time.Unix(createdAt, 0)
	job.UpdatedAt = time.Unix(updatedAt, 0)
	return &job, nil
}

// UpdateJob applies the non-nil fields of patch and bumps updated_at.
// Concurrent updates are last-write-wins.
func (db *DB) UpdateJob(ctx context.Context, id string, patch models.JobPatch) error {
	var (
		sets []string
		args []any
	)
	add := func(column string, v any) {
		sets = append(sets, column+" = ?")
		args = append(args, v)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.Algo != nil {
		add("algo", *patch.Algo)
	}
	if patch.PlaybackURL != nil {
		add("playback_url", *patch.PlaybackURL)
	}
	if patch.StreamUID != nil {
		add("stream_uid", *patch.StreamUID)
	}
	if patch.Message != nil {
		add("message", *patch.Message)
	}
	add("updated_at", time.Now().Unix())

	query := fmt.Sprintf(`UPDATE jobs SET %s WHERE id = ?`, strings.Join(sets, ", "))
	args = append(args, id)

	res, err := db.ExecContext(ctx, db.rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.Newf(apperr.KindNotFound, "job %s not found", id)
	}
	return nil
}
