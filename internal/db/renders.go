package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/bobarin/shortform/internal/apperr"
	"github.com/bobarin/shortform/internal/models"
)

// Recorder keeps a history row per render request.
type Recorder interface {
	Start(ctx context.Context, rec *models.RenderRecord) error
	Finish(ctx context.Context, correlationID string, videoURL *string, failure error) error
}

// NoopRecorder is used when no database is configured.
type NoopRecorder struct{}

func (NoopRecorder) Start(context.Context, *models.RenderRecord) error { return nil }

func (NoopRecorder) Finish(context.Context, string, *string, error) error { return nil }

func (db *DB) Start(ctx context.Context, rec *models.RenderRecord) error {
	query := `
		INSERT INTO render_requests (
			correlation_id, status, scene_count, total_duration_ms,
			response_mode, summary_id, style_pack_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	err := db.QueryRowContext(
		ctx, query,
		rec.CorrelationID, rec.Status, rec.SceneCount, rec.TotalDurationMs,
		rec.ResponseMode, rec.SummaryID, rec.StylePackID,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert render record: %w", err)
	}
	return nil
}

// Finish marks the request succeeded, or failed with failure's classification.
func (db *DB) Finish(ctx context.Context, correlationID string, videoURL *string, failure error) error {
	status := models.RenderStatusSucceeded
	if failure != nil {
		status = models.RenderStatusFailed
	}
	kind, cause, message := failureColumns(failure)

	query := `
		UPDATE render_requests
		SET status = $2, error_kind = $3, error_cause = $4, error_message = $5,
			video_url = $6, finished_at = now()
		WHERE correlation_id = $1
	`

	result, err := db.ExecContext(ctx, query, correlationID, status, kind, cause, message, videoURL)
	if err != nil {
		return fmt.Errorf("failed to update render record: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("render record %s not found", correlationID)
	}
	return nil
}

// failureColumns maps a failure to its nullable error_* columns.
func failureColumns(failure error) (kind, cause, message *string) {
	if failure == nil {
		return nil, nil, nil
	}

	k := string(apperr.KindOf(failure))
	kind = &k

	if c := apperr.CauseOf(failure); c != apperr.CauseNone {
		cs := string(c)
		cause = &cs
	}

	msg := failure.Error()
	var appErr *apperr.Error
	if errors.As(failure, &appErr) {
		msg = appErr.Message
	}
	message = &msg
	return kind, cause, message
}
