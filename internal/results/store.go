package results

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/fissura/inspection-be/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

// Sink receives the combined results of a finished job. The worker
// treats it as best-effort: a sink failure is logged, never fatal.
type Sink interface {
	UpdateResult(ctx context.Context, userID, projectID string, createdAt time.Time, result json.RawMessage) error
}

// Store persists combined results into the application's analysis
// table so the dashboard can render them per project.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store on top of the shared PostgreSQL client.
func NewStore(pg *postgresql.Client, logger *slog.Logger) *Store {
	return &Store{
		db:     pg.GetDB(),
		logger: logger,
	}
}

// UpdateResult attaches the result payload to the analysis row created
// for this job. The row is matched by user, project and a created_at
// within ten seconds of the job's own creation time, because the row is
// written by the upload flow slightly before the job is enqueued. A
// missing row is logged, not treated as an error.
func (s *Store) UpdateResult(ctx context.Context, userID, projectID string, createdAt time.Time, result json.RawMessage) error {
	query := `
		UPDATE analysis
		SET result = $1, updated_at = $2
		WHERE id = (
			SELECT id FROM analysis
			WHERE user_id = $3
			  AND project_id = $4
			  AND created_at BETWEEN $5::timestamptz - interval '10 seconds'
			                     AND $5::timestamptz + interval '10 seconds'
			ORDER BY created_at
			LIMIT 1
		)
	`

	res, err := s.db.ExecContext(ctx, query, []byte(result), time.Now().UTC(), userID, projectID, createdAt)
	if err != nil {
		return fmt.Errorf("failed to update analysis result: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}

	if rows == 0 {
		s.logger.Warn("No analysis row found for job result",
			slog.String("user_id", userID),
			slog.String("project_id", projectID),
			slog.Time("created_at", createdAt),
		)
		return nil
	}

	s.logger.Info("Analysis result stored",
		slog.String("user_id", userID),
		slog.String("project_id", projectID),
	)

	return nil
}

// NoopSink is used when no result database is configured.
type NoopSink struct{}

func (NoopSink) UpdateResult(context.Context, string, string, time.Time, json.RawMessage) error {
	return nil
}
