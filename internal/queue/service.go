package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Service exposes the Job API operations over the Store. Every
// operation wraps its whole critical section in the store lock and
// releases it on all exit paths.
type Service struct {
	store  *Store
	logger *slog.Logger
}

// NewService creates a Service backed by the given store.
func NewService(store *Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
	}
}

// CreateSpec is a partial job specification; missing fields are filled
// with defaults on create.
type CreateSpec struct {
	Type      string
	Files     string
	Result    json.RawMessage
	UserID    string
	ProjectID string
	Status    string
}

// UpdatePatch carries the fields of a partial job update. Zero-valued
// fields leave the stored record untouched.
type UpdatePatch struct {
	Type      string
	Files     string
	Result    json.RawMessage
	UserID    string
	ProjectID string
	Status    string
}

// List returns all jobs in store order.
func (s *Service) List(ctx context.Context) ([]Job, error) {
	var out []Job
	err := s.store.View(ctx, func(jobs []Job) error {
		out = jobs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the job with the given id, or ErrJobNotFound.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	var found *Job
	err := s.store.View(ctx, func(jobs []Job) error {
		for i := range jobs {
			if jobs[i].ID == id {
				job := jobs[i]
				found = &job
				return nil
			}
		}
		return ErrJobNotFound
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Create assigns a fresh id, fills defaults and appends the job to the
// store.
func (s *Service) Create(ctx context.Context, spec CreateSpec) (*Job, error) {
	now := time.Now().UTC()

	job := Job{
		ID:   uuid.New().String(),
		Type: spec.Type,
		Data: JobData{
			Files:     spec.Files,
			Result:    spec.Result,
			CreatedAt: now,
			UpdatedAt: now,
			UserID:    spec.UserID,
			ProjectID: spec.ProjectID,
		},
		Status: spec.Status,
	}

	if job.Type == "" {
		job.Type = "Analysis"
	}
	if job.Data.Files == "" {
		job.Data.Files = "[]"
	}
	if len(job.Data.Result) == 0 {
		job.Data.Result = json.RawMessage("{}")
	}
	if job.Status == "" {
		job.Status = JobStatusPending
	}
	if job.Status == JobStatusDone {
		job.CompletedAt = &now
	}

	err := s.store.Mutate(ctx, func(jobs []Job) ([]Job, error) {
		return append(jobs, job), nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Job created",
		slog.String("job_id", job.ID),
		slog.String("type", job.Type),
		slog.String("user_id", job.Data.UserID),
	)

	return &job, nil
}

// Update merges the patch onto the stored record, refreshing updatedAt.
// completedAt is recomputed whenever the incoming status is done. A
// status change that would move the job backward along its lifecycle
// (done back to pending, processing back to pending) is rejected with
// ErrInvalidTransition.
func (s *Service) Update(ctx context.Context, id string, patch UpdatePatch) (*Job, error) {
	var updated Job

	err := s.store.Mutate(ctx, func(jobs []Job) ([]Job, error) {
		for i := range jobs {
			if jobs[i].ID != id {
				continue
			}

			job := jobs[i]
			now := time.Now().UTC()

			if patch.Status != "" && statusRank(patch.Status) < statusRank(job.Status) {
				return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, job.Status, patch.Status)
			}

			if patch.Type != "" {
				job.Type = patch.Type
			}
			if patch.Files != "" {
				job.Data.Files = patch.Files
			}
			if len(patch.Result) != 0 {
				job.Data.Result = patch.Result
			}
			if patch.UserID != "" {
				job.Data.UserID = patch.UserID
			}
			if patch.ProjectID != "" {
				job.Data.ProjectID = patch.ProjectID
			}
			if patch.Status != "" {
				job.Status = patch.Status
				if patch.Status == JobStatusDone {
					job.CompletedAt = &now
				}
			}
			job.Data.UpdatedAt = now

			jobs[i] = job
			updated = job
			return jobs, nil
		}
		return nil, ErrJobNotFound
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Job updated",
		slog.String("job_id", updated.ID),
		slog.String("status", updated.Status),
	)

	return &updated, nil
}

// Delete removes the job with the given id, or returns ErrJobNotFound.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.store.Mutate(ctx, func(jobs []Job) ([]Job, error) {
		for i := range jobs {
			if jobs[i].ID == id {
				return append(jobs[:i], jobs[i+1:]...), nil
			}
		}
		return nil, ErrJobNotFound
	})
	if err != nil {
		return err
	}

	s.logger.Info("Job deleted", slog.String("job_id", id))
	return nil
}
