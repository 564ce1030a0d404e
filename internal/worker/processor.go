package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fissura/inspection-be/internal/events"
	"github.com/fissura/inspection-be/internal/inference"
	"github.com/fissura/inspection-be/internal/notify"
	"github.com/fissura/inspection-be/internal/queue"
)

// processJob runs the inference fan-out for every file the job
// references and aggregates the per-file results. Files are dispatched
// in parallel, and for each file both backends are consulted in
// parallel; the result slice preserves the input file order.
//
// A single failed backend call is absorbed: the aggregator treats it
// as the neutral element so the rest of the batch still completes.
// Only a job whose every inference call failed ends up failed.
func (w *Worker) processJob(ctx context.Context, job *queue.Job) ([]inference.CombinedResult, error) {
	files, err := job.Data.FileList()
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return []inference.CombinedResult{}, nil
	}

	combined := make([]inference.CombinedResult, len(files))
	succeeded := make([]bool, len(files))

	var wg sync.WaitGroup
	for i, fileURL := range files {
		wg.Add(1)
		go func(idx int, fileURL string) {
			defer wg.Done()
			combined[idx], succeeded[idx] = w.analyzeFile(ctx, job.ID, fileURL)
		}(i, fileURL)
	}
	wg.Wait()

	anyOK := false
	for _, ok := range succeeded {
		if ok {
			anyOK = true
			break
		}
	}
	if !anyOK {
		return nil, errors.New("all inference calls failed")
	}

	return combined, nil
}

// analyzeFile downloads one file, submits it to both backends in
// parallel and merges the two results. It reports whether at least one
// backend produced a result.
func (w *Worker) analyzeFile(ctx context.Context, jobID, fileURL string) (inference.CombinedResult, bool) {
	payload, err := w.fetcher.Fetch(ctx, fileURL)
	if err != nil {
		w.logger.Error("Failed to fetch job file",
			slog.String("job_id", jobID),
			slog.String("file", fileURL),
			slog.String("error", err.Error()),
		)
		return inference.Combine(nil, nil), false
	}

	var (
		wg                 sync.WaitGroup
		primaryResult      *inference.DetectionResult
		secondaryResult    *inference.DetectionResult
		primaryErr, secErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		primaryResult, primaryErr = w.primary.Analyze(ctx, payload)
	}()
	go func() {
		defer wg.Done()
		secondaryResult, secErr = w.secondary.Analyze(ctx, payload)
	}()
	wg.Wait()

	if primaryErr != nil {
		w.logger.Error("Inference call failed",
			slog.String("job_id", jobID),
			slog.String("backend", w.primary.Name()),
			slog.String("file", payload.Name),
			slog.String("error", primaryErr.Error()),
		)
	}
	if secErr != nil {
		w.logger.Error("Inference call failed",
			slog.String("job_id", jobID),
			slog.String("backend", w.secondary.Name()),
			slog.String("file", payload.Name),
			slog.String("error", secErr.Error()),
		)
	}

	return inference.Combine(primaryResult, secondaryResult),
		primaryResult != nil || secondaryResult != nil
}

// finish re-acquires the store lock, re-reads the job list so
// concurrent operator edits are not clobbered, and writes the terminal
// state for the job: done with the serialized results, or failed with
// a diagnostic message.
func (w *Worker) finish(ctx context.Context, jobID string, combined []inference.CombinedResult, procErr error) (*queue.Job, error) {
	if err := w.store.Acquire(ctx); err != nil {
		return nil, err
	}
	defer w.store.Release()

	jobs, err := w.store.Read()
	if err != nil {
		return nil, err
	}

	for i := range jobs {
		if jobs[i].ID != jobID {
			continue
		}

		now := time.Now().UTC()

		if procErr != nil {
			jobs[i].Status = queue.JobStatusFailed
			jobs[i].Error = procErr.Error()
		} else {
			payload, err := json.Marshal(combined)
			if err != nil {
				return nil, fmt.Errorf("failed to serialize job results: %w", err)
			}
			jobs[i].Status = queue.JobStatusDone
			jobs[i].CompletedAt = &now
			jobs[i].Data.Result = payload
			jobs[i].Error = ""
		}
		jobs[i].Data.UpdatedAt = now

		if err := w.store.Write(jobs); err != nil {
			return nil, err
		}

		job := jobs[i]
		return &job, nil
	}

	// Deleted by an operator while processing; nothing left to persist
	w.logger.Warn("Job vanished before terminal state could be written",
		slog.String("job_id", jobID),
	)
	return nil, nil
}

// afterFinish handles the best-effort side effects of a terminal job:
// result sink update, user notification and lifecycle event. All of
// them run outside the store lock and none of them can change the job
// status anymore.
func (w *Worker) afterFinish(ctx context.Context, job *queue.Job, combined []inference.CombinedResult) {
	if job == nil {
		return
	}

	if job.Status == queue.JobStatusDone {
		w.logger.Info("Job completed",
			slog.String("job_id", job.ID),
			slog.Int("files", len(combined)),
		)

		if err := w.results.UpdateResult(ctx, job.Data.UserID, job.Data.ProjectID, job.Data.CreatedAt, job.Data.Result); err != nil {
			w.logger.Error("Failed to store analysis result",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}

		w.sendNotification(ctx, job, notify.Notification{
			UserID:  job.Data.UserID,
			Title:   notify.TitleAnalysisDone,
			Message: notify.MsgAnalysisDone,
			Type:    "info",
		})
		w.publishEvent(ctx, events.JobDone, job)
		return
	}

	w.logger.Error("Job failed",
		slog.String("job_id", job.ID),
		slog.String("error", job.Error),
	)

	w.sendNotification(ctx, job, notify.Notification{
		UserID:  job.Data.UserID,
		Title:   notify.TitleAnalysisFailed,
		Message: notify.MsgAnalysisFailed,
		Type:    "error",
	})
	w.publishEvent(ctx, events.JobFailed, job)
}

func (w *Worker) sendNotification(ctx context.Context, job *queue.Job, n notify.Notification) {
	if err := w.notifier.Send(ctx, n); err != nil {
		w.logger.Error("Failed to send notification",
			slog.String("job_id", job.ID),
			slog.String("user_id", n.UserID),
			slog.String("error", err.Error()),
		)
	}
}

func (w *Worker) publishEvent(ctx context.Context, event string, job *queue.Job) {
	if err := w.events.Publish(ctx, event, job); err != nil {
		w.logger.Error("Failed to publish job event",
			slog.String("job_id", job.ID),
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
