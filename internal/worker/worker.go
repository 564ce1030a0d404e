package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/fissura/inspection-be/internal/events"
	"github.com/fissura/inspection-be/internal/inference"
	"github.com/fissura/inspection-be/internal/notify"
	"github.com/fissura/inspection-be/internal/queue"
	"github.com/fissura/inspection-be/internal/results"
)

// DefaultPollInterval is the idle sleep between queue polls.
const DefaultPollInterval = 2 * time.Second

// Backend is one remote inference service. The worker consults two of
// them, primary and secondary, for every file.
type Backend interface {
	Name() string
	Analyze(ctx context.Context, file inference.FilePayload) (*inference.DetectionResult, error)
}

// FileFetcher downloads the files a job references.
type FileFetcher interface {
	Fetch(ctx context.Context, fileURL string) (inference.FilePayload, error)
}

// Config holds worker configuration
type Config struct {
	Logger       *slog.Logger
	Store        *queue.Store
	Primary      Backend
	Secondary    Backend
	Fetcher      FileFetcher
	Notifier     notify.Notifier
	Results      results.Sink
	Events       events.Publisher
	PollInterval time.Duration
}

// Worker is the long-running loop that claims pending jobs from the
// queue store, fans out inference calls, aggregates the results and
// persists the terminal state.
type Worker struct {
	logger       *slog.Logger
	store        *queue.Store
	primary      Backend
	secondary    Backend
	fetcher      FileFetcher
	notifier     notify.Notifier
	results      results.Sink
	events       events.Publisher
	pollInterval time.Duration
}

// NewWorker creates a worker instance. Notifier, result sink and event
// publisher default to noops when absent.
func NewWorker(cfg *Config) *Worker {
	w := &Worker{
		logger:       cfg.Logger,
		store:        cfg.Store,
		primary:      cfg.Primary,
		secondary:    cfg.Secondary,
		fetcher:      cfg.Fetcher,
		notifier:     cfg.Notifier,
		results:      cfg.Results,
		events:       cfg.Events,
		pollInterval: cfg.PollInterval,
	}

	if w.pollInterval <= 0 {
		w.pollInterval = DefaultPollInterval
	}
	if w.notifier == nil {
		w.notifier = notify.NewNotifier("", 0)
	}
	if w.results == nil {
		w.results = results.NoopSink{}
	}
	if w.events == nil {
		w.events = events.NoopPublisher{}
	}

	return w
}

// Start runs the polling loop until the context is canceled. Iteration
// errors (lock timeouts, store I/O failures) are logged and retried on
// the next poll; they never crash the loop.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.Duration("poll_interval", w.pollInterval),
		slog.String("store", w.store.Path()),
		slog.String("primary_backend", w.primary.Name()),
		slog.String("secondary_backend", w.secondary.Name()),
	)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		processed, err := w.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("Worker context canceled, stopping...")
				return nil
			}
			w.logger.Error("Worker iteration failed",
				slog.String("error", err.Error()),
			)
		}

		// Keep draining while jobs are pending; idle-sleep otherwise
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			w.logger.Info("Worker context canceled, stopping...")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single worker iteration: claim the first pending
// job, process it and persist the terminal state. It reports whether a
// job was claimed, so callers (and tests) can single-step the loop.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.claimNext(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	w.logger.Info("Processing job",
		slog.String("job_id", job.ID),
		slog.String("type", job.Type),
	)

	combined, procErr := w.processJob(ctx, job)

	finished, err := w.finish(ctx, job.ID, combined, procErr)
	if err != nil {
		return true, err
	}

	w.afterFinish(ctx, finished, combined)
	return true, nil
}

// claimNext locks the store, marks the first pending job as processing
// and persists that transition before releasing the lock. The locked
// find-and-mark is what keeps two workers from claiming the same job.
func (w *Worker) claimNext(ctx context.Context) (*queue.Job, error) {
	if err := w.store.Acquire(ctx); err != nil {
		return nil, err
	}
	defer w.store.Release()

	jobs, err := w.store.Read()
	if err != nil {
		return nil, err
	}

	for i := range jobs {
		if jobs[i].Status != queue.JobStatusPending {
			continue
		}

		jobs[i].Status = queue.JobStatusProcessing
		jobs[i].Data.UpdatedAt = time.Now().UTC()

		if err := w.store.Write(jobs); err != nil {
			return nil, err
		}

		job := jobs[i]
		return &job, nil
	}

	return nil, nil
}
