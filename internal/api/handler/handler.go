package handler

import (
	"log/slog"

	"github.com/fissura/inspection-be/internal/events"
	"github.com/fissura/inspection-be/internal/notify"
	"github.com/fissura/inspection-be/internal/queue"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger   *slog.Logger
	Jobs     *queue.Service
	Notifier notify.Notifier
	Events   events.Publisher
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger   *slog.Logger
	jobs     *queue.Service
	notifier notify.Notifier
	events   events.Publisher
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	h := &JobHandler{
		logger:   deps.Logger,
		jobs:     deps.Jobs,
		notifier: deps.Notifier,
		events:   deps.Events,
	}

	if h.notifier == nil {
		h.notifier = notify.NewNotifier("", 0)
	}
	if h.events == nil {
		h.events = events.NoopPublisher{}
	}

	return h
}
