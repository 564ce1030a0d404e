package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fissura/inspection-be/internal/queue"
	"github.com/fissura/inspection-be/shared/rabbitmq"
)

// Event names published on the job lifecycle exchange
const (
	JobCreated = "created"
	JobDone    = "done"
	JobFailed  = "failed"
)

// Event is one job lifecycle message consumed by the dashboard.
type Event struct {
	Event     string    `json:"event"`
	JobID     string    `json:"job_id"`
	UserID    string    `json:"user_id"`
	ProjectID string    `json:"project_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher emits job lifecycle events. Publishing is best-effort;
// callers log failures and move on.
type Publisher interface {
	Publish(ctx context.Context, event string, job *queue.Job) error
}

// AMQPPublisher publishes lifecycle events to a topic exchange with
// routing key "job.<event>".
type AMQPPublisher struct {
	client *rabbitmq.Client
}

// NewAMQPPublisher wraps the shared RabbitMQ client.
func NewAMQPPublisher(client *rabbitmq.Client) *AMQPPublisher {
	return &AMQPPublisher{client: client}
}

func (p *AMQPPublisher) Publish(ctx context.Context, event string, job *queue.Job) error {
	body, err := json.Marshal(Event{
		Event:     event,
		JobID:     job.ID,
		UserID:    job.Data.UserID,
		ProjectID: job.Data.ProjectID,
		Status:    job.Status,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to serialize job event: %w", err)
	}

	return p.client.Publish(ctx, "job."+event, body, "application/json")
}

// NoopPublisher is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, *queue.Job) error {
	return nil
}
