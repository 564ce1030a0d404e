package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// User-facing copy for job lifecycle notifications.
const (
	TitleAnalysisReceived = "Analyse en cours"
	MsgAnalysisReceived   = "Votre demande d'analyse a bien été reçue..."

	TitleAnalysisDone = "Analyse terminée"
	MsgAnalysisDone   = "Votre analyse est terminée. Vous pouvez consulter les résultats dans votre projet."

	TitleAnalysisFailed = "Analyse échouée"
	MsgAnalysisFailed   = "Votre analyse n'a pas pu aboutir. Veuillez réessayer ou contacter le support."
)

// Notification is one user-facing lifecycle message.
type Notification struct {
	UserID  string
	Title   string
	Message string
	Type    string
}

// Notifier delivers notifications to the external per-user notification
// store. Delivery is fire-and-forget from the caller's perspective: a
// failed Send must never affect job processing.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// NewNotifier builds a REST notifier when a store base URL is
// configured, and a noop otherwise.
func NewNotifier(baseURL string, timeout time.Duration) Notifier {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return noopNotifier{}
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &restNotifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// restNotifier appends messages to the external notification store:
// POST {base}/notifications/{userId}.json creates a new entry under
// that user.
type restNotifier struct {
	baseURL string
	client  *http.Client
}

type notificationPayload struct {
	Title     string `json:"title"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Read      bool   `json:"read"`
	Timestamp int64  `json:"timestamp"`
}

func (r *restNotifier) Send(ctx context.Context, n Notification) error {
	if n.UserID == "" {
		return fmt.Errorf("notification requires a user id")
	}

	kind := n.Type
	if kind == "" {
		kind = "info"
	}

	body, err := json.Marshal(notificationPayload{
		Title:     n.Title,
		Message:   n.Message,
		Type:      kind,
		Read:      false,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to serialize notification: %w", err)
	}

	endpoint := fmt.Sprintf("%s/notifications/%s.json", r.baseURL, n.UserID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notification store returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	return nil
}

// noopNotifier is used when no notification store is configured.
type noopNotifier struct{}

func (noopNotifier) Send(context.Context, Notification) error {
	return nil
}
