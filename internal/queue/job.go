package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Job status constants
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusDone       = "done"
	JobStatusFailed     = "failed"
)

// Job represents one unit of requested analysis work over a set of files.
// The JSON field names are part of the store file format and of the HTTP
// API surface, so they must stay stable.
type Job struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Data        JobData    `json:"data"`
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completedAt"`
	Error       string     `json:"error,omitempty"`
}

// JobData carries the job payload. Files is a serialized JSON array of
// file URLs; Result stays empty until the job reaches a terminal state.
type JobData struct {
	Files     string          `json:"files"`
	Result    json.RawMessage `json:"result"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	UserID    string          `json:"userId"`
	ProjectID string          `json:"projectId"`
}

// FileList decodes the serialized files field into an ordered list of
// file URLs. An empty files field yields an empty list.
func (d JobData) FileList() ([]string, error) {
	if d.Files == "" {
		return nil, nil
	}

	var files []string
	if err := json.Unmarshal([]byte(d.Files), &files); err != nil {
		return nil, fmt.Errorf("invalid files payload: %w", err)
	}

	return files, nil
}

// IsTerminal reports whether the job has reached a final status.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusFailed
}

// statusRank orders statuses along the job lifecycle: pending before
// processing before the terminal pair. A transition may never lower
// the rank.
func statusRank(s string) int {
	switch s {
	case JobStatusProcessing:
		return 1
	case JobStatusDone, JobStatusFailed:
		return 2
	}
	return 0
}

// ValidStatus reports whether s is one of the known job statuses.
func ValidStatus(s string) bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusDone, JobStatusFailed:
		return true
	}
	return false
}
