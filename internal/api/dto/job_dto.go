package dto

import "encoding/json"

// CreateJobRequest is a partial job spec; the API fills defaults for
// missing fields.
type CreateJobRequest struct {
	Type      string          `json:"type"`
	Files     string          `json:"files"`
	Result    json.RawMessage `json:"result"`
	UserID    string          `json:"userId"`
	ProjectID string          `json:"projectId"`
	Status    string          `json:"status"`
}

// UpdateJobRequest is a partial patch; empty fields leave the stored
// record untouched.
type UpdateJobRequest struct {
	Type      string          `json:"type"`
	Files     string          `json:"files"`
	Result    json.RawMessage `json:"result"`
	UserID    string          `json:"userId"`
	ProjectID string          `json:"projectId"`
	Status    string          `json:"status"`
}

// EnqueueRequest is the producer-facing analysis request: a list of
// uploaded file URLs to run both detectors on.
type EnqueueRequest struct {
	Type      string   `json:"type"`
	UserID    string   `json:"userId" binding:"required"`
	ProjectID string   `json:"projectId" binding:"required"`
	Files     []string `json:"files" binding:"required"`
}

// EnqueueResponse acknowledges an accepted analysis request.
type EnqueueResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
}
