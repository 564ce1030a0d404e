package inference

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// inferencePath is the backend endpoint; it is part of the signed
	// message and must match the path the request is sent to.
	inferencePath = "/inference/"

	// fileFieldName is the multipart field the backend reads the file
	// from.
	fileFieldName = "file"

	defaultRequestTimeout = 60 * time.Second
)

// contentTypes maps known file extensions to the content type sent in
// the multipart part. Unknown extensions fall back to a generic binary
// type.
var contentTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"mp4":  "video/mp4",
	"mov":  "video/quicktime",
	"avi":  "video/x-msvideo",
}

// FilePayload is one file to analyze: its original name (used to infer
// the content type) and its raw bytes.
type FilePayload struct {
	Name string
	Data []byte
}

// Client submits files to one remote inference backend, proving
// request authenticity with a shared-secret HMAC signature. Two
// independent clients exist per job, one per backend, each with its own
// base URL and secret key.
type Client struct {
	name       string
	baseURL    string
	secretKey  string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// Config holds inference client configuration.
type Config struct {
	Name      string
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
	Logger    *slog.Logger
}

// NewClient creates a Client for one backend.
func NewClient(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		name:      cfg.Name,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
		now:    time.Now,
	}
}

// Name returns the backend identity this client talks to.
func (c *Client) Name() string {
	return c.name
}

// Analyze submits one file to the backend and returns its detection
// result. Any transport failure or non-2xx response is an error the
// caller must treat as recoverable for that file only.
func (c *Client) Analyze(ctx context.Context, file FilePayload) (*DetectionResult, error) {
	body, contentType, err := buildMultipartBody(file)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}

	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	signature := c.sign(timestamp, body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+inferencePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create inference request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-timestamp", timestamp)
	req.Header.Set("x-signature", signature)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request to %s failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference backend %s returned status %d: %s", c.name, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result DetectionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode inference response from %s: %w", c.name, err)
	}

	c.logger.Debug("Inference call completed",
		slog.String("backend", c.name),
		slog.String("file", file.Name),
		slog.String("type", result.Type),
		slog.Int("valid_detections", result.ValidDetections),
	)

	return &result, nil
}

// sign computes the hex HMAC-SHA256 signature over the method, the
// endpoint path, the timestamp and the exact multipart bytes that are
// transmitted. The backend reconstructs the same message from the
// request it receives, so the signed buffer and the request body must
// be the same bytes.
func (c *Client) sign(timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(http.MethodPost + inferencePath + timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// buildMultipartBody serializes the file into an in-memory multipart
// form so the same bytes can be signed and sent.
func buildMultipartBody(file FilePayload) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fileFieldName, file.Name))
	header.Set("Content-Type", ContentTypeFor(file.Name))

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}

	if _, err := part.Write(file.Data); err != nil {
		return nil, "", err
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}

// ContentTypeFor infers the content type from the filename extension.
func ContentTypeFor(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}
