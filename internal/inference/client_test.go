package inference

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newBackendServer behaves like the real inference endpoint: it
// recomputes the HMAC from the request it received and rejects a
// mismatch before looking at the payload.
func newBackendServer(t *testing.T, secret string, result DetectionResult) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/inference/", r.URL.Path)

		timestamp := r.Header.Get("x-timestamp")
		require.NotEmpty(t, timestamp)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte("POST/inference/" + timestamp))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))

		if !hmac.Equal([]byte(expected), []byte(r.Header.Get("x-signature"))) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"detail":"Invalid signature"}`))
			return
		}

		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)

		form, err := multipart.NewReader(bytes.NewReader(body), params["boundary"]).ReadForm(1 << 20)
		require.NoError(t, err)
		defer form.RemoveAll()

		files := form.File["file"]
		require.Len(t, files, 1)
		assert.Equal(t, "sample.jpg", files[0].Filename)
		assert.Equal(t, "image/jpeg", files[0].Header.Get("Content-Type"))

		f, err := files[0].Open()
		require.NoError(t, err)
		defer f.Close()
		data, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, []byte("fake image bytes"), data)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}))
}

func TestClient_Analyze(t *testing.T) {
	want := DetectionResult{
		Type:                FileTypeImage,
		ValidDetections:     3,
		ConfidenceThreshold: 0.8,
		ClassDistribution:   map[string]int{"0": 3},
	}

	srv := newBackendServer(t, "top-secret", want)
	defer srv.Close()

	client := NewClient(&Config{
		Name:      "primary",
		BaseURL:   srv.URL,
		SecretKey: "top-secret",
		Timeout:   5 * time.Second,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	got, err := client.Analyze(context.Background(), FilePayload{
		Name: "sample.jpg",
		Data: []byte("fake image bytes"),
	})

	require.NoError(t, err)
	assert.Equal(t, want, *got)
}

func TestClient_AnalyzeRejectedSignature(t *testing.T) {
	srv := newBackendServer(t, "server-secret", DetectionResult{})
	defer srv.Close()

	client := NewClient(&Config{
		Name:      "primary",
		BaseURL:   srv.URL,
		SecretKey: "wrong-secret",
		Timeout:   5 * time.Second,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	_, err := client.Analyze(context.Background(), FilePayload{
		Name: "sample.jpg",
		Data: []byte("fake image bytes"),
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestClient_AnalyzeBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("model crashed"))
	}))
	defer srv.Close()

	client := NewClient(&Config{
		Name:      "secondary",
		BaseURL:   srv.URL,
		SecretKey: "top-secret",
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	_, err := client.Analyze(context.Background(), FilePayload{Name: "a.png", Data: []byte("x")})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "secondary")
	assert.Contains(t, err.Error(), "model crashed")
}

func TestClient_AnalyzeUnreachable(t *testing.T) {
	client := NewClient(&Config{
		Name:      "primary",
		BaseURL:   "http://127.0.0.1:1",
		SecretKey: "top-secret",
		Timeout:   time.Second,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	_, err := client.Analyze(context.Background(), FilePayload{Name: "a.png", Data: []byte("x")})

	require.Error(t, err)
}
