package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_Send(t *testing.T) {
	var gotPath string
	var gotPayload notificationPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.Write([]byte(`{"name":"-abc123"}`))
	}))
	defer srv.Close()

	notifier := NewNotifier(srv.URL, 5*time.Second)

	err := notifier.Send(context.Background(), Notification{
		UserID:  "user-42",
		Title:   TitleAnalysisDone,
		Message: MsgAnalysisDone,
		Type:    "info",
	})

	require.NoError(t, err)
	assert.Equal(t, "/notifications/user-42.json", gotPath)
	assert.Equal(t, TitleAnalysisDone, gotPayload.Title)
	assert.Equal(t, MsgAnalysisDone, gotPayload.Message)
	assert.Equal(t, "info", gotPayload.Type)
	assert.False(t, gotPayload.Read)
	assert.InDelta(t, time.Now().UnixMilli(), gotPayload.Timestamp, float64(5*time.Second/time.Millisecond))
}

func TestNotifier_SendDefaultsType(t *testing.T) {
	var gotPayload notificationPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
	}))
	defer srv.Close()

	notifier := NewNotifier(srv.URL, 5*time.Second)

	err := notifier.Send(context.Background(), Notification{
		UserID: "user-42",
		Title:  TitleAnalysisReceived,
	})

	require.NoError(t, err)
	assert.Equal(t, "info", gotPayload.Type)
}

func TestNotifier_SendRequiresUserID(t *testing.T) {
	notifier := NewNotifier("http://localhost:9", time.Second)

	err := notifier.Send(context.Background(), Notification{Title: TitleAnalysisDone})

	require.Error(t, err)
}

func TestNotifier_SendStoreError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("permission denied"))
	}))
	defer srv.Close()

	notifier := NewNotifier(srv.URL, time.Second)

	err := notifier.Send(context.Background(), Notification{UserID: "user-42", Title: TitleAnalysisFailed})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestNewNotifier_NoopWhenUnconfigured(t *testing.T) {
	notifier := NewNotifier("", time.Second)

	assert.IsType(t, noopNotifier{}, notifier)
	assert.NoError(t, notifier.Send(context.Background(), Notification{UserID: "user-42"}))
}
