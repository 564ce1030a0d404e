package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStore_ReadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "jobs.json"), testLogger())

	jobs, err := store.Read()

	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestStore_ReadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	store := NewStore(path, testLogger())

	jobs, err := store.Read()

	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestStore_ReadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store := NewStore(path, testLogger())

	_, err := store.Read()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse store file")
}

func TestStore_WriteReadRoundtrip(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "jobs.json"), testLogger())

	now := time.Now().UTC().Truncate(time.Second)
	jobs := []Job{
		{
			ID:     "job-1",
			Type:   "Analysis",
			Status: JobStatusPending,
			Data: JobData{
				Files:     `["https://cdn.example.com/a.jpg"]`,
				Result:    json.RawMessage("{}"),
				CreatedAt: now,
				UpdatedAt: now,
				UserID:    "user-1",
				ProjectID: "project-1",
			},
		},
	}

	require.NoError(t, store.Write(jobs))

	got, err := store.Read()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "job-1", got[0].ID)
	assert.Equal(t, JobStatusPending, got[0].Status)
	assert.Equal(t, "user-1", got[0].Data.UserID)
	assert.True(t, got[0].Data.CreatedAt.Equal(now))
}

func TestStore_AcquireTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")

	holder := NewStore(path, testLogger())
	require.NoError(t, holder.Acquire(context.Background()))
	defer holder.Release()

	waiter := NewStore(path, testLogger(), WithLockBudget(3, 10*time.Millisecond))

	err := waiter.Acquire(context.Background())

	require.ErrorIs(t, err, ErrLockTimeout)
}

func TestStore_AcquireAfterRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")

	first := NewStore(path, testLogger())
	require.NoError(t, first.Acquire(context.Background()))
	first.Release()

	second := NewStore(path, testLogger(), WithLockBudget(5, 10*time.Millisecond))
	require.NoError(t, second.Acquire(context.Background()))
	second.Release()
}

func TestStore_ReleaseIdempotent(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "jobs.json"), testLogger())

	// Releasing a lock that was never held must not panic or error out
	store.Release()

	require.NoError(t, store.Acquire(context.Background()))
	store.Release()
	store.Release()
}

func TestStore_MutateReleasesLockOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	store := NewStore(path, testLogger())

	err := store.Mutate(context.Background(), func(jobs []Job) ([]Job, error) {
		return nil, fmt.Errorf("mutation rejected")
	})
	require.Error(t, err)

	// The lock must have been released on the error path
	other := NewStore(path, testLogger(), WithLockBudget(5, 10*time.Millisecond))
	require.NoError(t, other.Acquire(context.Background()))
	other.Release()
}

// TestStore_ConcurrentMutations drives concurrent creators against the
// same store file, each through its own Store instance (its own lock
// handle, as separate processes would have). Every append must survive:
// no lost updates, no partially-written file.
func TestStore_ConcurrentMutations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			store := NewStore(path, testLogger())
			errs[n] = store.Mutate(context.Background(), func(jobs []Job) ([]Job, error) {
				return append(jobs, Job{
					ID:     fmt.Sprintf("job-%d", n),
					Status: JobStatusPending,
				}), nil
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "writer %d", i)
	}

	store := NewStore(path, testLogger())
	jobs, err := store.Read()
	require.NoError(t, err)
	require.Len(t, jobs, writers)

	seen := make(map[string]bool, writers)
	for _, job := range jobs {
		seen[job.ID] = true
	}
	assert.Len(t, seen, writers)
}
