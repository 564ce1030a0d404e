package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const (
	// DefaultLockRetries is the number of lock acquisition attempts
	// before giving up with ErrLockTimeout
	DefaultLockRetries = 50
	// DefaultLockInterval is the delay between lock acquisition attempts
	DefaultLockInterval = 100 * time.Millisecond
)

// Store is the durable representation of the job queue: a single JSON
// file holding the full job list, guarded by an advisory file lock so
// that the API service and any number of worker processes can share it.
// The file is the single source of truth for job state; every mutation
// must happen inside Mutate (acquire, read, mutate, write, release).
type Store struct {
	path         string
	lock         *flock.Flock
	logger       *slog.Logger
	lockRetries  int
	lockInterval time.Duration
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithLockBudget overrides the lock retry budget. Used by tests to
// fail fast instead of waiting out the full five seconds.
func WithLockBudget(retries int, interval time.Duration) StoreOption {
	return func(s *Store) {
		s.lockRetries = retries
		s.lockInterval = interval
	}
}

// NewStore creates a Store for the given data file path. The lock
// token lives next to the data file as "<path>.lock".
func NewStore(path string, logger *slog.Logger, opts ...StoreOption) *Store {
	s := &Store{
		path:         path,
		lock:         flock.New(path + ".lock"),
		logger:       logger,
		lockRetries:  DefaultLockRetries,
		lockInterval: DefaultLockInterval,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Path returns the data file path.
func (s *Store) Path() string {
	return s.path
}

// Acquire blocks until the store lock is obtained, retrying on a fixed
// interval. It fails with ErrLockTimeout once the retry budget is
// spent.
func (s *Store) Acquire(ctx context.Context) error {
	budget := time.Duration(s.lockRetries) * s.lockInterval
	lockCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	locked, err := s.lock.TryLockContext(lockCtx, s.lockInterval)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrLockTimeout
		}
		return fmt.Errorf("failed to acquire store lock: %w", err)
	}
	if !locked {
		return ErrLockTimeout
	}

	return nil
}

// Release drops the store lock. Releasing a lock that is not held is a
// no-op; release failures are logged, never propagated.
func (s *Store) Release() {
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("Failed to release store lock",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
	}
}

// Read parses the data file into the job list. A missing file means a
// freshly initialized store and yields an empty list, not an error.
func (s *Store) Read() ([]Job, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Job{}, nil
		}
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	if len(data) == 0 {
		return []Job{}, nil
	}

	var jobs []Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("failed to parse store file: %w", err)
	}

	return jobs, nil
}

// Write serializes the full job list and replaces the data file. The
// caller must hold the lock. The write goes through a temp file and a
// rename so a crash never leaves a half-written store behind.
func (s *Store) Write(jobs []Job) error {
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize jobs: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp store file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp store file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp store file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace store file: %w", err)
	}

	return nil
}

// View runs fn against a consistent snapshot of the job list, holding
// the lock for the duration so a concurrent writer cannot expose a
// half-written file.
func (s *Store) View(ctx context.Context, fn func(jobs []Job) error) error {
	if err := s.Acquire(ctx); err != nil {
		return err
	}
	defer s.Release()

	jobs, err := s.Read()
	if err != nil {
		return err
	}

	return fn(jobs)
}

// Mutate runs fn as a read-modify-write critical section: acquire the
// lock, read the list, apply fn, persist the returned list, release.
// The lock is released on every exit path. fn must not perform slow
// network work; that belongs outside the critical section.
func (s *Store) Mutate(ctx context.Context, fn func(jobs []Job) ([]Job, error)) error {
	if err := s.Acquire(ctx); err != nil {
		return err
	}
	defer s.Release()

	jobs, err := s.Read()
	if err != nil {
		return err
	}

	updated, err := fn(jobs)
	if err != nil {
		return err
	}

	return s.Write(updated)
}
