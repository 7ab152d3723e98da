package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/insight-engine/internal/domain"
	"github.com/cuongbtq/insight-engine/shared/postgresql"
)

// Mode reports which backend a Store is serving from
type Mode string

const (
	ModeUnopened Mode = "unopened"
	ModeDurable  Mode = "durable"
	ModeMemory   Mode = "memory"
	ModeClosed   Mode = "closed"
)

// Connector establishes the durable backend connection
type Connector func(ctx context.Context) (*postgresql.Client, error)

// PostgresConnector returns a Connector for the given database configuration
func PostgresConnector(cfg *postgresql.Config, logger *slog.Logger) Connector {
	return func(ctx context.Context) (*postgresql.Client, error) {
		return postgresql.NewClient(ctx, cfg, logger)
	}
}

// Store is the job store handed to handlers and workers. It opens the durable
// backend once and, if that fails, serves from memory for the rest of the process.
type Store struct {
	logger  *slog.Logger
	connect Connector

	mu      sync.RWMutex
	mode    Mode
	backend JobStore
	client  *postgresql.Client
}

// New creates a Store that connects through connect on Open or first use.
// A nil connector means the durable backend is not configured.
func New(connect Connector, logger *slog.Logger) *Store {
	return &Store{
		logger:  logger,
		connect: connect,
		mode:    ModeUnopened,
	}
}

// NewMemory creates a Store that serves from memory only
func NewMemory(logger *slog.Logger) *Store {
	s := New(nil, logger)
	s.backend = NewMemoryStore()
	s.mode = ModeMemory
	return s
}

// Open connects the durable backend or falls back to memory. It never fails;
// the resulting mode is returned. Calling Open again is a no-op.
func (s *Store) Open(ctx context.Context) Mode {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.openLocked(ctx)
}

func (s *Store) openLocked(ctx context.Context) Mode {
	if s.mode != ModeUnopened {
		return s.mode
	}

	if s.connect == nil {
		s.useMemoryLocked(errors.New("durable store not configured"))
		return s.mode
	}

	start := time.Now()
	client, err := s.connect(ctx)
	if err != nil {
		s.useMemoryLocked(err)
		return s.mode
	}

	pg := NewPostgresStore(client.GetDB(), s.logger)
	if err := pg.EnsureSchema(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			s.logger.Warn("Failed to close PostgreSQL after schema error",
				slog.Any("error", closeErr),
			)
		}
		s.useMemoryLocked(err)
		return s.mode
	}

	s.client = client
	s.backend = pg
	s.mode = ModeDurable

	s.logger.Info("Job store opened",
		slog.String("mode", string(s.mode)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return s.mode
}

func (s *Store) useMemoryLocked(cause error) {
	s.backend = NewMemoryStore()
	s.mode = ModeMemory

	s.logger.Warn("Durable job store unavailable, using in-memory store for the rest of this process",
		slog.String("mode", string(s.mode)),
		slog.Any("error", cause),
	)
}

// Mode returns the current backend mode
func (s *Store) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Close releases the durable connection. Later calls fail with ErrStoreUnavailable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.client != nil {
		err = s.client.Close()
		s.client = nil
	}
	s.backend = nil
	s.mode = ModeClosed
	return err
}

// Ping reports whether the active backend can serve requests
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	mode, client := s.mode, s.client
	s.mu.RUnlock()

	switch mode {
	case ModeDurable:
		return client.HealthCheck(ctx)
	case ModeMemory, ModeUnopened:
		return nil
	default:
		return domain.ErrStoreUnavailable
	}
}

func (s *Store) current(ctx context.Context) (JobStore, error) {
	s.mu.RLock()
	mode, backend := s.mode, s.backend
	s.mu.RUnlock()

	if mode == ModeUnopened {
		s.mu.Lock()
		s.openLocked(ctx)
		backend = s.backend
		s.mu.Unlock()
	}

	if backend == nil {
		return nil, domain.ErrStoreUnavailable
	}
	return backend, nil
}

func (s *Store) CreateJob(ctx context.Context, job *domain.Job) error {
	backend, err := s.current(ctx)
	if err != nil {
		return err
	}
	return backend.CreateJob(ctx, job)
}

func (s *Store) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	backend, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return backend.GetJob(ctx, id)
}

func (s *Store) UpdateJob(ctx context.Context, id string, update domain.JobUpdate) error {
	backend, err := s.current(ctx)
	if err != nil {
		return err
	}
	return backend.UpdateJob(ctx, id, update)
}

func (s *Store) ListJobs(ctx context.Context) ([]*domain.Job, error) {
	backend, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return backend.ListJobs(ctx)
}

func (s *Store) ListJobsSince(ctx context.Context, since time.Time) ([]*domain.Job, error) {
	backend, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	return backend.ListJobsSince(ctx, since)
}

func (s *Store) ListJobsPage(ctx context.Context, filter JobFilter) ([]*domain.Job, error) {
	backend, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	pager, ok := backend.(JobPager)
	if !ok {
		return nil, fmt.Errorf("job store in %s mode does not support paging", s.Mode())
	}
	return pager.ListJobsPage(ctx, filter)
}
