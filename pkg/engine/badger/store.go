// Package badger implements the resolution engine on top of BadgerDB.
//
// Records resolve to an existing entity when they share a normalized value for
// one of the configured match features; otherwise they start a new entity.
// Reports are produced by a background reader feeding a bounded channel.
package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/resolvd/internal/logger"
	"github.com/marmos91/resolvd/pkg/engine"
	engerrors "github.com/marmos91/resolvd/pkg/engine/errors"
)

// Product is reported by Version.
const Product = "resolvd-badger"

// ErrClosed is wrapped by NotInitialized errors returned after Close.
var ErrClosed = errors.New("engine closed")

// Store is a badger-backed engine.Handle.
type Store struct {
	db       *badgerdb.DB
	seq      *badgerdb.Sequence
	cfg      Config
	features map[string]struct{}
	version  string
	started  time.Time
	metrics  Metrics

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	// exports tracks running report producers; cancelling base aborts them.
	exportMu sync.Mutex
	exports  sync.WaitGroup
	base     context.Context
	abort    context.CancelCauseFunc
}

// Metrics observes engine transactions. A nil Metrics disables collection.
type Metrics interface {
	ObserveTxn(op string, d time.Duration, err error)
	RecordConflict(op string)
}

// Option configures a Store.
type Option func(*Store)

// WithMetrics attaches transaction metrics.
func WithMetrics(m Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

var _ engine.Handle = (*Store)(nil)

// Open opens (or creates) the engine database described by cfg. version is the
// build version reported by Version.
func Open(ctx context.Context, cfg Config, version string, opts ...Option) (*Store, error) {
	cfg.ApplyDefaults()

	dbOpts := badgerdb.DefaultOptions(cfg.Path).
		WithLogger(badgerLogger{}).
		WithBlockCacheSize(cfg.BlockCacheSize.Int64())
	if cfg.InMemory {
		dbOpts = dbOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	db, err := badgerdb.Open(dbOpts)
	if err != nil {
		return nil, engerrors.NewNotInitialized(err, "failed to open engine database at %q", cfg.Path)
	}

	seq, err := db.GetSequence([]byte(keyEntitySeqName), 100)
	if err != nil {
		_ = db.Close()
		return nil, engerrors.NewNotInitialized(err, "failed to allocate entity sequence")
	}

	base, abort := context.WithCancelCause(context.Background())
	s := &Store{
		base:     base,
		abort:    abort,
		db:       db,
		seq:      seq,
		cfg:      cfg,
		features: make(map[string]struct{}, len(cfg.MatchFeatures)),
		version:  version,
		started:  time.Now(),
	}
	for _, f := range cfg.MatchFeatures {
		s.features[f] = struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}

	if len(cfg.DataSources) > 0 {
		if _, err := s.registerDataSources(ctx, cfg.DataSources); err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	logger.Info("Engine opened",
		logger.KeyPath, cfg.Path,
		"in_memory", cfg.InMemory,
		"match_features", cfg.MatchFeatures)
	return s, nil
}

// Close aborts running report producers, then releases the sequence and the
// database. Safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.exportMu.Lock()
		s.closed.Store(true)
		s.exportMu.Unlock()

		s.abort(ErrClosed)
		s.exports.Wait()
		var errs []error
		if err := s.seq.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release entity sequence: %w", err))
		}
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
		s.closeErr = errors.Join(errs...)
		logger.Info("Engine closed")
	})
	return s.closeErr
}

// Version describes the engine build.
func (s *Store) Version() engine.VersionInfo {
	return engine.VersionInfo{Product: Product, Version: s.version, StartedAt: s.started}
}

// Healthcheck verifies the database can serve a read transaction.
func (s *Store) Healthcheck(ctx context.Context) error {
	return s.view(ctx, "healthcheck", func(*badgerdb.Txn) error { return nil })
}

// ============================================================================
// Transaction helpers
// ============================================================================

func (s *Store) checkOpen(ctx context.Context) error {
	if s.closed.Load() {
		return engerrors.NewNotInitialized(ErrClosed, "engine is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

func (s *Store) view(ctx context.Context, op string, fn func(txn *badgerdb.Txn) error) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	start := time.Now()
	err := s.mapError(op, s.db.View(fn))
	s.observe(op, start, err)
	return err
}

func (s *Store) observe(op string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.ObserveTxn(op, time.Since(start), err)
	}
}

// update runs fn in a read-write transaction, retrying on conflicts up to
// MaxRetries times before giving up with RetryTimeoutExceeded.
func (s *Store) update(ctx context.Context, op string, fn func(txn *badgerdb.Txn) error) error {
	attempts := s.cfg.MaxRetries + 1
	start := time.Now()
	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := s.checkOpen(ctx); err != nil {
			return err
		}

		err := s.db.Update(fn)
		if !errors.Is(err, badgerdb.ErrConflict) {
			err = s.mapError(op, err)
			s.observe(op, start, err)
			return err
		}
		last = err
		if s.metrics != nil {
			s.metrics.RecordConflict(op)
		}
		logger.DebugCtx(ctx, "Write conflict, retrying",
			logger.KeyOperation, op, logger.KeyAttempt, attempt, logger.KeyMaxRetries, s.cfg.MaxRetries)

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * s.cfg.RetryBackoff):
			}
		}
	}
	err := engerrors.NewRetryTimeoutExceeded(attempts, last)
	s.observe(op, start, err)
	return err
}

// mapError converts badger failures into engine errors. Engine errors raised
// inside a transaction pass through.
func (s *Store) mapError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case engerrors.IsDomain(err):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, badgerdb.ErrDBClosed):
		return engerrors.NewNotInitialized(err, "engine is not initialized")
	case errors.Is(err, badgerdb.ErrConflict):
		return engerrors.Wrap(engerrors.KindDatabaseTransient, err, "transaction conflict during %s", op)
	case errors.Is(err, badgerdb.ErrTxnTooBig):
		return engerrors.Wrap(engerrors.KindBadInput, err, "%s exceeds transaction limits", op)
	default:
		return engerrors.NewDatabase(err, op)
	}
}
