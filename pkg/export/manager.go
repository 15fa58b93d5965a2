// Package export turns the engine's lazy report sequences into sessions
// addressed by opaque handles, so a report can be consumed through
// open / fetch-next / close calls over a request/response transport.
package export

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/resolvd/internal/logger"
	"github.com/marmos91/resolvd/pkg/engine"
	engerrors "github.com/marmos91/resolvd/pkg/engine/errors"
	"github.com/marmos91/resolvd/pkg/runtime/admission"
)

// ErrInvalidHandle is wrapped by every lookup of an unknown or closed handle.
var ErrInvalidHandle = errors.New("invalid export handle")

// Params carries export options. Columns applies to CSV exports only.
type Params struct {
	Columns []string
}

// Metrics receives export events. A nil Metrics disables collection.
type Metrics interface {
	SessionOpened(kind engine.ExportKind)
	SessionClosed(kind engine.ExportKind)
	LineFetched(kind engine.ExportKind)
	SetOpenSessions(n int)
}

// SessionInfo describes an open session.
type SessionInfo struct {
	Handle    int64             `json:"handle"`
	Kind      engine.ExportKind `json:"kind"`
	CreatedAt time.Time         `json:"created_at"`
}

type session struct {
	info SessionInfo
	iter *peekIterator
}

// Manager owns the export sessions of one environment. Open and FetchNext run
// under the environment's admission gate.
type Manager struct {
	gate    *admission.Gate
	engine  engine.Engine
	metrics Metrics

	mu       sync.Mutex
	sessions map[int64]*session
	handles  *handleGenerator
}

// NewManager creates a manager over e. metrics may be nil.
func NewManager(gate *admission.Gate, e engine.Engine, metrics Metrics) *Manager {
	return &Manager{
		gate:     gate,
		engine:   e,
		metrics:  metrics,
		sessions: make(map[int64]*session),
		handles:  newHandleGenerator(),
	}
}

// Open starts a report and returns its handle. The first element is prefetched
// before the handle is issued, so a report that fails at start-up fails here.
// A report with no lines still yields a handle.
func (m *Manager) Open(ctx context.Context, kind engine.ExportKind, params Params) (int64, error) {
	return admission.Run(ctx, m.gate, func(ctx context.Context) (int64, error) {
		it, err := engine.Export(ctx, m.engine, kind, params.Columns)
		if err != nil {
			return 0, err
		}

		peek := newPeekIterator(it)
		if _, err := peek.prefetch(ctx); err != nil {
			_ = it.Close()
			return 0, err
		}

		s := &session{
			info: SessionInfo{Kind: kind, CreatedAt: time.Now()},
			iter: peek,
		}

		m.mu.Lock()
		s.info.Handle = m.handles.next()
		m.sessions[s.info.Handle] = s
		open := len(m.sessions)
		m.mu.Unlock()

		if m.metrics != nil {
			m.metrics.SessionOpened(kind)
			m.metrics.SetOpenSessions(open)
		}
		logger.DebugCtx(ctx, "Export session opened",
			logger.KeyHandle, s.info.Handle, logger.KeyKind, string(kind), logger.KeyOpen, open)
		return s.info.Handle, nil
	})
}

type fetchResult struct {
	line string
	eof  bool
}

// FetchNext returns the next line of the session, or io.EOF once the report is
// exhausted. The session stays registered after EOF until Close.
//
// The table lock covers the lookup only. Concurrent calls on the same handle
// are not supported.
func (m *Manager) FetchNext(ctx context.Context, handle int64) (string, error) {
	res, err := admission.Run(ctx, m.gate, func(ctx context.Context) (fetchResult, error) {
		s, err := m.lookup(handle)
		if err != nil {
			return fetchResult{}, err
		}

		line, err := s.iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			return fetchResult{eof: true}, nil
		}
		if err != nil {
			return fetchResult{}, err
		}
		if m.metrics != nil {
			m.metrics.LineFetched(s.info.Kind)
		}
		return fetchResult{line: line}, nil
	})
	if err != nil {
		return "", err
	}
	if res.eof {
		return "", io.EOF
	}
	return res.line, nil
}

// Close removes the session and releases its iterator.
func (m *Manager) Close(ctx context.Context, handle int64) error {
	m.mu.Lock()
	s, ok := m.sessions[handle]
	if ok {
		delete(m.sessions, handle)
	}
	open := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return invalidHandle(handle)
	}

	if m.metrics != nil {
		m.metrics.SessionClosed(s.info.Kind)
		m.metrics.SetOpenSessions(open)
	}
	logger.DebugCtx(ctx, "Export session closed", logger.KeyHandle, handle, logger.KeyOpen, open)

	if err := s.iter.Close(); err != nil {
		logger.WarnCtx(ctx, "Export iterator close failed", logger.KeyHandle, handle, logger.KeyError, err)
	}
	return nil
}

// CloseAll closes every open session and returns how many were closed. Used at
// environment teardown, after the admission gate has drained.
func (m *Manager) CloseAll() int {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[int64]*session)
	m.mu.Unlock()

	for h, s := range sessions {
		if err := s.iter.Close(); err != nil {
			logger.Warn("Export iterator close failed", logger.KeyHandle, h, logger.KeyError, err)
		}
		if m.metrics != nil {
			m.metrics.SessionClosed(s.info.Kind)
		}
	}
	if m.metrics != nil {
		m.metrics.SetOpenSessions(0)
	}
	return len(sessions)
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// List returns the open sessions, oldest first.
func (m *Manager) List() []SessionInfo {
	m.mu.Lock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.info)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Handle < out[j].Handle
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *Manager) lookup(handle int64) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[handle]
	if !ok {
		return nil, invalidHandle(handle)
	}
	return s, nil
}

func invalidHandle(handle int64) error {
	return engerrors.Wrap(engerrors.KindNotFound, ErrInvalidHandle, "export handle %d", handle)
}
