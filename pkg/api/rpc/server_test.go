package rpc

import (
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/resolvd/pkg/api/auth"
	"github.com/marmos91/resolvd/pkg/classifier"
	"github.com/marmos91/resolvd/pkg/engine"
	"github.com/marmos91/resolvd/pkg/engine/badger"
	engerrors "github.com/marmos91/resolvd/pkg/engine/errors"
	"github.com/marmos91/resolvd/pkg/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// ============================================================================
// Test harness
// ============================================================================

type harness struct {
	registry *runtime.Registry
	server   *Server
	listener *bufconn.Listener
}

func (h *harness) dial(t *testing.T, opts ...DialOption) *Client {
	t.Helper()
	opts = append(opts, WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return h.listener.DialContext(ctx)
	})))
	c, err := Dial("passthrough:///bufnet", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func badgerOpener(t *testing.T) runtime.Opener {
	return func(ctx context.Context) (engine.Handle, error) {
		return badger.Open(ctx, badger.Config{
			InMemory:    true,
			DataSources: []string{"CUSTOMERS", "WATCHLIST"},
		}, "test")
	}
}

func startHarness(t *testing.T, cfg Config, open runtime.Opener, opts ...Option) *harness {
	t.Helper()

	reg := runtime.NewRegistry(open, runtime.WithPollInterval(5*time.Millisecond))
	_, err := reg.Init(context.Background())
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	srv, err := NewServer(cfg, reg, append(opts, WithListener(lis), WithVersion("test"))...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	<-srv.Ready()

	t.Cleanup(func() {
		cancel()
		<-done
		_ = reg.Destroy()
	})
	return &harness{registry: reg, server: srv, listener: lis}
}

// lettersHandle serves a fixed three line JSON report over a real store.
type lettersHandle struct {
	engine.Handle
}

func (lettersHandle) ExportJSON(context.Context) (engine.Iterator, error) {
	return engine.NewSliceIterator("a", "b", "c"), nil
}

func requireCode(t *testing.T, err error, code codes.Code) *RemoteError {
	t.Helper()
	require.Error(t, err)
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, code, re.Code, "error: %v", err)
	return re
}

type recordingRPCMetrics struct {
	mu      sync.Mutex
	calls   map[string]int
	limited int
}

func (m *recordingRPCMetrics) ObserveCall(method, code string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[method+" "+code]++
}

func (m *recordingRPCMetrics) ObserveRateLimited(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limited++
}

func (m *recordingRPCMetrics) count(method, code string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[FullMethod(method)+" "+code]
}

// ============================================================================
// Engine calls
// ============================================================================

func TestRecords_ResolveOverRPC(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Config{}, badgerOpener(t))
	c := h.dial(t)
	ctx := context.Background()

	first, err := c.AddRecord(ctx, engine.Record{DataSource: "CUSTOMERS", RecordID: "1", Attributes: map[string]string{"EMAIL": "ada@example.com"}})
	require.NoError(t, err)
	second, err := c.AddRecord(ctx, engine.Record{DataSource: "WATCHLIST", RecordID: "W1", Attributes: map[string]string{"EMAIL": "ada@example.com"}})
	require.NoError(t, err)
	assert.Equal(t, first.EntityID, second.EntityID)

	ent, err := c.GetEntityByRecordID(ctx, engine.RecordKey{DataSource: "WATCHLIST", RecordID: "W1"})
	require.NoError(t, err)
	assert.Len(t, ent.Records, 2)

	stats, err := c.GetStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Records)
	assert.EqualValues(t, 1, stats.Entities)

	v, err := c.GetVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test", v.Server)
	assert.Equal(t, "test", v.Engine.Version)
}

func TestServer_UsesConfiguredClassifier(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Config{}, badgerOpener(t), WithClassifier(classifier.New(classifier.WithStackTrace(false))))
	c := h.dial(t)

	_, err := c.GetRecord(context.Background(), engine.RecordKey{DataSource: "CUSTOMERS", RecordID: "missing"})
	re := requireCode(t, err, codes.NotFound)
	assert.Empty(t, re.Diagnostic.StackTrace)
	assert.NotEmpty(t, re.Diagnostic.OriginatingFrame)

	// The package default is untouched and still reports stacks.
	assert.NotEmpty(t, classifier.Default.Diagnose(engerrors.NewNotFound("record missing")).StackTrace)
}

func TestRecords_DomainFailuresAreClassified(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Config{}, badgerOpener(t))
	c := h.dial(t)
	ctx := context.Background()

	_, err := c.GetRecord(ctx, engine.RecordKey{DataSource: "CUSTOMERS", RecordID: "missing"})
	re := requireCode(t, err, codes.NotFound)
	assert.True(t, strings.HasPrefix(re.Diagnostic.Reason, classifier.ReasonPrefix))
	assert.True(t, engerrors.IsNotFound(err), "client side error should unwrap to the engine kind")

	_, err = c.AddRecord(ctx, engine.Record{DataSource: "NOPE", RecordID: "1"})
	requireCode(t, err, codes.InvalidArgument)

	cfg, err := c.ListDataSources(ctx)
	require.NoError(t, err)
	_, err = c.ReplaceConfig(ctx, cfg.Version+1, []string{"CUSTOMERS"})
	requireCode(t, err, codes.FailedPrecondition)
}

func TestPurgeRepository_Unimplemented(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Config{}, badgerOpener(t))
	c := h.dial(t)

	err := c.PurgeRepository(context.Background())
	requireCode(t, err, codes.Unimplemented)
}

// ============================================================================
// Export sessions
// ============================================================================

func TestExport_FetchesLinesInOrderThenEOF(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Config{}, func(ctx context.Context) (engine.Handle, error) {
		s, err := badgerOpener(t)(ctx)
		if err != nil {
			return nil, err
		}
		return lettersHandle{Handle: s}, nil
	})
	c := h.dial(t)
	ctx := context.Background()

	handle, err := c.ExportOpen(ctx, engine.ExportJSON, nil)
	require.NoError(t, err)
	assert.NotZero(t, handle)

	for _, want := range []string{"a", "b", "c"} {
		line, err := c.ExportFetchNext(ctx, handle)
		require.NoError(t, err)
		assert.Equal(t, want, line)
	}
	_, err = c.ExportFetchNext(ctx, handle)
	assert.ErrorIs(t, err, io.EOF)
	_, err = c.ExportFetchNext(ctx, handle)
	assert.ErrorIs(t, err, io.EOF, "exhausted sessions keep returning EOF until closed")

	require.NoError(t, c.ExportClose(ctx, handle))

	_, err = c.ExportFetchNext(ctx, handle)
	requireCode(t, err, codes.NotFound)
	requireCode(t, c.ExportClose(ctx, handle), codes.NotFound)
}

func TestExport_EmptyReportIsImmediateEOF(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Config{}, badgerOpener(t))
	c := h.dial(t)
	ctx := context.Background()

	handle, err := c.ExportOpen(ctx, engine.ExportJSON, nil)
	require.NoError(t, err)
	_, err = c.ExportFetchNext(ctx, handle)
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, c.ExportClose(ctx, handle))
}

func TestExport_InvalidHandle(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Config{}, badgerOpener(t))
	c := h.dial(t)

	for _, handle := range []int64{0, -1, 12345} {
		_, err := c.ExportFetchNext(context.Background(), handle)
		re := requireCode(t, err, codes.NotFound)
		assert.NotEmpty(t, re.Diagnostic.Text)
	}
}

func TestExport_CSVColumnsAndStream(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Config{}, badgerOpener(t))
	c := h.dial(t)
	ctx := context.Background()

	_, err := c.AddRecord(ctx, engine.Record{DataSource: "CUSTOMERS", RecordID: "1", Attributes: map[string]string{"NAME_FULL": "Ada"}})
	require.NoError(t, err)

	var lines []string
	err = c.StreamExport(ctx, engine.ExportCSV, []string{"RECORD_ID", "NAME_FULL"}, func(line string) error {
		lines = append(lines, line)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"RECORD_ID,NAME_FULL", "1,Ada"}, lines)

	env, err := h.registry.Current()
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return env.Exports().Len() == 0 }, time.Second, 5*time.Millisecond,
		"streamed sessions are closed when the stream ends")
}

func TestExport_StreamCallbackErrorStops(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Config{}, func(ctx context.Context) (engine.Handle, error) {
		s, err := badgerOpener(t)(ctx)
		if err != nil {
			return nil, err
		}
		return lettersHandle{Handle: s}, nil
	})
	c := h.dial(t)

	stop := engerrors.NewBadInput("stop")
	var seen []string
	err := c.StreamExport(context.Background(), engine.ExportJSON, nil, func(line string) error {
		seen = append(seen, line)
		return stop
	})
	assert.Same(t, stop, err)
	assert.Equal(t, []string{"a"}, seen)
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestCalls_AfterDestroyFailPrecondition(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Config{}, badgerOpener(t))
	c := h.dial(t)
	ctx := context.Background()

	handle, err := c.ExportOpen(ctx, engine.ExportJSON, nil)
	require.NoError(t, err)

	require.NoError(t, h.registry.Destroy())

	_, err = c.GetStats(ctx)
	re := requireCode(t, err, codes.FailedPrecondition)
	assert.True(t, engerrors.IsNotInitialized(err))
	assert.NotEmpty(t, re.Diagnostic.Reason)

	_, err = c.ExportFetchNext(ctx, handle)
	requireCode(t, err, codes.FailedPrecondition)
	_, err = c.ExportOpen(ctx, engine.ExportCSV, nil)
	requireCode(t, err, codes.FailedPrecondition)
}

// ============================================================================
// Rate limiting and authentication
// ============================================================================

func TestRateLimit_RejectsOverBurst(t *testing.T) {
	t.Parallel()
	m := &recordingRPCMetrics{}
	h := startHarness(t, Config{RateLimit: RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, Burst: 1}},
		badgerOpener(t), WithMetrics(m))
	c := h.dial(t)
	ctx := context.Background()

	_, err := c.GetVersion(ctx)
	require.NoError(t, err)

	_, err = c.GetVersion(ctx)
	re := requireCode(t, err, codes.ResourceExhausted)
	code, _, ok := classifier.ParseReason(re.Diagnostic.Reason)
	require.True(t, ok)
	assert.Equal(t, engerrors.KindThrottled.Code(), code)

	assert.Equal(t, 1, m.count(MethodGetVersion, codes.OK.String()))
	assert.Equal(t, 1, m.count(MethodGetVersion, codes.ResourceExhausted.String()))
	m.mu.Lock()
	assert.Equal(t, 1, m.limited)
	m.mu.Unlock()
}

func TestAuth(t *testing.T) {
	t.Parallel()
	cfg := Config{Auth: AuthConfig{Enabled: true, Secret: testSecret}}
	h := startHarness(t, cfg, badgerOpener(t))

	tokens, err := auth.NewService(auth.Config{Secret: testSecret})
	require.NoError(t, err)
	issue := func(scope auth.Scope) string {
		tok, err := tokens.Issue("tester", scope, time.Hour)
		require.NoError(t, err)
		return tok.Token
	}
	ctx := context.Background()
	rec := engine.Record{DataSource: "CUSTOMERS", RecordID: "1", Attributes: map[string]string{"EMAIL": "a@x.io"}}

	t.Run("missing token", func(t *testing.T) {
		_, err := h.dial(t).GetStats(ctx)
		requireCode(t, err, codes.Unauthenticated)
	})

	t.Run("invalid token", func(t *testing.T) {
		_, err := h.dial(t, WithToken("not-a-jwt")).GetStats(ctx)
		requireCode(t, err, codes.Unauthenticated)
	})

	t.Run("foreign signature", func(t *testing.T) {
		other, err := auth.NewService(auth.Config{Secret: strings.Repeat("z", 32)})
		require.NoError(t, err)
		tok, err := other.Issue("tester", auth.ScopeWrite, time.Hour)
		require.NoError(t, err)
		_, err = h.dial(t, WithToken(tok.Token)).GetStats(ctx)
		requireCode(t, err, codes.Unauthenticated)
	})

	t.Run("read scope", func(t *testing.T) {
		c := h.dial(t, WithToken(issue(auth.ScopeRead)))
		_, err := c.GetStats(ctx)
		require.NoError(t, err)
		_, err = c.AddRecord(ctx, rec)
		requireCode(t, err, codes.PermissionDenied)
	})

	t.Run("write scope", func(t *testing.T) {
		c := h.dial(t, WithToken(issue(auth.ScopeWrite)))
		_, err := c.AddRecord(ctx, rec)
		require.NoError(t, err)
	})
}

func TestNewServer_RejectsShortSecret(t *testing.T) {
	t.Parallel()
	reg := runtime.NewRegistry(badgerOpener(t))
	_, err := NewServer(Config{Auth: AuthConfig{Enabled: true, Secret: "short"}}, reg)
	assert.ErrorIs(t, err, auth.ErrInvalidSecretLength)
}

// ============================================================================
// Client error decoding
// ============================================================================

func TestDecodeError(t *testing.T) {
	t.Parallel()

	t.Run("classified status", func(t *testing.T) {
		err := decodeError(classifier.Error(engerrors.NewNotFound("record %s", "1")))
		re := requireCode(t, err, codes.NotFound)
		assert.Equal(t, "NotFound: "+re.Diagnostic.Reason, err.Error())
		assert.True(t, engerrors.IsNotFound(err))
		assert.Equal(t, codes.NotFound, status.Code(err))
	})

	t.Run("plain status", func(t *testing.T) {
		err := decodeError(status.Error(codes.Unavailable, "connection refused"))
		re := requireCode(t, err, codes.Unavailable)
		assert.Equal(t, "connection refused", re.Diagnostic.Text)
		assert.Nil(t, re.Unwrap())
	})

	t.Run("unknown reason code", func(t *testing.T) {
		st := status.New(codes.Unknown, `{"error":{"reason":"RSLV7777|odd","text":"odd"}}`)
		err := decodeError(st.Err())
		assert.True(t, engerrors.IsKind(err, engerrors.KindGeneric))
	})
}
