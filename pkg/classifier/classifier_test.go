package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/marmos91/resolvd/pkg/engine"
	engerrors "github.com/marmos91/resolvd/pkg/engine/errors"
	"github.com/marmos91/resolvd/pkg/runtime"
	"github.com/marmos91/resolvd/pkg/runtime/admission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ============================================================================
// Classification
// ============================================================================

func TestClassify_Kinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"nil", nil, codes.OK},
		{"not found", engerrors.NewNotFound("missing"), codes.NotFound},
		{"bad input", engerrors.NewBadInput("bad"), codes.InvalidArgument},
		{"unknown data source", engerrors.NewUnknownDataSource("X"), codes.InvalidArgument},
		{"not initialized", engerrors.NewNotInitialized(nil, "closed"), codes.FailedPrecondition},
		{"configuration", engerrors.NewConfiguration("bad config"), codes.FailedPrecondition},
		{"replace conflict", engerrors.NewReplaceConflict(1, 2), codes.FailedPrecondition},
		{"retry timeout", engerrors.NewRetryTimeoutExceeded(3, nil), codes.DeadlineExceeded},
		{"license", engerrors.NewLicense(10), codes.ResourceExhausted},
		{"throttled", engerrors.NewThrottled("/x"), codes.ResourceExhausted},
		{"retryable", engerrors.New(engerrors.KindRetryable, "try again"), codes.OutOfRange},
		{"transient", engerrors.New(engerrors.KindDatabaseTransient, "conflict"), codes.OutOfRange},
		{"unimplemented", engerrors.NewUnimplemented("Purge"), codes.Unimplemented},
		{"database", engerrors.NewDatabase(errors.New("io"), "read"), codes.Internal},
		{"unhandled", engerrors.New(engerrors.KindUnhandled, "bug"), codes.Internal},
		{"generic", engerrors.NewGeneric(errors.New("x")), codes.Internal},
		{"wrapped domain", fmt.Errorf("ctx: %w", engerrors.NewNotFound("m")), codes.NotFound},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), codes.DeadlineExceeded},
		{"wire status", status.Error(codes.Unauthenticated, "no token"), codes.Unauthenticated},
		{"foreign", errors.New("who knows"), codes.Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassify_DomainKindWinsOverWrappedStatus(t *testing.T) {
	t.Parallel()

	err := engerrors.Wrap(engerrors.KindNotFound, status.Error(codes.Unavailable, "backend gone"), "record %d gone", 7)

	assert.Equal(t, codes.NotFound, Classify(err))
	st := Default.Encode(err)
	assert.Equal(t, codes.NotFound, st.Code())
	assert.Contains(t, st.Message(), "record 7 gone")
}

func TestClassify_Deterministic(t *testing.T) {
	t.Parallel()

	err := engerrors.NewLicense(5)
	first := Classify(err)
	d1 := Default.Diagnose(err)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Classify(err))
	}
	assert.Equal(t, d1, Default.Diagnose(err))
}

func TestClassify_ConcurrentUse(t *testing.T) {
	t.Parallel()

	errs := []error{
		engerrors.NewNotFound("a"),
		engerrors.NewBadInput("b"),
		errors.New("c"),
	}
	want := []codes.Code{codes.NotFound, codes.InvalidArgument, codes.Unknown}

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				j := i % len(errs)
				assert.Equal(t, want[j], Encode(errs[j]).Code())
			}
		}()
	}
	wg.Wait()
}

func TestClassify_CustomRules(t *testing.T) {
	t.Parallel()

	c := New(WithRules([]Rule{
		{Name: "all", Match: func(error) bool { return true }, Code: codes.Aborted},
	}))
	assert.Equal(t, codes.Aborted, c.Classify(errors.New("x")))
}

// ============================================================================
// Reasons
// ============================================================================

func TestReason(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "RSLV0033|record not found", Reason(33, "record not found"))
	assert.Equal(t, "RSLV0033|record not found", Reason(33, "RSLV0033|record not found"))
	assert.Equal(t, "RSLV9000|limit", Reason(9000, "limit"))
}

func TestReason_NotDoublePrefixedWhenRewrapped(t *testing.T) {
	t.Parallel()

	inner := engerrors.NewNotFound("record R1 not found")
	reason := Default.Diagnose(inner).Reason

	// A remote failure re-raised locally keeps its already prefixed message.
	rewrapped := engerrors.NewWithCode(engerrors.KindNotFound, inner.Code, "%s", reason)
	assert.Equal(t, reason, Default.Diagnose(rewrapped).Reason)
	assert.Equal(t, 1, strings.Count(Default.Diagnose(rewrapped).Reason, ReasonPrefix))
}

func TestParseReason(t *testing.T) {
	t.Parallel()

	code, msg, ok := ParseReason("RSLV0023|unknown data source \"X|Y\"")
	require.True(t, ok)
	assert.Equal(t, 23, code)
	assert.Equal(t, "unknown data source \"X|Y\"", msg)

	_, _, ok = ParseReason("no prefix")
	assert.False(t, ok)
	_, _, ok = ParseReason("RSLVabc|x")
	assert.False(t, ok)
}

// ============================================================================
// Diagnostics
// ============================================================================

//go:noinline
func failInEngine() error {
	return engerrors.NewNotFound("entity 7 not found")
}

func TestDiagnose_OriginatingFrameSkipsConstructors(t *testing.T) {
	t.Parallel()

	d := Default.Diagnose(failInEngine())

	assert.Contains(t, d.OriginatingFrame, "classifier.failInEngine")
	assert.NotContains(t, d.OriginatingFrame, "engine/errors")
	require.NotEmpty(t, d.StackTrace)
	assert.Contains(t, d.StackTrace[0], "engine/errors")
}

func TestDiagnose_OriginatingFrameSkipsAdmissionWrap(t *testing.T) {
	t.Parallel()

	g := admission.NewGate()
	err := g.Execute(context.Background(), func(context.Context) error {
		return errors.New("plain failure")
	})
	require.Error(t, err)

	d := Default.Diagnose(err)
	assert.Contains(t, d.OriginatingFrame, "TestDiagnose_OriginatingFrameSkipsAdmissionWrap")
	assert.Equal(t, "RSLV0001|unexpected failure", d.Reason)
	assert.Equal(t, "unexpected failure: plain failure", d.Text)
}

// closeOnlyHandle is an engine that is never called; only admission matters.
type closeOnlyHandle struct {
	engine.Engine
}

func (closeOnlyHandle) Close() error { return nil }

func newEnvironment(t *testing.T) *runtime.Environment {
	t.Helper()
	reg := runtime.NewRegistry(func(context.Context) (engine.Handle, error) {
		return closeOnlyHandle{}, nil
	})
	env, err := reg.Init(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Destroy() })
	return env
}

func TestDiagnose_OriginatingFrameSkipsRuntimeHelpers(t *testing.T) {
	t.Parallel()

	env := newEnvironment(t)

	_, err := runtime.Call(context.Background(), env, func(context.Context, engine.Engine) (int, error) {
		return 0, errors.New("socket reset")
	})
	require.Error(t, err)
	d := Default.Diagnose(err)
	assert.Contains(t, d.OriginatingFrame, "TestDiagnose_OriginatingFrameSkipsRuntimeHelpers")
	assert.NotContains(t, d.OriginatingFrame, "runtime.Call")

	err = env.Execute(context.Background(), func(context.Context, engine.Engine) error {
		return errors.New("socket reset")
	})
	require.Error(t, err)
	d = Default.Diagnose(err)
	assert.Contains(t, d.OriginatingFrame, "TestDiagnose_OriginatingFrameSkipsRuntimeHelpers")
	assert.NotContains(t, d.OriginatingFrame, "Environment")
}

func TestDiagnose_ForeignErrorHasNoReason(t *testing.T) {
	t.Parallel()

	d := Default.Diagnose(errors.New("boom"))
	assert.Empty(t, d.Reason)
	assert.Equal(t, "boom", d.Text)
	assert.Empty(t, d.StackTrace)
}

func TestDiagnose_WithoutStackTrace(t *testing.T) {
	t.Parallel()

	c := New(WithStackTrace(false))
	d := c.Diagnose(failInEngine())
	assert.Empty(t, d.StackTrace)
	assert.NotEmpty(t, d.OriginatingFrame)
}

// ============================================================================
// Encoding
// ============================================================================

func TestEncode_CarriesDiagnostic(t *testing.T) {
	t.Parallel()

	st := Encode(failInEngine())
	assert.Equal(t, codes.NotFound, st.Code())

	d, ok := Decode(st)
	require.True(t, ok)
	assert.Equal(t, "RSLV0033|entity 7 not found", d.Reason)
	assert.Equal(t, "entity 7 not found", d.Text)
	assert.Contains(t, d.OriginatingFrame, "failInEngine")

	require.Len(t, st.Details(), 1)
	detail, ok := st.Details()[0].(*structpb.Struct)
	require.True(t, ok)
	assert.Equal(t, "RSLV0033|entity 7 not found", detail.Fields["reason"].GetStringValue())
	assert.NotEmpty(t, detail.Fields["stackTrace"].GetListValue().GetValues())
}

func TestEncode_WireStatusPassesThrough(t *testing.T) {
	t.Parallel()

	in := status.New(codes.Unauthenticated, "missing bearer token")
	out := Encode(in.Err())
	assert.Equal(t, codes.Unauthenticated, out.Code())
	assert.Equal(t, "missing bearer token", out.Message())
}

func TestEncode_Nil(t *testing.T) {
	t.Parallel()

	assert.Equal(t, codes.OK, Encode(nil).Code())
	assert.NoError(t, Error(nil))
}

func TestDecode_FallsBackToDetail(t *testing.T) {
	t.Parallel()

	detail, err := structpb.NewStruct(map[string]any{"reason": "RSLV0002|bad", "text": "bad"})
	require.NoError(t, err)
	st, err := status.New(codes.InvalidArgument, "not json").WithDetails(detail)
	require.NoError(t, err)

	d, ok := Decode(st)
	require.True(t, ok)
	assert.Equal(t, "RSLV0002|bad", d.Reason)
}
