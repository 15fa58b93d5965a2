package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Kind hierarchy
// ============================================================================

func TestKind_Is(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind   Kind
		target Kind
		want   bool
	}{
		{KindNotFound, KindNotFound, true},
		{KindNotFound, KindBadInput, true},
		{KindNotFound, KindGeneric, true},
		{KindUnknownDataSource, KindBadInput, true},
		{KindRetryTimeoutExceeded, KindRetryable, true},
		{KindLicense, KindUnrecoverable, true},
		{KindNotInitialized, KindUnrecoverable, true},
		{KindBadInput, KindNotFound, false},
		{KindRetryable, KindRetryTimeoutExceeded, false},
		{KindUnimplemented, KindGeneric, false},
		{KindThrottled, KindGeneric, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_is_%s", tt.kind, tt.target), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.Is(tt.target))
		})
	}
}

func TestKind_CodesAreUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[int]Kind)
	for k := range kinds {
		code := k.Code()
		prev, dup := seen[code]
		assert.Falsef(t, dup, "code %d shared by %s and %s", code, prev, k)
		seen[code] = k
	}
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "NotFound", KindNotFound.String())
	assert.Equal(t, "Kind(999)", Kind(999).String())
}

// ============================================================================
// Error construction
// ============================================================================

func TestNew_CapturesStack(t *testing.T) {
	t.Parallel()

	err := NewNotFound("record %s not found", "R1")

	assert.Equal(t, KindNotFound, err.Kind)
	assert.Equal(t, 33, err.Code)
	assert.Equal(t, "record R1 not found", err.Message)
	require.NotEmpty(t, err.StackTrace())
	assert.Contains(t, fmt.Sprintf("%+v", err), "TestNew_CapturesStack")
}

func TestNew_FormatsMessage(t *testing.T) {
	t.Parallel()

	err := New(KindBadInput, "%d%% of %s rejected", 100, "batch")
	assert.Equal(t, "100% of batch rejected", err.Error())

	// Messages received from elsewhere go through "%s" and stay verbatim.
	remote := FromCode(KindBadInput.Code(), "100% wrong")
	assert.Equal(t, "100% wrong", remote.Message)
	assert.Equal(t, KindBadInput, remote.Kind)
}

func TestWrap_PreservesCause(t *testing.T) {
	t.Parallel()

	cause := stderrors.New("disk on fire")
	err := NewDatabase(cause, "write")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "database failure during write: disk on fire", err.Error())
}

func TestFromCode(t *testing.T) {
	t.Parallel()

	err := FromCode(KindLicense.Code(), "too many records")
	assert.Equal(t, KindLicense, err.Kind)
	assert.Equal(t, "too many records", err.Message)

	unknown := FromCode(424242, "mystery")
	assert.Equal(t, KindGeneric, unknown.Kind)
	assert.Equal(t, 424242, unknown.Code)
}

// ============================================================================
// Chain inspection
// ============================================================================

func TestIsKind_ThroughWrapping(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("adding record: %w", NewUnknownDataSource("NOPE"))

	assert.True(t, IsDomain(err))
	assert.True(t, IsBadInput(err))
	assert.False(t, IsNotFound(err))

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindUnknownDataSource, kind)
}

func TestIsKind_PlainError(t *testing.T) {
	t.Parallel()

	err := stderrors.New("plain")

	assert.False(t, IsDomain(err))
	assert.False(t, IsRetryable(err))
	_, ok := KindOf(err)
	assert.False(t, ok)
}
