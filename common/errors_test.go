package common

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesKindSentinel(t *testing.T) {
	cases := []struct {
		kind     ErrorKind
		sentinel error
	}{
		{KindResourceOpen, ErrResourceOpen},
		{KindResourceRead, ErrResourceRead},
		{KindStageCompile, ErrStageCompile},
		{KindProgramLink, ErrProgramLink},
		{KindAllocation, ErrAllocation},
	}
	for _, tc := range cases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", NewError(tc.kind, "op", "subject", "", nil))
			assert.ErrorIs(t, err, tc.sentinel)
			assert.Equal(t, tc.kind, KindOf(err))
			assert.Equal(t, tc.kind == KindAllocation, IsFatal(err))
		})
	}
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := NewError(KindResourceRead, "read", "a.wgsl", "", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "ResourceReadFailure")
	assert.Contains(t, err.Error(), "a.wgsl")
	assert.Contains(t, err.Error(), "boom")
}

func TestTruncateDiagnostic(t *testing.T) {
	short := "error: unexpected token"
	assert.Equal(t, short, TruncateDiagnostic(short))

	long := strings.Repeat("x", DiagnosticLimit+100)
	assert.Len(t, TruncateDiagnostic(long), DiagnosticLimit)

	// a multi-byte rune straddling the limit is dropped whole
	straddle := strings.Repeat("a", DiagnosticLimit-1) + "é" + "tail"
	got := TruncateDiagnostic(straddle)
	require.LessOrEqual(t, len(got), DiagnosticLimit)
	assert.Equal(t, strings.Repeat("a", DiagnosticLimit-1), got)
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, ErrorKind(0), KindOf(errors.New("plain")))
	assert.False(t, IsFatal(nil))
}

func TestBytesToSliceRoundTrip(t *testing.T) {
	agents := []Agent{{X: 0.25, Y: 0.5, Heading: 0.75}, {X: 0.1, Y: 0.2, Heading: 0.3}}
	raw := SliceToBytes(agents)
	require.Len(t, raw, len(agents)*AgentStride)

	words := BytesToSlice[float32](raw)
	assert.Equal(t, []float32{0.25, 0.5, 0.75, 0.1, 0.2, 0.3}, words)
	assert.Nil(t, BytesToSlice[float32]([]byte{1, 2}))
}
