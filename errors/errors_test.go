package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New("test error")
	require.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestNewf(t *testing.T) {
	err := Newf("error: %s %d", "test", 42)
	require.NotNil(t, err)
	assert.Equal(t, "error: test 42", err.Error())
}

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestWrapf(t *testing.T) {
	original := New("original")
	wrapped := Wrapf(original, "wrapped: %d", 42)

	assert.Contains(t, wrapped.Error(), "wrapped: 42")
	assert.Contains(t, wrapped.Error(), "original")
}

func TestIs(t *testing.T) {
	err1 := New("error 1")
	err2 := New("error 2")
	wrapped := Wrap(err1, "wrapped")

	assert.True(t, Is(wrapped, err1))
	assert.False(t, Is(wrapped, err2))
	assert.False(t, Is(nil, err1))
}

type customError struct {
	msg string
}

func (e *customError) Error() string {
	return e.msg
}

func TestAs(t *testing.T) {
	original := &customError{msg: "custom"}
	wrapped := Wrap(original, "wrapped")

	var target *customError
	require.True(t, As(wrapped, &target))
	assert.Equal(t, "custom", target.msg)
}

func TestWithHint(t *testing.T) {
	err := New("error")
	withHint := WithHint(err, "try this fix")

	hints := GetAllHints(withHint)
	require.Len(t, hints, 1)
	assert.Equal(t, "try this fix", hints[0])
}

func TestWithDetail(t *testing.T) {
	err := New("error")
	withDetail := WithDetail(err, "detailed information")

	details := GetAllDetails(withDetail)
	require.Len(t, details, 1)
	assert.Equal(t, "detailed information", details[0])
}

func TestWithHintf(t *testing.T) {
	err := New("error")
	withHint := WithHintf(err, "try setting value to %d", 42)

	hints := GetAllHints(withHint)
	require.Len(t, hints, 1)
	assert.Equal(t, "try setting value to 42", hints[0])
}

func TestStackTrace(t *testing.T) {
	err := New("with stack")

	// Format with stack trace
	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, "errors_test.go")
}

func TestUnwrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	unwrapped := Unwrap(wrapped)
	assert.NotNil(t, unwrapped)
}

func TestUnwrapAll(t *testing.T) {
	err1 := New("base")
	err2 := Wrap(err1, "middle")
	err3 := Wrap(err2, "top")

	all := UnwrapAll(err3)
	assert.NotEmpty(t, all)
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
	assert.Nil(t, WithStack(nil))
	assert.Nil(t, WithHint(nil, "hint"))
	assert.Nil(t, WithDetail(nil, "detail"))
}

func TestErrorChaining(t *testing.T) {
	base := New("base error")

	err := Wrap(base, "layer 1")
	err = WithHint(err, "helpful hint")
	err = WithDetail(err, "detailed info")
	err = Wrap(err, "layer 2")

	// Should preserve all context
	assert.True(t, Is(err, base))
	assert.Contains(t, err.Error(), "layer 2")
	assert.Contains(t, err.Error(), "layer 1")
	assert.Contains(t, err.Error(), "base error")

	// Hints and details should be accessible
	hints := GetAllHints(err)
	assert.Contains(t, hints, "helpful hint")

	details := GetAllDetails(err)
	assert.Contains(t, details, "detailed info")
}

func TestMarkKeepsCause(t *testing.T) {
	cause := New("wasm trap: unreachable")
	err := Mark(Wrap(cause, "detect_sqli"), ErrCall)

	assert.True(t, Is(err, ErrCall))
	assert.True(t, Is(err, cause))
	assert.Contains(t, err.Error(), "detect_sqli")
	assert.Contains(t, err.Error(), "unreachable")
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"compile", Wrap(ErrCompile, "wasm compile"), true},
		{"binding", Wrapf(ErrIncompatibleImage, "export %q missing", "detect_xss"), true},
		{"allocation", Wrap(ErrAllocation, "allocate(9)"), false},
		{"call", Mark(New("trap"), ErrCall), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}

func TestIsResourceExhausted(t *testing.T) {
	assert.False(t, IsResourceExhausted(nil))
	assert.True(t, IsResourceExhausted(Wrapf(ErrAllocation, "allocate(%d) returned null", 70009)))
	assert.False(t, IsResourceExhausted(ErrRelease))
}

func TestSecondaryErrorKeepsPrimary(t *testing.T) {
	primary := Mark(New("trap"), ErrCall)
	err := WithSecondaryError(primary, Wrap(ErrRelease, "release"))

	assert.True(t, Is(err, ErrCall))
	assert.Equal(t, primary.Error(), err.Error())
}

func ExampleNew() {
	err := New("something went wrong")
	fmt.Println(err)
	// Output: something went wrong
}

func ExampleWrap() {
	baseErr := New("out of memory")
	err := Wrap(baseErr, "allocate scratch buffer")
	fmt.Println(err)
	// Output: allocate scratch buffer: out of memory
}

func ExampleWithHint() {
	err := New("guest allocation failed")
	err = WithHint(err, "raise engine.memory_limit_pages")

	hints := GetAllHints(err)
	fmt.Println(hints[0])
	// Output: raise engine.memory_limit_pages
}
