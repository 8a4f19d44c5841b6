package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errCause = errors.New("cause")

func TestWrapPreservesCause(t *testing.T) {
	err := Wrap(errCause, CodeForbidden, "not allowed")

	assert.ErrorIs(t, err, errCause)
	assert.True(t, HasCode(err, CodeForbidden))
	assert.False(t, HasCode(err, CodeNotFound))
	assert.Equal(t, "not allowed: cause", err.Error())
}

func TestHasCodeThroughFmtWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeConflict, "exists"))

	code, ok := CodeOf(err)
	assert.True(t, ok)
	assert.Equal(t, CodeConflict, code)
	assert.True(t, Is(err, CodeConflict))
}

func TestCodeOfPlainError(t *testing.T) {
	_, ok := CodeOf(errCause)
	assert.False(t, ok)
	assert.False(t, HasCode(nil, CodeInternal))
}
