package carve_test

import (
	"errors"
	"testing"

	carve "github.com/carvefs/carve"
	"github.com/stretchr/testify/assert"
)

func TestErrorWithMessage(t *testing.T) {
	newErr := carve.ErrNotFound.WithMessage("asdfqwerty")
	assert.Equal(
		t, "No such file or directory: asdfqwerty", newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, carve.ErrNotFound)
}

func TestErrorWrap(t *testing.T) {
	originalErr := errors.New("original error")
	newErr := carve.ErrIOFailed.Wrap(originalErr)
	expectedMessage := "Input/output error: original error"

	assert.EqualValues(t, expectedMessage, newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, originalErr, "original error not set as parent")
	assert.ErrorIs(t, newErr, carve.ErrIOFailed, "sentinel not set as parent")
}
