package carve

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Error is the error type returned by every file system operation. Each error
// in this package is derived from one of the root sentinel values below, so
// callers can classify a failure with errors.Is regardless of how many
// messages have been layered on top of it.
type Error interface {
	error
	WithMessage(message string) Error
	Wrap(err error) Error
}

type baseError string

const rootError = baseError("")

var ErrAlreadyInProgress = rootError.WithMessage("Operation already in progress")
var ErrArgumentOutOfRange = rootError.WithMessage("Numerical argument out of domain")
var ErrDirectoryNotEmpty = rootError.WithMessage("Directory not empty")
var ErrExists = rootError.WithMessage("File exists")
var ErrFileSystemCorrupted = rootError.WithMessage("Structure needs cleaning")
var ErrFileTooLarge = rootError.WithMessage("File too large")
var ErrInvalidArgument = rootError.WithMessage("Invalid argument")
var ErrIOFailed = rootError.WithMessage("Input/output error")
var ErrIsADirectory = rootError.WithMessage("Is a directory")
var ErrNameTooLong = rootError.WithMessage("File name too long")
var ErrNoSpaceOnDevice = rootError.WithMessage("No space left on device")
var ErrNotADirectory = rootError.WithMessage("Not a directory")
var ErrNotFound = rootError.WithMessage("No such file or directory")
var ErrNotMounted = rootError.WithMessage("No medium found")

func (e baseError) Error() string {
	return string(e)
}

func (e baseError) WithMessage(message string) Error {
	return customError{
		message:       message,
		originalError: e,
	}
}

func (e baseError) Wrap(err error) Error {
	return customError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

// -----------------------------------------------------------------------------

type customError struct {
	message       string
	originalError error
}

// Error implements the `error` interface. When called, it returns a string
// describing the error.
func (e customError) Error() string {
	return e.message
}

func (e customError) WithMessage(message string) Error {
	return customError{
		message:       fmt.Sprintf("%s: %s", e.message, message),
		originalError: e,
	}
}

func (e customError) Wrap(err error) Error {
	return customError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

func (e customError) Unwrap() error {
	return e.originalError
}
