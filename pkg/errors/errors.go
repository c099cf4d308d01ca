package errors

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownCollection = errors.New("unknown collection")
	ErrInvalidKeyPath    = errors.New("invalid key path")
	ErrInvalidTimestamp  = errors.New("invalid timestamp")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrInternal          = errors.New("internal error")
)

// Process exit codes reported by the CLI.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitConfig  = 2
)

type AppError struct {
	Err      error
	Message  string
	ExitCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, exitCode int, message string) *AppError {
	return &AppError{
		Err:      sentinel,
		Message:  message,
		ExitCode: exitCode,
	}
}

func Newf(sentinel error, exitCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:      sentinel,
		Message:  fmt.Sprintf(format, args...),
		ExitCode: exitCode,
	}
}

// IsConfigError reports whether err was detected before any scanning began
// and therefore left the store untouched.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrUnknownCollection) ||
		errors.Is(err, ErrInvalidKeyPath) ||
		errors.Is(err, ErrInvalidTimestamp) ||
		errors.Is(err, ErrInvalidConfig)
}

func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.ExitCode
	}
	if IsConfigError(err) {
		return ExitConfig
	}
	return ExitFailure
}
