package streaming

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors surfaced to the HTTP layer. The handlers map these to
// status codes, so they stay coarse: what the client can act on, not what
// went wrong internally.
var (
	ErrManagerStopped    = errors.New("session manager has been stopped")
	ErrSessionGone       = errors.New("session torn down while waiting")
	ErrQualityNotAllowed = errors.New("quality not allowed for this scene")
)

// ErrorType classifies transcoder failures for logging and recovery policy
type ErrorType int

const (
	// ErrorTypeCrash indicates the transcoder exited non-zero unexpectedly
	ErrorTypeCrash ErrorType = iota
	// ErrorTypeInputMissing indicates the input file doesn't exist or is unreadable
	ErrorTypeInputMissing
	// ErrorTypeInputCorrupt indicates the input file is corrupted or undecodable
	ErrorTypeInputCorrupt
	// ErrorTypeBinaryMissing indicates the transcoder binary is not installed
	ErrorTypeBinaryMissing
	// ErrorTypeDiskSpace indicates insufficient disk space for segment output
	ErrorTypeDiskSpace
	// ErrorTypeTimeout indicates a startup or segment deadline elapsed
	ErrorTypeTimeout
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrorTypeCrash:
		return "transcoder_crash"
	case ErrorTypeInputMissing:
		return "input_missing"
	case ErrorTypeInputCorrupt:
		return "input_corrupt"
	case ErrorTypeBinaryMissing:
		return "binary_missing"
	case ErrorTypeDiskSpace:
		return "disk_space"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// TranscodeError is a classified transcoder failure
type TranscodeError struct {
	Type        ErrorType
	Message     string
	Cause       error
	Recoverable bool
}

// NewTranscodeError creates a classified transcoder error
func NewTranscodeError(errorType ErrorType, message string, cause error) *TranscodeError {
	return &TranscodeError{
		Type:        errorType,
		Message:     message,
		Cause:       cause,
		Recoverable: errorType == ErrorTypeCrash || errorType == ErrorTypeTimeout,
	}
}

// Error implements the error interface
func (e *TranscodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type.String(), e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type.String(), e.Message)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *TranscodeError) Unwrap() error {
	return e.Cause
}

// ClassifyRunnerError maps a runner failure (exit error plus captured
// stderr tail) into a TranscodeError.
func ClassifyRunnerError(err error, stderrTail string) *TranscodeError {
	if err == nil {
		return nil
	}

	var tErr *TranscodeError
	if errors.As(err, &tErr) {
		return tErr
	}

	combined := strings.ToLower(err.Error() + " " + stderrTail)

	switch {
	case strings.Contains(combined, "executable file not found"):
		return NewTranscodeError(ErrorTypeBinaryMissing, "transcoder binary not found", err)
	case strings.Contains(combined, "no such file or directory"):
		return NewTranscodeError(ErrorTypeInputMissing, "input file not found", err)
	case strings.Contains(combined, "permission denied"):
		return NewTranscodeError(ErrorTypeInputMissing, "input file not readable", err)
	case strings.Contains(combined, "invalid data found"),
		strings.Contains(combined, "could not find codec"),
		strings.Contains(combined, "moov atom not found"):
		return NewTranscodeError(ErrorTypeInputCorrupt, "input file is corrupted or invalid", err)
	case strings.Contains(combined, "no space left on device"):
		return NewTranscodeError(ErrorTypeDiskSpace, "insufficient disk space for segment output", err)
	case strings.Contains(combined, "timed out"), strings.Contains(combined, "timeout"):
		return NewTranscodeError(ErrorTypeTimeout, "transcoder operation timed out", err)
	default:
		return NewTranscodeError(ErrorTypeCrash, "transcoder process failed", err)
	}
}
