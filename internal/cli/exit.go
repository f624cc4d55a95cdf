package cli

import (
	"errors"
	"fmt"
)

// ExitError represents a CLI error with an explicit exit code.
// Codes follow timeproof semantics:
//
//	0 - success
//	1 - fatal error (no package, or verification failed)
//	2 - partial success (package written with gaps, under --strict)
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Exit codes
const (
	ExitSuccess        = 0
	ExitFatal          = 1
	ExitPartialSuccess = 2
)

// ExitCode maps any error to an exit code. Unknown errors default to 1.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ExitFatal
}

// GetExitCodeName returns a human-readable name for an exit code.
func GetExitCodeName(code int) string {
	switch code {
	case ExitSuccess:
		return "Success"
	case ExitFatal:
		return "Fatal Error"
	case ExitPartialSuccess:
		return "Partial Success"
	default:
		return fmt.Sprintf("Unknown (%d)", code)
	}
}
