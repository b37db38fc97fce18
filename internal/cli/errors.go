package cli

import "errors"

// ExitError carries an explicit process exit code out of a command's
// RunE so main can translate it without string matching.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return "exit"
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// Exit builds an ExitError with no message, for commands whose output
// already explained the result.
func Exit(code int) *ExitError {
	return &ExitError{Code: code}
}

// Exitf wraps err with an explicit exit code.
func Exitf(code int, err error) *ExitError {
	return &ExitError{Code: code, Err: err}
}

func asExitError(err error, target **ExitError) bool {
	return errors.As(err, target)
}
