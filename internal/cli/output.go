package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"possystem/backend/internal/auth"
	"possystem/backend/internal/store"
)

// Exit codes for posctl.
const (
	ExitSuccess      = 0
	ExitRefused      = 1 // the operation was refused: validation, authorization, stock
	ExitCommandError = 2 // bad flags, unreachable database, unreadable files
)

// ExitError carries the process exit code for an error.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps an error to a process exit code. Domain refusals that did
// not come wrapped exit with ExitRefused; anything else is a command error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if isRefusal(err) {
		return ExitRefused
	}
	return ExitCommandError
}

func isRefusal(err error) bool {
	return errors.Is(err, store.ErrInvalidInput) ||
		errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, store.ErrInsufficientStock) ||
		errors.Is(err, store.ErrIntegrityViolation) ||
		errors.Is(err, auth.ErrAdminRequired)
}

// Response is the JSON envelope printed with --format json.
type Response struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// OutputFormatter handles JSON vs text output for commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

// Success prints data. In text mode render writes the human form.
func (f *OutputFormatter) Success(data any, render func(w io.Writer)) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(Response{Status: "ok", Data: data})
	}
	render(f.Writer)
	return nil
}

// Failure prints err in the configured format and returns it with an exit code.
func (f *OutputFormatter) Failure(err error) error {
	code := GetExitCode(err)
	if f.Format == "json" {
		_ = json.NewEncoder(f.Writer).Encode(Response{Status: "error", Error: err.Error()})
	} else {
		fmt.Fprintf(f.errWriter(), "Error: %v\n", err)
	}
	return WrapExitError(code, "command failed", err)
}

// VerboseLog writes a diagnostic line when --verbose is set. It never writes
// to Writer in JSON mode so the envelope stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.errWriter(), format+"\n", args...)
}

func (f *OutputFormatter) errWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
