package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/ledgersync/internal/commerce"
	"github.com/roach88/ledgersync/internal/config"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // A batch failed or the remote was unreachable; records stay unsynced
	ExitCommandError = 2 // Configuration, credentials, store or run-lock problem; nothing was submitted
)

// Error codes reported in CLIError.Code.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeConfig        = "E002" // Configuration or credentials invalid
	ErrCodeStore         = "E003" // Local store unavailable
	ErrCodeRunInProgress = "E004" // Another sync run holds the lock
	ErrCodeSyncFailed    = "E005" // At least one batch failed
	ErrCodeImport        = "E006" // Fixture could not be imported
	ErrCodeUsage         = "E007" // Bad flag value
	ErrCodeScenario      = "E008" // A harness scenario failed
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Configuration errors and a held run lock map to ExitCommandError even when
// they were not wrapped in an ExitError. Anything else is ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if isCommandError(err) {
		return ExitCommandError
	}
	return ExitFailure
}

func isCommandError(err error) bool {
	return config.IsError(err) || errors.Is(err, commerce.ErrRunInProgress)
}

// errorCode picks the CLIError code for err.
func errorCode(err error) string {
	switch {
	case config.IsError(err):
		return ErrCodeConfig
	case errors.Is(err, commerce.ErrRunInProgress):
		return ErrCodeRunInProgress
	default:
		return ErrCodeGeneric
	}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`           // "ok" or "error"
	Data   any       `json:"data,omitempty"`   // success payload
	Error  *CLIError `json:"error,omitempty"`  // error details
	RunID  string    `json:"run_id,omitempty"` // sync run, when one was started
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
// In text mode data is printed with its String method when it has one.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
			RunID:  runIDOf(data),
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
			RunID: runIDOf(details),
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if details != nil && (f.Verbose || isSummary(details)) {
		fmt.Fprintln(f.Writer, details)
	}
	return nil
}

// Fail reports err through the formatter and returns the matching ExitError.
// Only sync failures and unclassified errors exit with ExitFailure; every
// other code means the command could not do its work at all.
func (f *OutputFormatter) Fail(code, message string, err error, details any) error {
	full := message
	if err != nil {
		full = fmt.Sprintf("%s: %v", message, err)
	}
	_ = f.Error(code, full, details)

	exit := ExitCommandError
	if (code == ErrCodeSyncFailed || code == ErrCodeGeneric) && !isCommandError(err) {
		exit = ExitFailure
	}
	return WrapExitError(exit, message, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

type runIDer interface{ GetRunID() string }

func runIDOf(v any) string {
	if r, ok := v.(runIDer); ok {
		return r.GetRunID()
	}
	return ""
}

// isSummary reports whether details is a run summary, which is printed even
// without --verbose so operators see what did succeed.
func isSummary(details any) bool {
	_, ok := details.(*SyncSummary)
	return ok
}
