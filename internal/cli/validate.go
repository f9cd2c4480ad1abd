package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ledgersync/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Config   string   `json:"config,omitempty"`
	Problems []string `json:"problems,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check configuration and credentials without syncing",
		Long: `Check the configuration file and LEDGERSYNC_* overrides against the
config schema, the correlation prefix rules and the credential requirements.

Every problem found is reported, not just the first. Nothing is read from
the store and nothing is sent to the ledger; with the aws credential source
the secret itself is not fetched.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	formatter.VerboseLog("Validating %s", describeConfigPath(opts.ConfigPath))

	problems := config.Diagnose(opts.ConfigPath)
	if len(problems) > 0 {
		return outputValidationProblems(formatter, opts.ConfigPath, problems)
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Config: opts.ConfigPath})
	}
	fmt.Fprintln(formatter.Writer, "✓ Configuration valid")
	return nil
}

// outputValidationProblems outputs every problem found.
func outputValidationProblems(formatter *OutputFormatter, path string, problems []string) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:    false,
				Config:   path,
				Problems: problems,
			},
			Error: &CLIError{
				Code:    ErrCodeConfig,
				Message: problems[0],
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(formatter.Writer, "✗ Configuration invalid")
		fmt.Fprintln(formatter.Writer)
		for _, p := range problems {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", ErrCodeConfig, p)
		}
	}

	// A configuration that cannot sync is a command error (exit code 2)
	return WrapExitError(ExitCommandError,
		fmt.Sprintf("validation failed with %d problem(s)", len(problems)),
		&config.Error{Problems: problems})
}

func describeConfigPath(path string) string {
	if path == "" {
		return "defaults and environment"
	}
	return path
}
