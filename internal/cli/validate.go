package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/txiso/internal/harness"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                  `json:"valid"`
	Files  int                   `json:"files"`
	Errors []harness.SchemaError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenarios-dir>",
		Short: "Validate scenarios without running them",
		Long: `Validate YAML scenario files without running them.

Checks every file against the scenario schema, then checks what the schema
cannot express: the experiment and transfer sections are exclusive, assertion
bounds are ordered, and lock and isolation names parse. Nothing touches a
store.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return formatter.Fail(ExitCommandError, ErrCodeUsage, fmt.Sprintf("scenarios directory not found: %s", scenariosDir), nil)
	}

	files, err := findScenarioFiles(scenariosDir, "")
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeUsage, "failed to find scenarios", err)
	}
	if len(files) == 0 {
		return formatter.Fail(ExitCommandError, ErrCodeUsage, fmt.Sprintf("no scenario files found in %s", scenariosDir), nil)
	}

	formatter.VerboseLog("Found %d scenario file(s) in %s", len(files), scenariosDir)

	var errs []harness.SchemaError
	for _, path := range files {
		formatter.VerboseLog("Validating %s", path)
		errs = append(errs, validateScenarioFile(path)...)
	}

	if len(errs) > 0 {
		return outputValidationErrors(formatter, len(files), errs)
	}
	return outputValidateSuccess(formatter, len(files))
}

// validateScenarioFile runs schema validation and, when that passes, the
// semantic checks of ParseScenario.
func validateScenarioFile(path string) []harness.SchemaError {
	data, err := os.ReadFile(path)
	if err != nil {
		return []harness.SchemaError{{File: path, Message: err.Error()}}
	}
	if errs := harness.ValidateSchema(path, data); len(errs) > 0 {
		return errs
	}
	if _, err := harness.ParseScenario(data); err != nil {
		return []harness.SchemaError{{File: path, Message: err.Error()}}
	}
	return nil
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, files int) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Files: files})
	}

	fmt.Fprintln(formatter.Writer, "✓ All scenarios valid")
	return nil
}

// outputValidationErrors outputs validation errors.
func outputValidationErrors(formatter *OutputFormatter, files int, errs []harness.SchemaError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:  false,
				Files:  files,
				Errors: errs,
			},
			Error: &CLIError{
				Code:    ErrCodeInvalid,
				Message: errs[0].Error(),
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range errs {
		fmt.Fprintf(formatter.Writer, "  %s\n", e.Error())
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
