package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/jagtrack/internal/catalog"
	"github.com/roach88/jagtrack/internal/registry"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool           `json:"valid"`
	Templates int            `json:"templates"`
	Errors    []CatalogIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <catalog-dir>",
		Short: "Validate a template catalog",
		Long: `Validate the CUE template catalog in a directory.

Each template is checked against the catalog schema, then the catalog
as a whole is checked for children that name unknown templates and for
templates that contain themselves.

Exit codes:
  0 - Catalog is valid
  1 - Catalog has errors
  2 - Command error (directory not found, CUE does not build, etc.)

Examples:
  jagtrack validate ./catalog
  jagtrack validate ./catalog --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	res, loadErrors := catalog.Load(dir)

	// Nothing compiled at all: directory missing, no files, CUE errors.
	if res == nil {
		issue := issueFromError(loadErrors[0])
		return outputValidateError(formatter, issue.Code, issue.Message)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", res.FileCount, dir)
	for _, t := range res.Templates {
		formatter.VerboseLog("Template %s: %s %s, %d child(ren)", t.URN, t.Connector.Execution, t.Connector.Operator, len(t.Children))
	}

	var issues []CatalogIssue
	for _, err := range loadErrors {
		issues = append(issues, issueFromError(err))
	}

	// Cross-template checks only make sense once every template compiled;
	// a broken template would show up again as an unknown child.
	if len(issues) == 0 {
		if _, err := registry.New(res.Templates, nil); err != nil {
			issues = append(issues, registryIssues(err)...)
		}
	}

	if len(issues) > 0 {
		return outputValidationErrors(formatter, len(res.Templates), issues)
	}
	return outputValidateSuccess(formatter, len(res.Templates))
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, templates int) error {
	if formatter.IsJSON() {
		return formatter.Success(ValidationResult{Valid: true, Templates: templates})
	}

	fmt.Fprintf(formatter.Writer, "✓ Catalog valid: %d template(s)\n", templates)
	return nil
}

// outputValidateError outputs an error that stopped validation early.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs every issue found in the catalog.
func outputValidationErrors(formatter *OutputFormatter, templates int, issues []CatalogIssue) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))

	if formatter.IsJSON() {
		err := formatter.Respond(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Templates: templates, Errors: issues},
			Error: &CLIError{
				Code:    issues[0].Code,
				Message: issues[0].Message,
			},
		})
		if err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, issue := range issues {
		if issue.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s:%d\n", issue.File, issue.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
	}

	return failure
}
