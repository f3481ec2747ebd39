package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/payflow/internal/csvio"
	"github.com/roach88/payflow/internal/event"
)

// ValidationResult holds validation results for one input file.
type ValidationResult struct {
	Valid   bool          `json:"valid"`
	Records int           `json:"records"`
	Errors  []RecordError `json:"errors,omitempty"`
}

// RecordError describes one rejected row.
type RecordError struct {
	Line    int    `json:"line"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <input.csv>",
		Short: "Validate payment events without applying them",
		Long: `Validate a CSV file of payment events without running the ledger.

Reports malformed rows and records that would fail event validation
(unknown type, missing amount). Faster feedback than a full process run;
ledger rules (duplicate ids, insufficient funds) are not checked because
they depend on processing order and balances.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, inputPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	input, err := os.Open(inputPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open input file", err)
	}
	defer input.Close()

	result := ValidationResult{Valid: true}
	reader := csvio.NewReader(input)
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, RecordError{
				Line:    reader.Line(),
				Code:    "malformed_row",
				Message: err.Error(),
			})
			continue
		}
		result.Records++
		if _, err := event.FromRecord(rec); err != nil {
			result.Errors = append(result.Errors, RecordError{
				Line:    reader.Line(),
				Code:    string(event.ValidationCodeOf(err)),
				Message: err.Error(),
			})
		}
	}
	result.Valid = len(result.Errors) == 0

	formatter.VerboseLog("Checked %d record(s) in %s", result.Records, inputPath)

	if opts.Format == "json" {
		if err := formatter.JSON(result); err != nil {
			return err
		}
	} else {
		if result.Valid {
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %d record(s) valid\n", result.Records)
		} else {
			for _, re := range result.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "line %d [%s]: %s\n", re.Line, re.Code, re.Message)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d problem(s) found\n", len(result.Errors))
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d invalid record(s)", len(result.Errors)))
	}
	return nil
}
