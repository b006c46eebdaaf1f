package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lookingglass/internal/harness"
)

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace <scenario-file>",
		Short: "Run one scenario and print its trace",
		Long: `Run a single scenario and print every event, emission, error and
transaction step in the order it happened.

Examples:
  lookingglass trace ./scenarios/counter.yaml
  lookingglass trace ./scenarios/counter.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runTrace(opts *RootOptions, file string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	h := harness.New(harness.WithLogger(formatter.Logger()), harness.WithDebug(opts.Verbose))
	result, err := h.Run(scenario)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}

	if opts.Format == "json" {
		if err := formatter.JSON(CLIResponse{Status: "ok", Data: result}); err != nil {
			return err
		}
	} else {
		printTrace(cmd.OutOrStdout(), scenario.Name, result)
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

// printTrace writes one line per trace entry.
func printTrace(w io.Writer, name string, result *harness.Result) {
	fmt.Fprintf(w, "Trace: %s\n", name)
	for _, e := range result.Trace {
		fmt.Fprintf(w, "  [%d] %s\n", e.Step, formatEntry(e))
	}
	fmt.Fprintf(w, "Final: %v\n", result.Final)
	for _, msg := range result.Errors {
		fmt.Fprintf(w, "✗ %s\n", strings.TrimSpace(msg))
	}
}

func formatEntry(e harness.TraceEntry) string {
	switch e.Kind {
	case harness.KindEvent:
		status := "committed"
		if !e.Committed {
			status = "uncommitted"
		}
		line := fmt.Sprintf("%-6s %s seq=%d %s %v", e.Op, e.ID, e.Seq, status, e.Value)
		if e.Code != "" {
			line += " " + e.Code
		}
		return line
	case harness.KindEmit:
		return fmt.Sprintf("emit   %v", e.Value)
	case harness.KindError:
		return fmt.Sprintf("error  %s", e.Code)
	case harness.KindDo:
		line := fmt.Sprintf("do     %s", e.Action)
		if e.Code != "" {
			line += " " + e.Code
		}
		return line
	default:
		return fmt.Sprintf("%-6s %s (%s)", e.Kind, e.Token, e.ID)
	}
}
