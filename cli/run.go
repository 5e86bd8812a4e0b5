package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/petalstream"
	"github.com/petal-labs/petalstream/pipeline"
)

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Run a pipeline file and print its values",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}

	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().Duration("timeout", time.Minute, "Run timeout")
	cmd.Flags().Int("buffer", 0, "Consumer buffer size, overrides the pipeline file")
	cmd.Flags().Bool("dry-run", false, "Load and build only, do not run")
	cmd.Flags().String("otlp-endpoint", "", "Export stream spans to an OTLP/HTTP collector (host:port)")
	cmd.Flags().Bool("metrics", false, "Print a stream metrics summary to stderr after the run")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	filePath := args[0]
	logger := newLogger(cmd)

	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return exitError(exitInput, "unknown format %q (use text or json)", format)
	}

	def, err := loadPipelineForRun(cmd, filePath)
	if err != nil {
		return err
	}
	if buffer, _ := cmd.Flags().GetInt("buffer"); buffer > 0 {
		def.Buffer = buffer
	}

	tel, err := newTelemetry(cmd)
	if err != nil {
		return exitError(exitRuntime, "setting up telemetry: %v", err)
	}
	defer tel.shutdown(logger)

	opts := []petalstream.Option{petalstream.WithLogger(logger)}
	if obs := tel.observer(); obs != nil {
		opts = append(opts, petalstream.WithObserver(obs))
	}

	p, err := pipeline.Build(def, opts...)
	if err != nil {
		return exitError(exitValidation, "%v", err)
	}

	if isRunDry(cmd) {
		fmt.Fprintln(cmd.OutOrStdout(), "Validation and build successful.")
		return nil
	}

	ctx, cancel, timeout := runContext(cmd)
	defer cancel()

	values := make([]int64, 0)
	emit := func(v int64) error {
		if format == "json" {
			values = append(values, v)
			return nil
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), v)
		return err
	}

	start := time.Now()
	err = p.Run(ctx, emit)
	logger.Debug("pipeline finished", "pipeline", p.Name, "duration", time.Since(start), "error", err)

	if tel.metricsEnabled() {
		tel.printSummary(cmd.Context(), cmd.ErrOrStderr())
	}
	if err != nil {
		return runPipelineError(ctx, timeout, err, logger)
	}

	if format == "json" {
		return writeJSON(cmd.OutOrStdout(), p.Name, values)
	}
	return nil
}

func loadPipelineForRun(cmd *cobra.Command, filePath string) (*pipeline.Definition, error) {
	def, diags, err := pipeline.Load(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, exitError(exitFileNotFound, "file not found: %s", filePath)
		}
		var diagErr *pipeline.DiagnosticError
		if errors.As(err, &diagErr) {
			printDiagnosticsText(cmd.ErrOrStderr(), diagErr.Diagnostics)
			return nil, exitError(exitValidation, "validation failed")
		}
		return nil, exitError(exitValidation, "%v", err)
	}
	for _, d := range diags {
		fmt.Fprintf(cmd.ErrOrStderr(), "WARNING [%s]: %s\n", d.Code, d.Message)
	}
	return def, nil
}

func isRunDry(cmd *cobra.Command) bool {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	return dryRun
}

func runContext(cmd *cobra.Command) (context.Context, context.CancelFunc, time.Duration) {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	return ctx, cancel, timeout
}

// runPipelineError maps a run failure to an exit code. An interrupted run
// is not a failure.
func runPipelineError(ctx context.Context, timeout time.Duration, err error, logger *slog.Logger) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return exitError(exitTimeout, "pipeline timed out after %s", timeout)
	case errors.Is(err, context.Canceled):
		logger.Info("pipeline interrupted")
		return nil
	default:
		return exitError(exitRuntime, "pipeline failed: %v", err)
	}
}

func writeJSON(w io.Writer, name string, values []int64) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(struct {
		Pipeline string  `json:"pipeline"`
		Values   []int64 `json:"values"`
	}{name, values}); err != nil {
		return exitError(exitRuntime, "marshaling output: %v", err)
	}
	return nil
}

// newLogger builds the text logger for a command. Logs go to stderr so
// values on stdout stay machine readable.
func newLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	quiet, _ := cmd.Flags().GetBool("quiet")

	level := slog.LevelInfo
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}
