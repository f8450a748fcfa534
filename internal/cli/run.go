package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/jagtrack/internal/adapters"
	"github.com/roach88/jagtrack/internal/engine"
	"github.com/roach88/jagtrack/internal/harness"
	"github.com/roach88/jagtrack/internal/ir"
	"github.com/roach88/jagtrack/internal/jag"
	"github.com/roach88/jagtrack/internal/store"
	"github.com/roach88/jagtrack/internal/testutil"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database   string
	MaxPending int

	// IDPrefix switches instance ids from UUIDv7 to "<prefix>-1",
	// "<prefix>-2", ... so that replay can be checked against the log.
	IDPrefix string
}

// RunResult is the outcome of processing one event file.
type RunResult struct {
	Events       int                 `json:"events"`
	Accepted     int                 `json:"accepted"`
	Publications int                 `json:"publications"`
	Unresolved   int                 `json:"unresolved"`
	Observers    []string            `json:"observers"`
	Summaries    []ir.SummaryPayload `json:"summaries"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <catalog-dir> <events.yaml>",
		Short: "Process observer events and record the log",
		Long: `Process observer events through the tracking engine.

The events file uses the scenario format; only its events list is read.
Pass "-" to read events from stdin. Every accepted event and every
publication it causes is recorded in a SQLite database, which must be
new or empty. After the last event the merged summary of every
top-level activity is printed.

Example:
  jagtrack run --db ./rescue.db ./catalog ./events.yaml
  jagtrack run --db ./rescue.db --id-prefix obs ./catalog - < events.yaml`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().IntVar(&opts.MaxPending, "max-pending", engine.DefaultMaxPending, "orphan events buffered per observer")
	cmd.Flags().StringVar(&opts.IDPrefix, "id-prefix", "", "use sequential instance ids with this prefix")

	return cmd
}

func runEngine(opts *RunOptions, catalogDir, eventsPath string, cmd *cobra.Command) error {
	if opts.MaxPending <= 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--max-pending must be positive, got %d", opts.MaxPending))
	}

	instanceIDs, mergedIDs := idGenerators(opts.IDPrefix)

	slog.Info("loading catalog", "dir", catalogDir)
	reg, templates, err := loadRegistry(catalogDir, instanceIDs)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load catalog", err)
	}

	events, err := readEvents(eventsPath, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	last, err := st.LastSeq(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read database", err)
	}
	if last > 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("database %s already holds a log (last seq %d)", opts.Database, last))
	}

	eng := engine.New(reg, adapters.Generic(templateURNs(templates)...),
		engine.WithStore(st),
		engine.WithMaxPending(opts.MaxPending),
		engine.WithIDGenerator(mergedIDs),
	)

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	// The whole file is queued up front; Run returns once it is drained.
	for _, ev := range events {
		eng.Enqueue(ev)
	}
	eng.Stop()

	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	result, err := collectRunResult(context.WithoutCancel(ctx), st, eng, len(events))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read results", err)
	}

	if flushErr := eng.Flush(); flushErr != nil {
		slog.Debug("dropped orphan events", "error", flushErr)
	}

	formatter := newFormatter(opts.RootOptions, cmd)
	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	outputRunText(formatter.Writer, result)
	return nil
}

// idGenerators returns the instance and merged-tree id generators. An
// empty prefix selects UUIDv7 for both.
func idGenerators(prefix string) (jag.IDGenerator, engine.IDGenerator) {
	if prefix == "" {
		return engine.UUIDv7Generator{}, engine.UUIDv7Generator{}
	}
	return testutil.NewSequenceIDs(prefix), testutil.NewSequenceIDs(prefix + "-" + harness.MergedIDPrefix)
}

// readEvents reads the events list of a scenario-format file. "-" reads
// stdin.
func readEvents(path string, stdin io.Reader) ([]ir.Inbound, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	scenario, err := harness.ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if len(scenario.Events) == 0 {
		return nil, errors.New("no events in file")
	}

	events := make([]ir.Inbound, len(scenario.Events))
	for i, step := range scenario.Events {
		events[i] = step.Inbound
	}
	return events, nil
}

func collectRunResult(ctx context.Context, st *store.Store, eng *engine.Engine, submitted int) (RunResult, error) {
	obs, err := st.ReadObservations(ctx)
	if err != nil {
		return RunResult{}, err
	}
	pubs, err := st.ReadPublications(ctx)
	if err != nil {
		return RunResult{}, err
	}
	summaries, err := eng.Summaries("")
	if err != nil {
		return RunResult{}, err
	}

	result := RunResult{
		Events:       submitted,
		Accepted:     len(obs),
		Publications: len(pubs),
		Observers:    eng.Observers(),
		Summaries:    summaries,
	}
	for _, name := range result.Observers {
		result.Unresolved += eng.Pending(name)
	}
	if result.Summaries == nil {
		result.Summaries = []ir.SummaryPayload{}
	}
	return result, nil
}

func outputRunText(w io.Writer, result RunResult) {
	fmt.Fprintf(w, "Processed %d event(s): %d accepted, %d publication(s)\n",
		result.Events, result.Accepted, result.Publications)
	if len(result.Observers) > 0 {
		fmt.Fprintf(w, "Observers: %s\n", strings.Join(result.Observers, ", "))
	}
	if result.Unresolved > 0 {
		fmt.Fprintf(w, "Warning: %d event(s) never matched an instance\n", result.Unresolved)
	}

	for _, s := range result.Summaries {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s %s\n", s.Identity.URN, formatPairs(s.Identity.Inputs))
		fmt.Fprintf(w, "  instances:  %s\n", formatPairs(s.ObserverInstances))
		fmt.Fprintf(w, "  active:     %.3f s\n", s.ActiveDuration)
		fmt.Fprintf(w, "  redundancy: %.3f\n", s.RedundancyRatio)
		fmt.Fprintf(w, "  efficiency: %.3f\n", s.JointActivityEfficiency)
	}
}

// formatPairs renders a string map as {k:v,...} in key order.
func formatPairs[M ~map[string]string](m M) string {
	parts := make([]string, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		parts = append(parts, k+":"+m[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}
