package cli

import (
	"context"
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/roach88/jagtrack/internal/adapters"
	"github.com/roach88/jagtrack/internal/engine"
	"github.com/roach88/jagtrack/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database   string
	MaxPending int
	IDPrefix   string // set when the log was recorded with run --id-prefix
}

// ReplayObserverResult holds the replay statistics for one observer.
type ReplayObserverResult struct {
	Observer     string `json:"observer"`
	Observations int    `json:"observations"`
	Publications int    `json:"publications"`
	Activities   int    `json:"activities"`
	Unresolved   int    `json:"unresolved"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Observers     []ReplayObserverResult `json:"observers"`
	Observations  int                    `json:"observations"`
	Failed        int                    `json:"failed"`
	Publications  int                    `json:"publications"`
	Deterministic bool                   `json:"deterministic"`
	// MatchesLog is set only when replay ids can match the recorded ones.
	MatchesLog *bool  `json:"matches_log,omitempty"`
	Difference string `json:"difference,omitempty"`
}

// OK reports whether every check passed.
func (r ReplayResult) OK() bool {
	return r.Deterministic && (r.MatchesLog == nil || *r.MatchesLog)
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <catalog-dir>",
		Short: "Replay the observation log and verify determinism",
		Long: `Replay recorded observations and verify determinism.

All observations are read in seq order and replayed twice into fresh
engines with sequential instance ids. The two sets of publications
must be identical. When the log was recorded with run --id-prefix,
pass the same prefix and the replay is also compared with the
recorded publications.

Exit codes:
  0 - Replay is deterministic
  1 - Determinism verification failed (differences detected)
  2 - Command error (database not found, invalid catalog, etc.)

Examples:
  jagtrack replay --db ./rescue.db ./catalog
  jagtrack replay --db ./rescue.db --id-prefix obs ./catalog
  jagtrack replay --db ./rescue.db ./catalog --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().IntVar(&opts.MaxPending, "max-pending", engine.DefaultMaxPending, "orphan events buffered per observer")
	cmd.Flags().StringVar(&opts.IDPrefix, "id-prefix", "", "instance id prefix the log was recorded with")

	return cmd
}

func runReplay(opts *ReplayOptions, catalogDir string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	if _, _, err := loadRegistry(catalogDir, nil); err != nil {
		return WrapExitError(ExitCommandError, "failed to load catalog", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	observations, err := st.ReadObservations(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read observations", err)
	}
	if len(observations) == 0 {
		if formatter.IsJSON() {
			return outputReplayJSON(formatter, ReplayResult{Observers: []ReplayObserverResult{}, Deterministic: true})
		}
		fmt.Fprintln(formatter.Writer, "No observations found in database.")
		return nil
	}
	formatter.VerboseLog("Replaying %d observation(s)", len(observations))

	first, err := replayOnce(ctx, opts, catalogDir, observations)
	if err != nil {
		return WrapExitError(ExitCommandError, "first replay failed", err)
	}
	second, err := replayOnce(ctx, opts, catalogDir, observations)
	if err != nil {
		return WrapExitError(ExitCommandError, "second replay failed", err)
	}

	result := first.result
	result.Deterministic = true
	if diff := comparePublications(first.pubs, second.pubs); diff != "" {
		result.Deterministic = false
		result.Difference = "second replay: " + diff
		formatter.VerboseLog("second replay (-first +second):\n%s", cmp.Diff(first.pubs, second.pubs))
	}

	if opts.IDPrefix != "" {
		recorded, err := st.ReadPublications(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read publications", err)
		}
		diff := comparePublications(recorded, first.pubs)
		matches := diff == ""
		result.MatchesLog = &matches
		if !matches && result.Difference == "" {
			result.Difference = "recorded log: " + diff
		}
		if !matches {
			formatter.VerboseLog("recorded log (-recorded +replay):\n%s", cmp.Diff(recorded, first.pubs))
		}
	}

	if formatter.IsJSON() {
		return outputReplayJSON(formatter, result)
	}
	return outputReplayText(formatter, result)
}

type replayRun struct {
	result ReplayResult
	pubs   []store.Publication
}

// replayOnce replays the observations into a fresh engine backed by an
// in-memory store and returns what it published.
func replayOnce(ctx context.Context, opts *ReplayOptions, catalogDir string, observations []store.Observation) (*replayRun, error) {
	prefix := opts.IDPrefix
	if prefix == "" {
		prefix = "replay"
	}
	instanceIDs, mergedIDs := idGenerators(prefix)
	reg, templates, err := loadRegistry(catalogDir, instanceIDs)
	if err != nil {
		return nil, err
	}

	mem, err := store.Open(":memory:")
	if err != nil {
		return nil, err
	}
	defer mem.Close()

	eng := engine.New(reg, adapters.Generic(templateURNs(templates)...),
		engine.WithStore(mem),
		engine.WithMaxPending(opts.MaxPending),
		engine.WithIDGenerator(mergedIDs),
	)
	failed, err := eng.Replay(ctx, observations)
	if err != nil {
		return nil, err
	}

	pubs, err := mem.ReadPublications(ctx)
	if err != nil {
		return nil, err
	}

	run := &replayRun{
		result: ReplayResult{
			Observations: len(observations),
			Failed:       failed,
			Publications: len(pubs),
		},
		pubs: pubs,
	}
	for _, name := range eng.Observers() {
		obs, err := mem.ReadObservationsByObserver(ctx, name)
		if err != nil {
			return nil, err
		}
		r := ReplayObserverResult{
			Observer:     name,
			Observations: len(obs),
			Activities:   len(eng.Model(name).Roots()),
			Unresolved:   eng.Pending(name),
		}
		for _, p := range pubs {
			if p.Outbound.Observer == name {
				r.Publications++
			}
		}
		run.result.Observers = append(run.result.Observers, r)
	}
	return run, nil
}

// comparePublications describes the first difference between two
// publication lists, or returns "" when they are identical.
func comparePublications(want, got []store.Publication) string {
	for i := range min(len(want), len(got)) {
		if !cmp.Equal(want[i], got[i]) {
			return fmt.Sprintf("publication seq %d differs", want[i].Seq)
		}
	}
	if len(want) != len(got) {
		return fmt.Sprintf("%d publications, expected %d", len(got), len(want))
	}
	return ""
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(formatter *OutputFormatter, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.OK() {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DETERMINISM",
			Message: "determinism verification failed",
			Details: result.Difference,
		}
	}

	if err := formatter.Respond(response); err != nil {
		return err
	}

	if !result.OK() {
		// Determinism failure = exit code 1
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(formatter *OutputFormatter, result ReplayResult) error {
	w := formatter.Writer

	fmt.Fprintf(w, "Replay Summary: %d observation(s), %d publication(s)\n", result.Observations, result.Publications)
	if result.Failed > 0 {
		fmt.Fprintf(w, "  %d observation(s) failed during replay\n", result.Failed)
	}
	fmt.Fprintln(w)

	for _, o := range result.Observers {
		fmt.Fprintf(w, "Observer: %s\n", o.Observer)
		if formatter.Verbose {
			fmt.Fprintf(w, "  Observations: %d\n", o.Observations)
			fmt.Fprintf(w, "  Publications: %d\n", o.Publications)
			fmt.Fprintf(w, "  Activities: %d\n", o.Activities)
			fmt.Fprintf(w, "  Unresolved: %d\n", o.Unresolved)
		} else {
			fmt.Fprintf(w, "  Events: %d observations, %d publications\n", o.Observations, o.Publications)
		}
	}
	fmt.Fprintln(w)

	if result.MatchesLog != nil {
		if *result.MatchesLog {
			fmt.Fprintln(w, "✓ Replay matches the recorded log")
		} else {
			fmt.Fprintln(w, "✗ Replay differs from the recorded log")
		}
	}

	if result.OK() {
		fmt.Fprintln(w, "✓ Replay verified deterministic")
		return nil
	}

	fmt.Fprintf(w, "✗ Determinism verification failed: %s\n", result.Difference)
	// Determinism failure = exit code 1
	return NewExitError(ExitFailure, "determinism verification failed")
}
