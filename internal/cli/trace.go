package cli

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/jagtrack/internal/ir"
	"github.com/roach88/jagtrack/internal/store"
)

// TraceOptions holds flags for the trace command. At most one filter
// may be set; with none the whole log is traced.
type TraceOptions struct {
	*RootOptions
	Database    string
	Instance    string
	Identity    string
	Observer    string
	Observation int64
}

// TraceEvent is one row of the log in the trace timeline.
type TraceEvent struct {
	Seq         int64  `json:"seq"`
	Type        string `json:"type"` // "observation" or "publication"
	Category    string `json:"category"`
	Observer    string `json:"observer"`
	ElapsedMS   int64  `json:"elapsed_ms"`
	InstanceID  string `json:"instance_id,omitempty"`
	IdentityKey string `json:"identity_key,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// ProvenanceEdge links an observation to a publication it caused.
type ProvenanceEdge struct {
	FromObservation int64  `json:"from_observation"`
	Category        string `json:"category"`
	ToPublication   int64  `json:"to_publication"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Filter     string           `json:"filter"`
	Timeline   []TraceEvent     `json:"timeline"`
	Provenance []ProvenanceEdge `json:"provenance"`
	Stats      TraceStats       `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Observations int            `json:"observations"`
	Publications int            `json:"publications"`
	ByCategory   map[string]int `json:"by_category"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Query provenance in the event log",
		Long: `Query the recorded log for publications and the observations that
caused them.

The output includes:
- Timeline: observations and publications in seq order
- Provenance: which observation caused which publication
- Stats: counts per category

Filters (at most one):
  --instance     publications about one instance id
  --identity     publications about one activity identity key
  --observer     everything one observer reported and what it caused
  --observation  publications caused by one observation seq

Examples:
  jagtrack trace --db ./rescue.db
  jagtrack trace --db ./rescue.db --instance jag-2
  jagtrack trace --db ./rescue.db --observer obs-a --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Instance, "instance", "", "filter to one instance id")
	cmd.Flags().StringVar(&opts.Identity, "identity", "", "filter to one identity key")
	cmd.Flags().StringVar(&opts.Observer, "observer", "", "filter to one observer")
	cmd.Flags().Int64Var(&opts.Observation, "observation", 0, "filter to one observation seq")
	cmd.MarkFlagsMutuallyExclusive("instance", "identity", "observer", "observation")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	observations, pubs, err := selectLog(ctx, st, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read log", err)
	}

	result := buildTrace(describeFilter(opts), observations, pubs)

	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	outputTraceText(formatter.Writer, result, opts.Verbose)
	return nil
}

func describeFilter(opts *TraceOptions) string {
	switch {
	case opts.Instance != "":
		return "instance " + opts.Instance
	case opts.Identity != "":
		return "identity " + opts.Identity
	case opts.Observer != "":
		return "observer " + opts.Observer
	case opts.Observation > 0:
		return fmt.Sprintf("observation %d", opts.Observation)
	}
	return "all"
}

// selectLog reads the publications the filter selects together with the
// observations that caused them. The observer filter also keeps the
// observer's observations that caused nothing.
func selectLog(ctx context.Context, st *store.Store, opts *TraceOptions) ([]store.Observation, []store.Publication, error) {
	if opts.Observer != "" {
		observations, err := st.ReadObservationsByObserver(ctx, opts.Observer)
		if err != nil {
			return nil, nil, err
		}
		var pubs []store.Publication
		for _, o := range observations {
			triggered, err := st.ReadTriggered(ctx, o.Seq)
			if err != nil {
				return nil, nil, err
			}
			pubs = append(pubs, triggered...)
		}
		return observations, pubs, nil
	}

	var (
		pubs []store.Publication
		err  error
	)
	switch {
	case opts.Instance != "":
		pubs, err = st.ReadPublicationsForInstance(ctx, opts.Instance)
	case opts.Identity != "":
		pubs, err = st.ReadPublicationsByIdentity(ctx, opts.Identity)
	case opts.Observation > 0:
		pubs, err = st.ReadTriggered(ctx, opts.Observation)
	default:
		pubs, err = st.ReadPublications(ctx)
	}
	if err != nil {
		return nil, nil, err
	}

	all, err := st.ReadObservations(ctx)
	if err != nil {
		return nil, nil, err
	}
	causes := make(map[int64]bool, len(pubs))
	for _, p := range pubs {
		causes[p.ObservationSeq] = true
	}
	if opts.Observation > 0 {
		causes[opts.Observation] = true
	}
	var observations []store.Observation
	for _, o := range all {
		if causes[o.Seq] || (opts.Instance == "" && opts.Identity == "" && opts.Observation == 0) {
			observations = append(observations, o)
		}
	}
	return observations, pubs, nil
}

// buildTrace merges observations and publications into one timeline.
func buildTrace(filter string, observations []store.Observation, pubs []store.Publication) TraceResult {
	result := TraceResult{
		Filter:     filter,
		Timeline:   make([]TraceEvent, 0, len(observations)+len(pubs)),
		Provenance: make([]ProvenanceEdge, 0, len(pubs)),
		Stats: TraceStats{
			Observations: len(observations),
			Publications: len(pubs),
			ByCategory:   make(map[string]int),
		},
	}

	for _, o := range observations {
		result.Timeline = append(result.Timeline, TraceEvent{
			Seq:        o.Seq,
			Type:       "observation",
			Category:   string(o.Event.Category),
			Observer:   o.Event.Observer,
			ElapsedMS:  o.Event.ElapsedMS,
			InstanceID: o.Event.InstanceID(),
			Detail:     describeInbound(o.Event),
		})
	}
	for _, p := range pubs {
		result.Timeline = append(result.Timeline, TraceEvent{
			Seq:         p.Seq,
			Type:        "publication",
			Category:    string(p.Outbound.Category),
			Observer:    p.Outbound.Observer,
			ElapsedMS:   p.Outbound.ElapsedMS,
			InstanceID:  p.Outbound.InstanceID(),
			IdentityKey: p.IdentityKey,
			Detail:      describeOutbound(p.Outbound),
		})
		result.Provenance = append(result.Provenance, ProvenanceEdge{
			FromObservation: p.ObservationSeq,
			Category:        string(p.Outbound.Category),
			ToPublication:   p.Seq,
		})
		result.Stats.ByCategory[string(p.Outbound.Category)]++
	}

	slices.SortFunc(result.Timeline, func(a, b TraceEvent) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	return result
}

func describeInbound(ev ir.Inbound) string {
	switch {
	case ev.Discovery != nil:
		return ev.Discovery.URN + " " + formatPairs(ev.Discovery.Inputs)
	case ev.Activity != nil:
		return fmt.Sprintf("%s %s confidence=%g", ev.Activity.URN, ev.Activity.Subject, ev.Activity.Confidence)
	case ev.Completion != nil:
		return fmt.Sprintf("%s complete=%t", ev.Completion.URN, ev.Completion.IsComplete)
	case ev.Summary != nil:
		if ev.Summary.URN == "" {
			return "all activities"
		}
		return ev.Summary.URN
	}
	return ""
}

func describeOutbound(o ir.Outbound) string {
	switch {
	case o.Discovery != nil:
		return o.Discovery.URN + " " + formatPairs(o.Discovery.Inputs)
	case o.Update != nil:
		return fmt.Sprintf("complete=%t %s", o.Update.IsComplete, formatSnapshot(o.Update.Snapshot))
	case o.Summary != nil:
		return fmt.Sprintf("%s active=%.3f redundancy=%.3f efficiency=%.3f",
			o.Summary.Identity.URN, o.Summary.ActiveDuration, o.Summary.RedundancyRatio, o.Summary.JointActivityEfficiency)
	}
	return ""
}

func formatSnapshot(s map[string]int) string {
	parts := make([]string, 0, len(s))
	for _, k := range slices.Sorted(maps.Keys(s)) {
		parts = append(parts, fmt.Sprintf("%s:%d", k, s[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Trace: %s\n", result.Filter)
	fmt.Fprintln(w)

	// Timeline section
	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	} else {
		for _, event := range result.Timeline {
			formatTimelineEvent(w, event, verbose)
		}
	}
	fmt.Fprintln(w)

	// Provenance section
	fmt.Fprintln(w, "=== Provenance ===")
	if len(result.Provenance) == 0 {
		fmt.Fprintln(w, "  (no causal relationships)")
	} else {
		for _, edge := range result.Provenance {
			fmt.Fprintf(w, "  %d -[%s]-> %d\n", edge.FromObservation, edge.Category, edge.ToPublication)
		}
	}
	fmt.Fprintln(w)

	// Stats section
	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Observations: %d\n", result.Stats.Observations)
	fmt.Fprintf(w, "  Publications: %d\n", result.Stats.Publications)
	for _, cat := range slices.Sorted(maps.Keys(result.Stats.ByCategory)) {
		fmt.Fprintf(w, "    %-11s %d\n", cat+":", result.Stats.ByCategory[cat])
	}
}

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(w io.Writer, event TraceEvent, verbose bool) {
	marker := "OBS"
	if event.Type == "publication" {
		marker = "PUB"
	}
	fmt.Fprintf(w, "  [%d] %s %s %s @%d", event.Seq, marker, event.Category, event.Observer, event.ElapsedMS)
	if event.InstanceID != "" {
		fmt.Fprintf(w, " %s", truncateID(event.InstanceID))
	}
	fmt.Fprintln(w)
	if event.Detail != "" {
		fmt.Fprintf(w, "       %s\n", event.Detail)
	}
	if verbose && event.IdentityKey != "" {
		fmt.Fprintf(w, "       Identity: %s\n", event.IdentityKey)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
