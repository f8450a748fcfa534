package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/jagtrack/internal/adapters"
	"github.com/roach88/jagtrack/internal/catalog"
	"github.com/roach88/jagtrack/internal/engine"
	"github.com/roach88/jagtrack/internal/ir"
	"github.com/roach88/jagtrack/internal/registry"
	"github.com/roach88/jagtrack/internal/store"
	"github.com/roach88/jagtrack/internal/testutil"
)

// MergedIDPrefix prefixes the ids of merged consensus trees.
const MergedIDPrefix = "merged"

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Instance ids come from a sequence generator, so identical scenarios
// produce identical traces.
//
// Execution flow:
// 1. Load the catalog and build the registry
// 2. Create fresh in-memory database and engine
// 3. Process every event, checking expected rejections
// 4. Read the publication log back as the trace
// 5. Evaluate assertions against the trace and the final models
func Run(scenario *Scenario) (*Result, error) {
	templates, err := loadTemplates(scenario)
	if err != nil {
		return nil, err
	}
	reg, err := registry.New(templates, testutil.NewSequenceIDs(scenario.IDPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to build registry: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	opts := []engine.EngineOption{
		engine.WithStore(st),
		engine.WithIDGenerator(testutil.NewSequenceIDs(MergedIDPrefix)),
	}
	if scenario.MaxPending > 0 {
		opts = append(opts, engine.WithMaxPending(scenario.MaxPending))
	}
	eng := engine.New(reg, adapters.Generic(urns(templates)...), opts...)

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Events {
		err := eng.Process(ctx, step.Inbound)
		switch {
		case step.ExpectError == "" && err != nil:
			result.AddError(fmt.Sprintf("events[%d]: unexpected error: %v", i, err))
		case step.ExpectError != "" && err == nil:
			result.AddError(fmt.Sprintf("events[%d]: expected error %s, got none", i, step.ExpectError))
		case step.ExpectError != "" && !errorMatches(err, step.ExpectError):
			result.AddError(fmt.Sprintf("events[%d]: expected error %s, got: %v", i, step.ExpectError, err))
		}
		slog.Debug("scenario event processed", "scenario", scenario.Name, "step", i, "category", step.Category, "error", err)
	}

	trace, err := readTrace(ctx, st, eng)
	if err != nil {
		return nil, err
	}
	result.Trace = trace

	summaries, err := eng.Summaries("")
	if err != nil {
		return nil, fmt.Errorf("failed to compute summaries: %w", err)
	}
	result.Summaries = summaries

	actx := &AssertionContext{Engine: eng, Trace: trace}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

func loadTemplates(s *Scenario) ([]ir.Template, error) {
	var (
		templates []ir.Template
		errs      []error
	)
	if s.Templates != "" {
		templates, errs = catalog.CompileString(s.Templates)
	} else {
		var res *catalog.Result
		res, errs = catalog.Load(s.Catalog)
		if res != nil {
			templates = res.Templates
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to load catalog: %w", errors.Join(errs...))
	}
	return templates, nil
}

func urns(templates []ir.Template) []string {
	out := make([]string, len(templates))
	for i, t := range templates {
		out[i] = t.URN
	}
	return out
}

// errorMatches accepts a runtime error code or a message fragment.
func errorMatches(err error, want string) bool {
	var re *engine.RuntimeError
	if errors.As(err, &re) && string(re.Code) == want {
		return true
	}
	return strings.Contains(err.Error(), want)
}

// readTrace reads the publication log and resolves the urn of every
// update payload against the publishing observer's model.
func readTrace(ctx context.Context, st *store.Store, eng *engine.Engine) ([]TraceEvent, error) {
	pubs, err := st.ReadPublications(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read publications: %w", err)
	}
	trace := make([]TraceEvent, 0, len(pubs))
	for _, p := range pubs {
		ev := TraceEvent{Seq: p.Seq, Cause: p.ObservationSeq, Outbound: p.Outbound}
		switch {
		case p.Outbound.Discovery != nil:
			ev.URN = p.Outbound.Discovery.URN
		case p.Outbound.Summary != nil:
			ev.URN = p.Outbound.Summary.Identity.URN
		case p.Outbound.Update != nil:
			if m := eng.Model(p.Outbound.Observer); m != nil {
				if n := m.GetByID(p.Outbound.Update.InstanceID); n != nil {
					ev.URN = n.URN()
				}
			}
		}
		trace = append(trace, ev)
	}
	return trace, nil
}
