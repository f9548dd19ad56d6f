// Package summarize drives enrichment over a call graph, callee first.
//
// A run builds the in-scope graph from a RecordSource, decomposes it into
// strongly connected components and enriches every function exactly once,
// skipping functions that already have a result unless forced. Each result
// is committed before the next function starts, so an interrupted run
// resumes where it stopped.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/phobologic/crux/internal/enrich"
	"github.com/phobologic/crux/internal/graph"
	"github.com/phobologic/crux/internal/logging"
	"github.com/phobologic/crux/internal/model"
	"github.com/phobologic/crux/internal/store"
)

var tracer = otel.Tracer("crux/summarize")

var (
	functionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crux_functions_total",
		Help: "Functions processed by the enrichment driver, by outcome",
	}, []string{"status"})

	enrichDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crux_enrich_duration_seconds",
		Help:    "Time spent in one enrichment call",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
	})
)

// FailurePolicy decides what a run does when an enrichment fails.
type FailurePolicy int

const (
	// FailFast aborts the run on the first failure. Results committed so
	// far stay in place.
	FailFast FailurePolicy = iota
	// SkipAndContinue records the failure and moves on. Callers of the
	// failed function see no result for it.
	SkipAndContinue
)

// Status is the outcome for one function.
type Status string

const (
	StatusEnriched Status = "summarized"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
)

// Event reports one processed function. Done counts processed functions
// including this one and increases by one with every event.
type Event struct {
	Done   int
	Total  int
	ID     string
	Name   string
	Status Status
	Err    error
}

// Options tunes a run. Only Force changes which functions are enriched.
type Options struct {
	// Force re-enriches functions that already have a result.
	Force bool
	// Workers > 1 enriches independent components concurrently.
	Workers int
	Policy  FailurePolicy
	// OnProgress, if set, receives one Event per function, in order.
	OnProgress func(Event)
	// Logger defaults to the logger carried by the run's context.
	Logger *slog.Logger
}

// Report summarises a finished (or aborted) run.
type Report struct {
	RunID      string
	Total      int
	Components int
	Enriched   int
	Skipped    int
	Failed     int
	Failures   []*EnrichError
	Duration   time.Duration
}

// EnrichError reports the function whose enrichment failed.
type EnrichError struct {
	ID   string
	Name string
	Err  error
}

func (e *EnrichError) Error() string {
	return fmt.Sprintf("enrich %s (%s): %v", e.Name, e.ID, e.Err)
}

func (e *EnrichError) Unwrap() error { return e.Err }

// Driver runs enrichment over the functions of a RecordSource.
type Driver struct {
	source   store.RecordSource
	results  store.ResultStore
	enricher enrich.Enricher
	opts     Options
}

// New returns a Driver. source and results are often the same backend.
func New(source store.RecordSource, results store.ResultStore, enricher enrich.Enricher, opts Options) *Driver {
	return &Driver{source: source, results: results, enricher: enricher, opts: opts}
}

// run holds the state of one Run call.
type run struct {
	d       *Driver
	g       *graph.CallGraph
	comps   []graph.Component
	compOf  map[string]int
	records map[string]model.FunctionRecord

	mu     sync.Mutex
	report *Report
	done   int
}

// Run enriches every in-scope function in callee-first order. The returned
// Report is never nil; on error it describes the work done before the
// failure. Enrichment failures are returned as *EnrichError.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	runID := uuid.NewString()

	logger := d.opts.Logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}
	logger = logger.With("run_id", runID)
	ctx = logging.WithLogger(ctx, logger)

	ctx, span := tracer.Start(ctx, "summarize.Run", trace.WithAttributes(
		attribute.String("crux.run_id", runID),
		attribute.Bool("crux.force", d.opts.Force),
	))
	defer span.End()

	report := &Report{RunID: runID}

	functions, err := d.source.Functions(ctx)
	if err != nil {
		return report, fmt.Errorf("load functions: %w", err)
	}
	edges, err := d.source.Edges(ctx)
	if err != nil {
		return report, fmt.Errorf("load edges: %w", err)
	}

	g := graph.Build(functions, edges)
	comps := graph.Components(g)
	records := make(map[string]model.FunctionRecord, len(functions))
	for _, f := range functions {
		if _, dup := records[f.ID]; !dup {
			records[f.ID] = f
		}
	}

	report.Total = g.Len()
	report.Components = len(comps)
	r := &run{
		d:       d,
		g:       g,
		comps:   comps,
		compOf:  graph.Index(comps),
		records: records,
		report:  report,
	}

	logger.Info("enrichment run started",
		"functions", report.Total,
		"edges", g.EdgeCount(),
		"components", report.Components,
		"force", d.opts.Force,
		"workers", max(d.opts.Workers, 1),
	)

	if d.opts.Workers > 1 {
		err = r.parallel(ctx, d.opts.Workers)
	} else {
		err = r.sequential(ctx)
	}
	report.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("crux.enriched", report.Enriched),
		attribute.Int("crux.skipped", report.Skipped),
		attribute.Int("crux.failed", report.Failed),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("enrichment run aborted", "error", err,
			"enriched", report.Enriched, "skipped", report.Skipped, "failed", report.Failed)
		return report, err
	}

	logger.Info("enrichment run finished",
		"enriched", report.Enriched,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration", report.Duration,
	)
	return report, nil
}

func (r *run) sequential(ctx context.Context) error {
	for i := range r.comps {
		if err := r.component(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

// component processes the members of component i one at a time.
func (r *run) component(ctx context.Context, i int) error {
	for _, id := range r.comps[i] {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.function(ctx, id, i); err != nil {
			return err
		}
	}
	return nil
}

// function runs the cache check, context assembly, enrichment and commit
// for one function.
func (r *run) function(ctx context.Context, id string, comp int) error {
	rec := r.records[id]
	logger := logging.FromContext(ctx).With("id", id, "name", rec.Name)

	if !r.d.opts.Force {
		_, ok, err := r.d.results.Result(ctx, id)
		if err != nil {
			return fmt.Errorf("check result %s: %w", id, err)
		}
		if ok {
			logger.Debug("result exists, skipping")
			r.progress(id, rec.Name, StatusSkipped, nil)
			return nil
		}
	}

	ctx, span := tracer.Start(ctx, "summarize.Function", trace.WithAttributes(
		attribute.String("crux.function.id", id),
		attribute.String("crux.function.name", rec.Name),
	))
	defer span.End()

	req := enrich.Request{ID: id, Name: rec.Name, Source: rec.Source}
	for _, callee := range r.g.Callees(id) {
		if r.compOf[callee] == comp {
			continue
		}
		text, ok, err := r.d.results.Result(ctx, callee)
		if err != nil {
			return fmt.Errorf("read callee result %s: %w", callee, err)
		}
		if ok {
			req.Callees = append(req.Callees, enrich.CalleeResult{Name: r.records[callee].Name, Result: text})
		}
	}
	span.SetAttributes(attribute.Int("crux.function.callees", len(req.Callees)))

	began := time.Now()
	text, err := r.d.enricher.Enrich(ctx, req)
	enrichDuration.Observe(time.Since(began).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "enrichment failed")
		ee := &EnrichError{ID: id, Name: rec.Name, Err: err}
		if r.d.opts.Policy == SkipAndContinue && ctx.Err() == nil {
			logger.Error("enrichment failed, continuing", "error", err)
			r.fail(ee)
			return nil
		}
		r.progress(id, rec.Name, StatusFailed, ee)
		return ee
	}

	if err := r.d.results.PutResult(ctx, id, text); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return fmt.Errorf("store result %s: %w", id, err)
	}
	logger.Info("function summarized", "callees", len(req.Callees), "elapsed", time.Since(began))
	r.progress(id, rec.Name, StatusEnriched, nil)
	return nil
}

func (r *run) fail(ee *EnrichError) {
	r.mu.Lock()
	r.report.Failures = append(r.report.Failures, ee)
	r.mu.Unlock()
	r.progress(ee.ID, ee.Name, StatusFailed, ee)
}

// progress counts the outcome and delivers the event. Delivery happens
// under the lock so Done values arrive in order even with several workers.
func (r *run) progress(id, name string, status Status, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.done++
	switch status {
	case StatusEnriched:
		r.report.Enriched++
	case StatusSkipped:
		r.report.Skipped++
	case StatusFailed:
		r.report.Failed++
	}
	functionsTotal.WithLabelValues(string(status)).Inc()

	if r.d.opts.OnProgress != nil {
		r.d.opts.OnProgress(Event{
			Done:   r.done,
			Total:  r.report.Total,
			ID:     id,
			Name:   name,
			Status: status,
			Err:    err,
		})
	}
}
