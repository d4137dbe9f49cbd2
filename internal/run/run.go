// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package run drives one download of a dated issue: resolve the identifier,
// probe and download pages, merge them into a PDF and persist the result.
// A run reports its progress as a stream of Events and ends with exactly one
// EventFinished.
package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/epaper/internal/assemble"
	"github.com/pdiddy/epaper/internal/fault"
	"github.com/pdiddy/epaper/internal/fetch"
	"github.com/pdiddy/epaper/internal/resolve"
	"github.com/pdiddy/epaper/pkg/types"
)

// DefaultPublication is the file name prefix used when none is configured.
const DefaultPublication = "DailyTimes"

// Progress checkpoints. Page probes fill the span between ProgressStarted
// and ProgressMerging.
const (
	ProgressStarted   = 10
	ProgressMerging   = 90
	ProgressCompleted = 100
)

const eventBuffer = 64

// Recorder stores completed issues. *catalog.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, issue types.Issue) error
}

// Result is the outcome of a run.
type Result struct {
	// State is Completed or Failed.
	State State
	// FailedIn is the state the run was in when it failed.
	FailedIn State
	// Issue is fully populated on success and partially on failure.
	Issue types.Issue
	Err   error
	Kind  fault.Kind
}

// OK reports whether the run completed.
func (r Result) OK() bool {
	return r.State == Completed
}

// IsCanceled reports whether the run ended because its context was done.
func (r Result) IsCanceled() bool {
	return errors.Is(r.Err, context.Canceled)
}

// Reason returns the short failure description, or "" on success.
func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	return fault.Reason(r.Err)
}

// Option configures a Runner.
type Option func(*Runner)

// WithRecorder records completed issues in rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithLogLevel sets the minimum level of EventLog events.
func WithLogLevel(level slog.Leveler) Option {
	return func(r *Runner) { r.level = level }
}

// WithClock replaces the clock used for FetchedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// Runner executes runs. A Runner holds no per-run state, so one value may
// serve several runs, including concurrent runs for different dates.
type Runner struct {
	cfg      types.FetchConfig
	resolver *resolve.Resolver
	fetcher  *fetch.Fetcher
	recorder Recorder
	level    slog.Leveler
	now      func() time.Time
}

// New returns a Runner that issues its requests through client.
func New(client *http.Client, cfg types.FetchConfig, opts ...Option) *Runner {
	if cfg.Publication == "" {
		cfg.Publication = DefaultPublication
	}
	r := &Runner{
		cfg:      cfg,
		resolver: resolve.NewResolver(client, cfg),
		fetcher:  fetch.NewFetcher(client, cfg),
		level:    slog.LevelInfo,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start runs the download for date on a new goroutine. The returned
// channel delivers the run's events and is closed after EventFinished.
// The caller should drain the channel. Once ctx is done, events that do not
// fit in the channel buffer are dropped so an abandoned channel never keeps
// the run from finishing and cleaning up.
func (r *Runner) Start(ctx context.Context, date string) <-chan Event {
	ch := make(chan Event, eventBuffer)
	go func() {
		defer close(ch)
		r.Run(ctx, date, func(ev Event) {
			select {
			case ch <- ev:
				return
			default:
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		})
	}()
	return ch
}

// Run downloads the issue for date (YYYYMMDD) and returns when the run is
// terminal. emit receives every event, EventFinished last; it may be nil.
func (r *Runner) Run(ctx context.Context, date string, emit func(Event)) Result {
	if emit == nil {
		emit = func(Event) {}
	}
	runID := newRunID()
	logger := slog.New(NewEventHandler(emit, r.level)).With("run", runID)

	res := r.run(ctx, date, runID, emit, logger)
	if res.OK() {
		logger.Info("run completed", "pages", res.Issue.PageCount(), "pdf", res.Issue.PDFPath)
	} else {
		logger.Error("run failed", "state", res.FailedIn.String(), "kind", res.Kind.String(), "reason", res.Reason())
	}
	emit(finishedEvent(res))
	return res
}

// tracker records the current state so failures can report where they
// happened.
type tracker struct {
	state  State
	logger *slog.Logger
}

func (t *tracker) enter(s State) {
	t.logger.Debug("state", "from", t.state.String(), "to", s.String())
	t.state = s
}

func (t *tracker) fail(issue types.Issue, err error) Result {
	return Result{
		State:    Failed,
		FailedIn: t.state,
		Issue:    issue,
		Err:      err,
		Kind:     fault.Classify(err),
	}
}

func (r *Runner) run(ctx context.Context, date, runID string, emit func(Event), logger *slog.Logger) (res Result) {
	t := &tracker{state: Idle, logger: logger}
	issue := types.Issue{Date: date, RunID: runID}

	day, err := resolve.ParseDate(date)
	if err != nil {
		emit(statusEvent("Invalid date"))
		return t.fail(issue, err)
	}
	issue.Date = day.Format(resolve.DateLayout)
	issue.EpaperDate = resolve.EpaperDate(day)
	issue.IndexURL = r.resolver.IndexURL(day)

	emit(statusEvent(fmt.Sprintf("Starting download of %s (%s)", issue.Date, issue.EpaperDate)))
	emit(progressEvent(ProgressStarted))
	logger.Info("starting run", "date", issue.Date, "epaper_date", issue.EpaperDate)

	dir := filepath.Join(r.cfg.ScratchDir, issue.Date+"-"+runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return t.fail(issue, fmt.Errorf("%w: creating scratch directory: %w", fault.ErrPersist, err))
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			logger.Warn("removing scratch directory", "dir", dir, "error", rmErr)
			if res.OK() {
				res = t.fail(res.Issue, fmt.Errorf("%w: removing scratch directory: %w", fault.ErrPersist, rmErr))
			}
		}
	}()

	t.enter(ResolvingIdentifier)
	emit(statusEvent("Resolving issue identifier"))
	id, err := r.resolver.Resolve(ctx, day)
	if err != nil {
		return t.fail(issue, err)
	}
	issue.Identifier = id
	logger.Info("resolved issue identifier", "identifier", id, "index", issue.IndexURL)

	t.enter(ProbingPages)
	maxPages := r.fetcher.MaxPages()
	pages, err := r.fetcher.Collect(ctx, id, dir, func(p fetch.ProbeResult) {
		switch p.Outcome {
		case fetch.PageFound:
			logger.Info("downloaded page", "page", p.Number, "bytes", p.Page.Bytes)
			emit(statusEvent(fmt.Sprintf("Downloaded page %d", p.Number)))
		case fetch.PageMissing:
			logger.Info("page not found, end of issue", "page", p.Number)
		case fetch.PageFailed:
			logger.Warn("page download failed, stopping", "page", p.Number, "error", p.Err)
		}
		emit(progressEvent(ProgressStarted + p.Number*(ProgressMerging-ProgressStarted)/maxPages))
	})
	if err != nil {
		return t.fail(issue, err)
	}
	issue.Pages = pages

	t.enter(Merging)
	emit(statusEvent(fmt.Sprintf("Generating PDF from %d pages", len(pages))))
	emit(progressEvent(ProgressMerging))
	workPDF := filepath.Join(dir, r.baseName(issue.Date)+".pdf")
	paths := make([]string, len(pages))
	for i, p := range pages {
		paths[i] = p.Path
	}
	if err := assemble.Merge(ctx, paths, workPDF, r.meta(day)); err != nil {
		return t.fail(issue, err)
	}
	logger.Debug("merged pages", "pdf", workPDF)

	t.enter(Persisting)
	emit(statusEvent("Saving PDF"))
	for i := range issue.Pages {
		issue.Pages[i].Path = ""
	}
	issue.FetchedAt = r.now().UTC()
	if err := r.persist(ctx, &issue, workPDF, logger); err != nil {
		return t.fail(issue, err)
	}

	t.enter(Completed)
	emit(progressEvent(ProgressCompleted))
	emit(statusEvent(fmt.Sprintf("Done: %d pages saved to %s", issue.PageCount(), issue.PDFPath)))
	return Result{State: Completed, Issue: issue}
}

func (r *Runner) baseName(date string) string {
	return r.cfg.Publication + "_" + date
}

func (r *Runner) meta(day time.Time) assemble.Meta {
	return assemble.Meta{
		Title:   fmt.Sprintf("%s %s", r.cfg.Publication, day.Format("2 January 2006")),
		Creator: "epaper",
		Date:    day,
	}
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
