package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/xmm-lightcurves/constants"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/common"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/pipeline"
)

const DefaultWorkers = 4

// Processor runs one observation unit.
type Processor interface {
	Run(ctx context.Context, obsID string) (*pipeline.Report, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, obsID string) (*pipeline.Report, error)

func (f ProcessorFunc) Run(ctx context.Context, obsID string) (*pipeline.Report, error) {
	return f(ctx, obsID)
}

// Listener observes unit progress. Callbacks run on worker goroutines.
type Listener interface {
	UnitStarted(ctx context.Context, obsID string)
	UnitFinished(ctx context.Context, res UnitResult)
}

// UnitResult is the terminal state of one unit.
type UnitResult struct {
	ObsID   string
	Status  constants.TaskStatus
	Started time.Time
	Elapsed time.Duration
	Err     error
	Report  *pipeline.Report
}

// Result summarizes a batch. Remaining counts units never dispatched.
type Result struct {
	RunID        string
	Total        int
	Succeeded    int
	Failed       int
	Remaining    int
	FailedIDs    []string
	MeanElapsed  time.Duration // over succeeded units
	TotalElapsed time.Duration
	Units        map[string]UnitResult
}

// Orchestrator runs units on a fixed pool of workers.
type Orchestrator struct {
	proc        Processor
	logger      *slog.Logger
	workers     int
	unitTimeout time.Duration
	listeners   []Listener
}

type Option func(*Orchestrator)

func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithUnitTimeout bounds each unit; zero means no limit.
func WithUnitTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.unitTimeout = d
		}
	}
}

func WithListener(l Listener) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.listeners = append(o.listeners, l)
		}
	}
}

func NewOrchestrator(proc Processor, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{proc: proc, logger: logger, workers: DefaultWorkers}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run processes ids with at most concurrency units in flight (the configured
// worker count when concurrency <= 0). Duplicate ids run once. Cancelling ctx
// stops dispatch; units already running finish and the result is partial.
// The run id is taken from ctx when set there, generated otherwise.
// Run never fails: unit errors and panics are folded into the result.
func (o *Orchestrator) Run(ctx context.Context, ids []string, concurrency int) Result {
	start := time.Now()
	ids = Dedupe(ids)
	workers := concurrency
	if workers <= 0 {
		workers = o.workers
	}
	if workers > len(ids) && len(ids) > 0 {
		workers = len(ids)
	}

	runID := common.RunIDFromContext(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = common.WithRunID(ctx, runID)
	}
	res := Result{RunID: runID, Total: len(ids), Units: make(map[string]UnitResult, len(ids))}
	logger := o.logger.With("run_id", res.RunID)
	logger.Info("batch started", "units", len(ids), "workers", workers)

	jobs := make(chan string)
	results := make(chan UnitResult)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for id := range jobs {
				if ctx.Err() != nil {
					continue
				}
				results <- o.runUnit(ctx, logger.With("worker_id", workerID), id)
			}
		}(i + 1)
	}

	go func() {
		defer close(jobs)
		for _, id := range ids {
			if ctx.Err() != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case jobs <- id:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var okTotal time.Duration
	for r := range results {
		res.Units[r.ObsID] = r
		switch r.Status {
		case constants.TaskStatusSucceeded:
			res.Succeeded++
			okTotal += r.Elapsed
		default:
			res.Failed++
			res.FailedIDs = append(res.FailedIDs, r.ObsID)
		}
	}
	sort.Strings(res.FailedIDs)
	res.Remaining = res.Total - res.Succeeded - res.Failed
	if res.Succeeded > 0 {
		res.MeanElapsed = okTotal / time.Duration(res.Succeeded)
	}
	res.TotalElapsed = time.Since(start)
	if ctx.Err() != nil {
		logger.Warn("batch interrupted", "remaining", res.Remaining, "error", ctx.Err())
	}
	return res
}

// runUnit runs one unit to a terminal state. The unit context is detached
// from batch cancellation so in-flight work can finish.
func (o *Orchestrator) runUnit(parent context.Context, logger *slog.Logger, obsID string) (out UnitResult) {
	logger = logger.With("obs_id", obsID)
	ctx := common.WithLogger(common.WithObsID(context.WithoutCancel(parent), obsID), logger)
	ctx, cancel := common.WithOptionalTimeout(ctx, o.unitTimeout)
	defer cancel()

	task := pipeline.NewTask(obsID)
	warnTransition(logger, task, task.Start(time.Now()))

	var (
		report *pipeline.Report
		err    error
	)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("batch.unit.panic", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			err = common.NewAppError("UNIT_FAILED", obsID, fmt.Errorf("%w: %w", common.ErrUnit, err))
		}
		warnTransition(logger, task, task.Finish(time.Now(), report, err))
		out = UnitResult{ObsID: obsID, Status: task.Status, Started: task.Started, Elapsed: task.Elapsed(), Err: err, Report: report}
		if err != nil {
			logger.Error("batch.unit.failed", "elapsed_ms", out.Elapsed.Milliseconds(), "kind", common.Kind(err), "error", err)
		} else {
			logger.Info("unit succeeded", "elapsed_ms", out.Elapsed.Milliseconds())
		}
		for _, l := range o.listeners {
			o.notify(logger, "finished", func() { l.UnitFinished(ctx, out) })
		}
	}()

	for _, l := range o.listeners {
		l.UnitStarted(ctx, obsID)
	}
	logger.Info("unit started")
	report, err = o.proc.Run(ctx, obsID)
	return out
}

func warnTransition(logger *slog.Logger, task *pipeline.Task, err error) {
	if err != nil {
		logger.Warn("batch.unit.transition.failed", "status", task.Status, "error", err)
	}
}

// notify runs one listener callback; a panicking listener is logged and
// does not take the worker down.
func (o *Orchestrator) notify(logger *slog.Logger, event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("batch.listener.panic", "event", event, "panic", r)
		}
	}()
	fn()
}

// Dedupe drops blank and repeated ids, keeping first occurrences in order.
func Dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// LogSummary writes the end-of-batch summary.
func LogSummary(logger *slog.Logger, r Result) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("batch summary",
		"run_id", r.RunID,
		"total", r.Total,
		"succeeded", r.Succeeded,
		"failed", r.Failed,
		"remaining", r.Remaining,
		"mean_elapsed", r.MeanElapsed.Round(time.Millisecond).String(),
		"total_elapsed", r.TotalElapsed.Round(time.Millisecond).String(),
	)
	for _, id := range r.FailedIDs {
		logger.Info("failed unit", "obs_id", id, "error", r.Units[id].Err)
	}
}
