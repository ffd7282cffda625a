package batch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/xmm-lightcurves/constants"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/common"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/pipeline"
)

type recorder struct {
	mu       sync.Mutex
	started  []string
	finished []UnitResult
}

func (r *recorder) UnitStarted(_ context.Context, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, id)
}

func (r *recorder) UnitFinished(_ context.Context, res UnitResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, res)
}

func okReport(id string) *pipeline.Report {
	r := pipeline.NewReport(id)
	r.Completed = true
	return r
}

func TestRun_IsolatesFailingUnits(t *testing.T) {
	for _, mode := range []string{"error", "panic"} {
		t.Run(mode, func(t *testing.T) {
			proc := ProcessorFunc(func(ctx context.Context, id string) (*pipeline.Report, error) {
				assert.Equal(t, id, common.ObsIDFromContext(ctx))
				assert.NotEmpty(t, common.RunIDFromContext(ctx))
				if id == "u3" {
					if mode == "panic" {
						panic("corrupt event list")
					}
					return nil, common.MissingInput("no event list")
				}
				time.Sleep(time.Millisecond)
				return okReport(id), nil
			})
			rec := &recorder{}
			progress := NewProgress(5)
			o := NewOrchestrator(proc, nil, WithListener(rec), WithListener(progress))

			res := o.Run(context.Background(), []string{"u1", "u2", "u3", "u4", "u5"}, 2)

			assert.Equal(t, 5, res.Total)
			assert.Equal(t, 4, res.Succeeded)
			assert.Equal(t, 1, res.Failed)
			assert.Equal(t, 0, res.Remaining)
			assert.Equal(t, []string{"u3"}, res.FailedIDs)
			assert.NotEmpty(t, res.RunID)
			assert.Greater(t, res.MeanElapsed, time.Duration(0))

			u3 := res.Units["u3"]
			assert.Equal(t, constants.TaskStatusFailed, u3.Status)
			assert.ErrorIs(t, u3.Err, common.ErrUnit)
			if mode == "error" {
				assert.ErrorIs(t, u3.Err, common.ErrMissingInput)
			}
			assert.Equal(t, constants.TaskStatusSucceeded, res.Units["u5"].Status)

			assert.Len(t, rec.started, 5)
			assert.Len(t, rec.finished, 5)
			snap := progress.Snapshot()
			assert.Equal(t, Snapshot{Total: 5, Succeeded: 4, Failed: 1}, snap)
			assert.True(t, snap.Done())
		})
	}
}

func TestRun_BoundsConcurrency(t *testing.T) {
	var inFlight, peak int32
	proc := ProcessorFunc(func(context.Context, string) (*pipeline.Report, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil, nil
	})
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}

	res := NewOrchestrator(proc, nil).Run(context.Background(), ids, 3)
	assert.Equal(t, 8, res.Succeeded)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestRun_DeduplicatesIDs(t *testing.T) {
	var calls int32
	proc := ProcessorFunc(func(context.Context, string) (*pipeline.Report, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	})
	res := NewOrchestrator(proc, nil).Run(context.Background(), []string{"a", "b", "a", "", "b", "c"}, 0)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, []string{"x", "y"}, Dedupe([]string{"x", "y", "x"}))
}

func TestRun_CancellationReturnsPartialResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan string, 5)
	release := make(chan struct{})
	proc := ProcessorFunc(func(uctx context.Context, id string) (*pipeline.Report, error) {
		started <- id
		<-release
		if uctx.Err() != nil {
			return nil, uctx.Err()
		}
		return okReport(id), nil
	})
	o := NewOrchestrator(proc, nil)

	done := make(chan Result, 1)
	go func() { done <- o.Run(ctx, []string{"u1", "u2", "u3", "u4", "u5"}, 2) }()

	<-started
	<-started
	cancel()
	close(release)

	var res Result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not return after cancellation")
	}
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 2, res.Succeeded, "in-flight units finish")
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 3, res.Remaining)
}

func TestRun_UnitTimeout(t *testing.T) {
	proc := ProcessorFunc(func(ctx context.Context, id string) (*pipeline.Report, error) {
		if id == "slow" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return nil, nil
	})
	res := NewOrchestrator(proc, nil, WithUnitTimeout(20*time.Millisecond)).Run(context.Background(), []string{"slow", "fast"}, 2)
	require.Equal(t, 1, res.Failed)
	assert.True(t, errors.Is(res.Units["slow"].Err, context.DeadlineExceeded))
	assert.Equal(t, constants.TaskStatusSucceeded, res.Units["fast"].Status)
}

func TestRun_Empty(t *testing.T) {
	res := NewOrchestrator(ProcessorFunc(func(context.Context, string) (*pipeline.Report, error) {
		t.Fatal("no units expected")
		return nil, nil
	}), nil).Run(context.Background(), nil, 4)
	assert.Equal(t, Result{RunID: res.RunID, Units: map[string]UnitResult{}, TotalElapsed: res.TotalElapsed}, res)
}

type panickyListener struct {
	onStart, onFinish string
}

func (p panickyListener) UnitStarted(_ context.Context, id string) {
	if id == p.onStart {
		panic("ledger insert failed")
	}
}

func (p panickyListener) UnitFinished(_ context.Context, res UnitResult) {
	if res.ObsID == p.onFinish {
		panic("ledger update failed")
	}
}

func TestRun_ListenerPanicsAreContained(t *testing.T) {
	var ran atomic.Int32
	proc := ProcessorFunc(func(_ context.Context, id string) (*pipeline.Report, error) {
		ran.Add(1)
		return okReport(id), nil
	})
	rec := &recorder{}
	o := NewOrchestrator(proc, nil,
		WithListener(panickyListener{onStart: "u2", onFinish: "u3"}),
		WithListener(rec),
	)

	res := o.Run(context.Background(), []string{"u1", "u2", "u3"}, 2)

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, []string{"u2"}, res.FailedIDs)
	assert.ErrorIs(t, res.Units["u2"].Err, common.ErrUnit)
	assert.Equal(t, constants.TaskStatusSucceeded, res.Units["u3"].Status)
	assert.Equal(t, int32(2), ran.Load(), "u2 never reached the processor")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.finished, 3, "later listeners still hear about every unit")
}

func TestRun_TransitionErrorsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	proc := ProcessorFunc(func(_ context.Context, id string) (*pipeline.Report, error) { return okReport(id), nil })
	res := NewOrchestrator(proc, logger).Run(context.Background(), []string{"u1", "u2"}, 1)
	assert.Equal(t, 2, res.Succeeded)
	assert.NotContains(t, buf.String(), "batch.unit.transition.failed")

	task := pipeline.NewTask("u9")
	warnTransition(logger, task, task.Finish(time.Now(), nil, nil))
	assert.Contains(t, buf.String(), "batch.unit.transition.failed")
	assert.Contains(t, buf.String(), `"status":"PENDING"`)
}
