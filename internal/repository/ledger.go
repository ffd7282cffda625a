package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/xmm-lightcurves/internal/batch"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/common"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/entity"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/pipeline"
)

// Ledger records unit progress as a batch.Listener. Write failures are
// logged and never affect the batch.
type Ledger struct {
	repo   RunRepository
	logger *slog.Logger
}

var _ batch.Listener = (*Ledger)(nil)

func NewLedger(repo RunRepository, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{repo: repo, logger: logger}
}

func (l *Ledger) UnitStarted(ctx context.Context, obsID string) {
	runID := common.RunIDFromContext(ctx)
	if err := l.repo.StartUnit(ctx, runID, obsID, time.Now()); err != nil {
		l.logger.Warn("ledger.unit_start.failed", "run_id", runID, "obs_id", obsID, "error", err)
	}
}

func (l *Ledger) UnitFinished(ctx context.Context, res batch.UnitResult) {
	runID := common.RunIDFromContext(ctx)
	finished := res.Started.Add(res.Elapsed)
	u := entity.Unit{
		RunID:      runID,
		ObsID:      res.ObsID,
		Status:     string(res.Status),
		StartedAt:  res.Started,
		FinishedAt: &finished,
		ElapsedMS:  res.Elapsed.Milliseconds(),
	}
	if res.Err != nil {
		kind, msg := common.Kind(res.Err), res.Err.Error()
		u.ErrorKind, u.ErrorMessage = &kind, &msg
	}
	if err := l.repo.FinishUnit(ctx, u, Products(runID, res.Report)); err != nil {
		l.logger.Warn("ledger.unit_finish.failed", "run_id", runID, "obs_id", res.ObsID, "error", err)
	}
}

// Begin opens the run row before any unit starts.
func (l *Ledger) Begin(ctx context.Context, runID string, total int) error {
	return l.repo.StartRun(ctx, runID, total, time.Now())
}

// End closes the run row with the batch totals.
func (l *Ledger) End(ctx context.Context, res batch.Result) error {
	now := time.Now()
	return l.repo.FinishRun(ctx, entity.Run{
		ID:          res.RunID,
		FinishedAt:  &now,
		Total:       res.Total,
		Succeeded:   res.Succeeded,
		Failed:      res.Failed,
		Remaining:   res.Remaining,
		MeanElapsed: res.MeanElapsed.Milliseconds(),
	})
}

// Products flattens a report into product rows.
func Products(runID string, rep *pipeline.Report) []entity.Product {
	if rep == nil {
		return nil
	}
	var out []entity.Product
	for _, id := range rep.ObjectIDs() {
		obj := rep.Objects[id]
		for _, role := range pipeline.Roles {
			p, ok := obj.Products[role]
			if !ok {
				continue
			}
			row := entity.Product{RunID: runID, ObsID: rep.ObsID, ObjectID: id, Role: string(role), Status: string(p.Status)}
			if p.Path != "" {
				path := p.Path
				row.Path = &path
			}
			if p.Err != nil {
				msg := p.Err.Error()
				row.ErrorMessage = &msg
			}
			out = append(out, row)
		}
	}
	return out
}
