package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/xmm-lightcurves/internal/common"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/entity"
)

type RunRepository interface {
	StartRun(ctx context.Context, runID string, total int, startedAt time.Time) error
	FinishRun(ctx context.Context, run entity.Run) error
	GetRun(ctx context.Context, runID string) (*entity.Run, error)
	StartUnit(ctx context.Context, runID, obsID string, startedAt time.Time) error
	FinishUnit(ctx context.Context, unit entity.Unit, products []entity.Product) error
	ListUnits(ctx context.Context, runID string) ([]*entity.Unit, error)
	ListProducts(ctx context.Context, runID, obsID string) ([]*entity.Product, error)
}

type runRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewRunRepository(db *DB, logger *slog.Logger) RunRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &runRepository{db: db, logger: logger}
}

func (r *runRepository) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.db.Dialect)
}

func (r *runRepository) exec(ctx context.Context, q interface{ Query() (string, []any) }) error {
	query, args := q.Query()
	if err := r.db.Driver.Exec(ctx, query, args, nil); err != nil {
		return common.NewAppError("DB_ERROR", "exec", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}
	return nil
}

func (r *runRepository) StartRun(ctx context.Context, runID string, total int, startedAt time.Time) error {
	err := r.exec(ctx, r.builder().Insert(tableRuns).
		Columns("id", "started_at", "total", "remaining").
		Values(runID, formatTime(startedAt), total, total))
	if err != nil {
		r.logger.Error("batch_run start failed", "run_id", runID, "error", err)
		return err
	}
	r.logger.Debug("batch_run started", "run_id", runID, "total", total)
	return nil
}

func (r *runRepository) FinishRun(ctx context.Context, run entity.Run) error {
	finished := time.Now()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	err := r.exec(ctx, r.builder().Update(tableRuns).
		Set("finished_at", formatTime(finished)).
		Set("succeeded", run.Succeeded).
		Set("failed", run.Failed).
		Set("remaining", run.Remaining).
		Set("mean_elapsed_ms", run.MeanElapsed).
		Where(entsql.EQ("id", run.ID)))
	if err != nil {
		r.logger.Error("batch_run finish failed", "run_id", run.ID, "error", err)
		return err
	}
	return nil
}

func (r *runRepository) GetRun(ctx context.Context, runID string) (*entity.Run, error) {
	q := r.builder().Select("id", "started_at", "finished_at", "total", "succeeded", "failed", "remaining", "mean_elapsed_ms").
		From(entsql.Table(tableRuns)).
		Where(entsql.EQ("id", runID))
	query, args := q.Query()

	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, query, args, &rows); err != nil {
		return nil, common.NewAppError("DB_ERROR", "get run", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, common.MissingInput("run %s not found", runID)
	}

	var (
		run      entity.Run
		started  string
		finished sql.NullString
	)
	if err := rows.Scan(&run.ID, &started, &finished, &run.Total, &run.Succeeded, &run.Failed, &run.Remaining, &run.MeanElapsed); err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseNullTime(finished)
	return &run, rows.Err()
}

func (r *runRepository) StartUnit(ctx context.Context, runID, obsID string, startedAt time.Time) error {
	err := r.exec(ctx, r.builder().Insert(tableUnits).
		Columns("run_id", "obs_id", "status", "started_at").
		Values(runID, obsID, "RUNNING", formatTime(startedAt)))
	if err != nil {
		r.logger.Error("batch_unit start failed", "run_id", runID, "obs_id", obsID, "error", err)
	}
	return err
}

// FinishUnit records the terminal state of a unit and its products in one transaction.
func (r *runRepository) FinishUnit(ctx context.Context, u entity.Unit, products []entity.Product) error {
	tx, err := r.db.Driver.Tx(ctx)
	if err != nil {
		return common.NewAppError("DB_ERROR", "begin", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}
	finished := time.Now()
	if u.FinishedAt != nil {
		finished = *u.FinishedAt
	}

	upd := r.builder().Update(tableUnits).
		Set("status", u.Status).
		Set("finished_at", formatTime(finished)).
		Set("elapsed_ms", u.ElapsedMS).
		Set("error_kind", nullable(u.ErrorKind)).
		Set("error_message", nullable(u.ErrorMessage)).
		Where(entsql.And(entsql.EQ("run_id", u.RunID), entsql.EQ("obs_id", u.ObsID)))
	query, args := upd.Query()
	if err := tx.Exec(ctx, query, args, nil); err != nil {
		_ = tx.Rollback()
		r.logger.Error("batch_unit finish failed", "run_id", u.RunID, "obs_id", u.ObsID, "error", err)
		return common.NewAppError("DB_ERROR", "finish unit", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}

	if len(products) > 0 {
		ins := r.builder().Insert(tableProducts).
			Columns("run_id", "obs_id", "object_id", "role", "status", "path", "error_message")
		for _, p := range products {
			ins.Values(p.RunID, p.ObsID, p.ObjectID, p.Role, p.Status, nullable(p.Path), nullable(p.ErrorMessage))
		}
		query, args := ins.Query()
		if err := tx.Exec(ctx, query, args, nil); err != nil {
			_ = tx.Rollback()
			r.logger.Error("unit_products insert failed", "run_id", u.RunID, "obs_id", u.ObsID, "error", err)
			return common.NewAppError("DB_ERROR", "insert products", fmt.Errorf("%w: %v", common.ErrDatabase, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return common.NewAppError("DB_ERROR", "commit", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}
	return nil
}

func (r *runRepository) ListUnits(ctx context.Context, runID string) ([]*entity.Unit, error) {
	q := r.builder().Select("run_id", "obs_id", "status", "started_at", "finished_at", "elapsed_ms", "error_kind", "error_message").
		From(entsql.Table(tableUnits)).
		Where(entsql.EQ("run_id", runID)).
		OrderBy("obs_id")
	query, args := q.Query()

	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, query, args, &rows); err != nil {
		r.logger.Error("failed to list units", "run_id", runID, "error", err)
		return nil, common.NewAppError("DB_ERROR", "list units", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}
	defer rows.Close()

	var out []*entity.Unit
	for rows.Next() {
		var (
			u         entity.Unit
			started   string
			finished  sql.NullString
			kind, msg sql.NullString
		)
		if err := rows.Scan(&u.RunID, &u.ObsID, &u.Status, &started, &finished, &u.ElapsedMS, &kind, &msg); err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		u.StartedAt = parseTime(started)
		u.FinishedAt = parseNullTime(finished)
		u.ErrorKind = nullString(kind)
		u.ErrorMessage = nullString(msg)
		out = append(out, &u)
	}
	return out, rows.Err()
}

func (r *runRepository) ListProducts(ctx context.Context, runID, obsID string) ([]*entity.Product, error) {
	q := r.builder().Select("run_id", "obs_id", "object_id", "role", "status", "path", "error_message").
		From(entsql.Table(tableProducts)).
		Where(entsql.And(entsql.EQ("run_id", runID), entsql.EQ("obs_id", obsID))).
		OrderBy("object_id", "role")
	query, args := q.Query()

	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, query, args, &rows); err != nil {
		return nil, common.NewAppError("DB_ERROR", "list products", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}
	defer rows.Close()

	var out []*entity.Product
	for rows.Next() {
		var (
			p         entity.Product
			path, msg sql.NullString
		)
		if err := rows.Scan(&p.RunID, &p.ObsID, &p.ObjectID, &p.Role, &p.Status, &path, &msg); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.Path = nullString(path)
		p.ErrorMessage = nullString(msg)
		out = append(out, &p)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func nullable(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
