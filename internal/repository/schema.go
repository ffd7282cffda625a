package repository

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
)

const (
	tableRuns     = "batch_runs"
	tableUnits    = "batch_units"
	tableProducts = "unit_products"
)

// Migrate creates the ledger tables when they do not exist.
func (d *DB) Migrate(ctx context.Context) error {
	b := entsql.Dialect(d.Dialect)
	stmts := []*entsql.TableBuilder{
		b.CreateTable(tableRuns).IfNotExists().
			Columns(
				entsql.Column("id").Type("varchar(36)"),
				entsql.Column("started_at").Type("varchar(40)").Attr("NOT NULL"),
				entsql.Column("finished_at").Type("varchar(40)"),
				entsql.Column("total").Type("integer").Attr("NOT NULL DEFAULT 0"),
				entsql.Column("succeeded").Type("integer").Attr("NOT NULL DEFAULT 0"),
				entsql.Column("failed").Type("integer").Attr("NOT NULL DEFAULT 0"),
				entsql.Column("remaining").Type("integer").Attr("NOT NULL DEFAULT 0"),
				entsql.Column("mean_elapsed_ms").Type("bigint").Attr("NOT NULL DEFAULT 0"),
			).
			PrimaryKey("id"),
		b.CreateTable(tableUnits).IfNotExists().
			Columns(
				entsql.Column("run_id").Type("varchar(36)"),
				entsql.Column("obs_id").Type("varchar(64)"),
				entsql.Column("status").Type("varchar(16)").Attr("NOT NULL"),
				entsql.Column("started_at").Type("varchar(40)").Attr("NOT NULL"),
				entsql.Column("finished_at").Type("varchar(40)"),
				entsql.Column("elapsed_ms").Type("bigint").Attr("NOT NULL DEFAULT 0"),
				entsql.Column("error_kind").Type("varchar(64)"),
				entsql.Column("error_message").Type("text"),
			).
			PrimaryKey("run_id", "obs_id"),
		b.CreateTable(tableProducts).IfNotExists().
			Columns(
				entsql.Column("run_id").Type("varchar(36)"),
				entsql.Column("obs_id").Type("varchar(64)"),
				entsql.Column("object_id").Type("varchar(128)"),
				entsql.Column("role").Type("varchar(16)"),
				entsql.Column("status").Type("varchar(16)").Attr("NOT NULL"),
				entsql.Column("path").Type("text"),
				entsql.Column("error_message").Type("text"),
			).
			PrimaryKey("run_id", "obs_id", "object_id", "role"),
	}
	for _, st := range stmts {
		query, args := st.Query()
		if err := d.Driver.Exec(ctx, query, args, nil); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
