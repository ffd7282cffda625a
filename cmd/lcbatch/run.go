package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/xmm-lightcurves/internal/batch"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/catalog"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/common"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/export"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/pipeline"
	repo "github.com/joseph-ayodele/xmm-lightcurves/internal/repository"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/server"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/tool"
)

type runFlags struct {
	concurrency int
	maxObsIDs   int
	catalog     string
	ids         []string
	report      string
	db          string
	inmem       bool
	grpcAddr    string
	dataRoot    string
	outputRoot  string
	profile     string
	unitTimeout time.Duration
}

func newRunCmd(logger *slog.Logger) *cobra.Command {
	cfg := common.LoadConfig()
	f := runFlags{
		concurrency: cfg.Batch.Workers,
		maxObsIDs:   cfg.Batch.MaxObsIDs,
		catalog:     cfg.Pipeline.Catalog,
		db:          cfg.Database.DSN,
		grpcAddr:    cfg.Server.GRPCAddr,
		dataRoot:    cfg.Pipeline.DataRoot,
		outputRoot:  cfg.Pipeline.OutputRoot,
		profile:     cfg.Tool.SelectionProfile,
		unitTimeout: cfg.Batch.UnitTimeout,
	}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process observations from the catalog and/or --ids",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.Batch.Workers = f.concurrency
			cfg.Batch.MaxObsIDs = f.maxObsIDs
			cfg.Batch.UnitTimeout = f.unitTimeout
			cfg.Pipeline.Catalog = f.catalog
			cfg.Pipeline.DataRoot = f.dataRoot
			cfg.Pipeline.OutputRoot = f.outputRoot
			cfg.Tool.SelectionProfile = f.profile
			cfg.Server.GRPCAddr = f.grpcAddr
			cfg.Database.DSN = f.db
			if f.inmem {
				cfg.Database.DSN = repo.MemoryDSN
			}
			if err := cfg.Validate(); err != nil {
				return setupErr(err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBatch(ctx, cfg, f, logger)
		},
	}

	fs := cmd.Flags()
	fs.IntVar(&f.concurrency, "concurrency", f.concurrency, "number of observations processed in parallel")
	fs.IntVar(&f.maxObsIDs, "max-obsids", f.maxObsIDs, "cap on catalog observations (0 = all)")
	fs.StringVar(&f.catalog, "catalog", f.catalog, "catalog CSV with OBS_ID, RA, DEC, SDSS_NAME")
	fs.StringSliceVar(&f.ids, "ids", nil, "additional observation ids")
	fs.StringVar(&f.report, "report", "", "write an XLSX batch report to this path")
	fs.StringVar(&f.db, "db", f.db, "run ledger DSN (postgres:// or sqlite path)")
	fs.BoolVar(&f.inmem, "inmem", false, "keep the run ledger in memory")
	fs.StringVar(&f.grpcAddr, "grpc-addr", f.grpcAddr, "serve gRPC health/progress on this address")
	fs.StringVar(&f.dataRoot, "data-root", f.dataRoot, "directory holding <obsid>/ inputs")
	fs.StringVar(&f.outputRoot, "output-root", f.outputRoot, "directory receiving <obsid>/ outputs")
	fs.StringVar(&f.profile, "profile", f.profile, "selection profile JSON")
	fs.DurationVar(&f.unitTimeout, "unit-timeout", f.unitTimeout, "per-observation timeout (0 = none)")
	return cmd
}

func runBatch(ctx context.Context, cfg *common.Config, f runFlags, logger *slog.Logger) error {
	var cat *catalog.Catalog
	if cfg.Pipeline.Catalog != "" {
		c, err := catalog.Load(cfg.Pipeline.Catalog)
		if err != nil {
			if len(f.ids) == 0 {
				return setupErr(err)
			}
			logger.Warn("lcbatch.catalog.unavailable", "path", cfg.Pipeline.Catalog, "error", err)
		} else {
			cat = c
		}
	}
	ids := cat.ObsIDs(cfg.Batch.MaxObsIDs, splitIDs(f.ids))
	if len(ids) == 0 {
		return setupErr(common.NewAppError("NO_OBSERVATIONS", "no observation ids to process", common.ErrInvalidInput))
	}

	profile, err := tool.LoadProfile(cfg.Tool.SelectionProfile)
	if err != nil {
		return setupErr(err)
	}
	if cfg.Tool.SelectionProfile == "" {
		profile.TimeBin = cfg.Tool.TimeBin
	}
	sas := tool.NewSAS(tool.NewExecRunner(logger), logger, cfg.Tool.BinDir, profile)

	opts := []pipeline.Option{}
	if cat != nil {
		opts = append(opts, pipeline.WithCatalog(cat))
	}
	obs := pipeline.NewObservation(pipeline.Config{
		DataRoot:   cfg.Pipeline.DataRoot,
		OutputRoot: cfg.Pipeline.OutputRoot,
		StagingDir: cfg.Pipeline.StagingDir,
	}, sas, logger, opts...)

	runID := uuid.NewString()
	ctx = common.WithRunID(ctx, runID)

	progress := batch.NewProgress(len(ids))
	batchOpts := []batch.Option{
		batch.WithWorkers(cfg.Batch.Workers),
		batch.WithUnitTimeout(cfg.Batch.UnitTimeout),
		batch.WithListener(progress),
	}

	var ledger *repo.Ledger
	if cfg.Database.DSN != "" {
		db, err := repo.Open(ctx, repo.Config{
			DSN:              cfg.Database.DSN,
			MaxConns:         cfg.Database.MaxConns,
			MinConns:         cfg.Database.MinConns,
			MaxConnLifetime:  cfg.Database.MaxConnLifetime,
			MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
			DialTimeout:      cfg.Database.DialTimeout,
			StatementTimeout: cfg.Database.StatementTimeout,
		}, logger)
		if err != nil {
			return setupErr(err)
		}
		defer db.Close(logger)
		if err := db.Migrate(ctx); err != nil {
			return setupErr(err)
		}
		ledger = repo.NewLedger(repo.NewRunRepository(db, logger), logger)
		if err := ledger.Begin(ctx, runID, len(ids)); err != nil {
			return setupErr(err)
		}
		batchOpts = append(batchOpts, batch.WithListener(ledger))
	}

	if cfg.Server.GRPCAddr != "" {
		addr := cfg.Server.GRPCAddr
		if !strings.Contains(addr, ":") {
			addr = ":" + addr
		}
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return setupErr(fmt.Errorf("listen %s: %w", addr, err))
		}
		status := server.NewStatusServer(progress, logger)
		go func() {
			if err := status.Serve(lis); err != nil {
				logger.Error("status.grpc.serve.failed", "error", err)
			}
		}()
		defer status.Stop()
		defer status.MarkDone()
		batchOpts = append(batchOpts, batch.WithListener(status))
	}

	logger.Info("lcbatch.start", "run_id", runID, "observations", len(ids), "concurrency", cfg.Batch.Workers)
	orch := batch.NewOrchestrator(obs, logger, batchOpts...)
	res := orch.Run(ctx, ids, cfg.Batch.Workers)
	batch.LogSummary(logger, res)

	if ledger != nil {
		if err := ledger.End(context.WithoutCancel(ctx), res); err != nil {
			logger.Warn("lcbatch.ledger.end.failed", "run_id", runID, "error", err)
		}
	}
	if f.report != "" {
		if err := export.NewService(logger).WriteBatchReport(f.report, res); err != nil {
			logger.Error("lcbatch.report.failed", "path", f.report, "error", err)
		} else {
			logger.Info("lcbatch.report.ok", "path", f.report)
		}
	}

	if res.Failed > 0 || res.Remaining > 0 {
		return &exitError{code: 1, err: fmt.Errorf("%d failed, %d remaining", res.Failed, res.Remaining)}
	}
	return nil
}

func newObsIDsCmd(logger *slog.Logger) *cobra.Command {
	cfg := common.LoadConfig()
	var (
		path   string
		maxIDs int
	)
	cmd := &cobra.Command{
		Use:   "obsids",
		Short: "List the observation ids a run would process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := catalog.Load(path)
			if err != nil {
				return setupErr(err)
			}
			ids := cat.ObsIDs(maxIDs, nil)
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			logger.Debug("lcbatch.obsids", "count", len(ids))
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "catalog", cfg.Pipeline.Catalog, "catalog CSV")
	cmd.Flags().IntVar(&maxIDs, "max-obsids", cfg.Batch.MaxObsIDs, "cap (0 = all)")
	return cmd
}

// splitIDs accepts repeated and comma-joined --ids values.
func splitIDs(in []string) []string {
	var out []string
	for _, v := range in {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}
