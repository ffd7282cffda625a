package server

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/xmm-lightcurves/constants"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/batch"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/common"
)

// Health service names. Batch is SERVING while units remain and flips to
// NOT_SERVING once every unit finished. Each unit is published under
// UnitPrefix+obsid: SERVING on success, NOT_SERVING on failure.
const (
	ServiceBatch    = "lcbatch.Batch"
	ServiceDatabase = "lcbatch.Database"
	UnitPrefix      = "lcbatch.Unit/"
)

// Pinger is satisfied by repository.DB.
type Pinger interface {
	HealthCheck(ctx context.Context, timeout time.Duration) error
}

// StatusServer exposes batch progress over the standard gRPC health protocol.
type StatusServer struct {
	grpc     *grpc.Server
	health   *health.Server
	progress *batch.Progress
	logger   *slog.Logger
}

var _ batch.Listener = (*StatusServer)(nil)

func NewStatusServer(progress *batch.Progress, logger *slog.Logger) *StatusServer {
	if logger == nil {
		logger = slog.Default()
	}
	gs := grpc.NewServer()
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(gs, hs)
	// Reflection for grpcurl
	reflection.Register(gs)

	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceBatch, grpc_health_v1.HealthCheckResponse_SERVING)
	return &StatusServer{grpc: gs, health: hs, progress: progress, logger: logger}
}

// Serve blocks until the listener fails or Stop is called.
func (s *StatusServer) Serve(lis net.Listener) error {
	s.logger.Info("status.grpc.listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

func (s *StatusServer) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func (s *StatusServer) UnitStarted(_ context.Context, obsID string) {
	s.health.SetServingStatus(UnitPrefix+obsID, grpc_health_v1.HealthCheckResponse_UNKNOWN)
}

func (s *StatusServer) UnitFinished(_ context.Context, res batch.UnitResult) {
	st := grpc_health_v1.HealthCheckResponse_SERVING
	if res.Status != constants.TaskStatusSucceeded {
		st = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		s.logger.Debug("status.unit.failed", "obsid", res.ObsID, "error", common.StatusError(res.Err))
	}
	s.health.SetServingStatus(UnitPrefix+res.ObsID, st)

	if s.progress != nil && s.progress.Snapshot().Done() {
		s.health.SetServingStatus(ServiceBatch, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
}

// MarkDone publishes batch completion regardless of counts, e.g. after
// cancellation left units undispatched.
func (s *StatusServer) MarkDone() {
	s.health.SetServingStatus(ServiceBatch, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
}

// WatchDatabase pings db every interval and mirrors the result onto
// ServiceDatabase until ctx is done.
func (s *StatusServer) WatchDatabase(ctx context.Context, db Pinger, interval, timeout time.Duration) {
	check := func() {
		st := grpc_health_v1.HealthCheckResponse_SERVING
		if err := db.HealthCheck(ctx, timeout); err != nil {
			st = grpc_health_v1.HealthCheckResponse_NOT_SERVING
			s.logger.Warn("status.database.unhealthy", "error", err)
		}
		s.health.SetServingStatus(ServiceDatabase, st)
	}
	check()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			check()
		}
	}
}
