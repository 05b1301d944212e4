// Package grpcserver exposes the standard gRPC health service so
// orchestrators can probe the matching service.
//
// The overall status is SERVING while every registered dependency check
// passes and NOT_SERVING otherwise. Checks run on a fixed interval.
package grpcserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"jobboard/matching-service/internal/apperr"
	"jobboard/matching-service/internal/logger"
)

// ServiceName is the health service name reported alongside the overall "".
const ServiceName = "matching.v1.MatchingService"

const defaultProbeInterval = 10 * time.Second

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

// Server is a gRPC server carrying the health service.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	checks   map[string]Check
	interval time.Duration
	log      *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// New returns a Server probing checks every interval.
func New(checks map[string]Check, interval time.Duration, log *zap.Logger) *Server {
	log = logger.OrNop(log).Named("grpc")
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	s := &Server{
		grpc:     grpc.NewServer(grpc.ChainUnaryInterceptor(UnaryLogger(log), UnaryErrors())),
		health:   health.NewServer(),
		checks:   checks,
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Serve probes once, then serves on lis until Stop.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.probe(ctx)
	go s.probeLoop(ctx)
	s.log.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop marks the service NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.health.Shutdown()
		s.grpc.GracefulStop()
	})
}

func (s *Server) probeLoop(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-t.C:
			s.probe(ctx)
		}
	}
}

// probe runs every check and updates the reported status.
func (s *Server) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.interval/2)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.log.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.setStatus(st)
}

func (s *Server) setStatus(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// ─── Interceptors ─────────────────────────────────────────────────────────────

// UnaryLogger logs every call with its method, caller, request size,
// duration and resulting code.
func UnaryLogger(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("took", time.Since(start)),
		}
		if m, ok := req.(proto.Message); ok {
			fields = append(fields, zap.Int("request_bytes", proto.Size(m)))
		}
		if id, ok := userIDFromCtx(ctx); ok {
			fields = append(fields, zap.String(logger.FieldUserID, id))
		}
		if err != nil && status.Code(err) == codes.Internal {
			log.Error("grpc call failed", append(fields, zap.Error(err))...)
		} else {
			log.Debug("grpc call", fields...)
		}
		return resp, err
	}
}

// UnaryErrors converts handler errors into gRPC status errors.
func UnaryErrors() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			return resp, toGRPCError(err)
		}
		return resp, nil
	}
}

// userIDFromCtx reads the x-user-id metadata forwarded by the gateway.
func userIDFromCtx(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	vals := md.Get("x-user-id")
	if len(vals) == 0 || vals[0] == "" {
		return "", false
	}
	return vals[0], true
}

// toGRPCError maps domain errors to gRPC status errors. Errors that already
// carry a status pass through.
func toGRPCError(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	msg, _ := apperr.Message(err)
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return status.Error(codes.InvalidArgument, msg)
	case apperr.KindUnauthenticated:
		return status.Error(codes.Unauthenticated, msg)
	case apperr.KindPermissionDenied:
		return status.Error(codes.PermissionDenied, msg)
	case apperr.KindEntityMissing:
		return status.Error(codes.NotFound, msg)
	case apperr.KindConflictingState:
		return status.Error(codes.FailedPrecondition, msg)
	case apperr.KindRateLimited:
		return status.Error(codes.ResourceExhausted, msg)
	case apperr.KindProviderUnavailable:
		return status.Error(codes.Unavailable, msg)
	}
	return status.Error(codes.Internal, "internal server error")
}
