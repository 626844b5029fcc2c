package grpcclient

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/example/shotcmp/internal/logging"
)

// HealthClient queries the standard gRPC health service of a running
// comparison service.
type HealthClient struct {
	client healthpb.HealthClient
	logger *zap.Logger
}

// DialHealth returns a ready-to-use health client for addr.
func DialHealth(ctx context.Context, addr string, logger *zap.Logger) (*HealthClient, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_health", "", err)
		logger.Error("failed to dial health service", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return &HealthClient{client: healthpb.NewHealthClient(conn), logger: logger}, conn, nil
}

// Serving reports whether service is SERVING. An empty service asks about the
// server as a whole.
func (h *HealthClient) Serving(ctx context.Context, service string) (bool, error) {
	resp, err := h.client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.health_check", "", err)
		h.logger.Error("health check failed", zap.Error(wrapped), zap.String("service", service))
		return false, wrapped
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}
