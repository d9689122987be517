// Package grpc exposes the api service over gRPC with a JSON codec.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/accountctx/internal/logging"
	"github.com/dmitrijs2005/accountctx/internal/server/api"
	"github.com/dmitrijs2005/accountctx/internal/server/metrics"
	"google.golang.org/grpc"
)

type GRPCServer struct {
	address string
	api     *api.Service
	metrics *metrics.Metrics
	logger  logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, svc *api.Service, m *metrics.Metrics) *GRPCServer {
	return &GRPCServer{
		address: a,
		api:     svc,
		metrics: m,
		logger:  l.With("module", "grpc_server"),
	}
}

func (s *GRPCServer) apiService() *api.Service { return s.api }

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops
// gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(
		grpc.ForceServerCodec(Codec()),
		grpc.ChainUnaryInterceptor(s.errorInterceptor, s.accessTokenInterceptor),
	)
	srv.RegisterService(&serviceDesc, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	return srv.Serve(lis)
}
