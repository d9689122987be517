package grpc

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/server/api"
	"github.com/dmitrijs2005/accountctx/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// ErrorCodeTrailer carries the stable error code of a failed call.
const ErrorCodeTrailer = "error-code"

type ctxKey string

const callerKey ctxKey = "caller"

// CallerFromContext returns the caller set by the access token interceptor.
func CallerFromContext(ctx context.Context) api.Caller {
	c, _ := ctx.Value(callerKey).(api.Caller)
	return c
}

func firstValue(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

func clientMeta(ctx context.Context, md metadata.MD) models.ClientMeta {
	meta := models.ClientMeta{UserAgent: firstValue(md, "user-agent")}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		host, _, err := net.SplitHostPort(p.Addr.String())
		if err != nil {
			host = p.Addr.String()
		}
		meta.IP = host
	}
	return meta
}

// accessTokenInterceptor authenticates every non-public call and stores the
// caller in the context.
func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if publicMethods[info.FullMethod] {
		return handler(ctx, req)
	}

	md, _ := metadata.FromIncomingContext(ctx)
	userID, err := s.api.AccessUserID(firstValue(md, common.AccessTokenHeaderName))
	if err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, callerKey, api.Caller{
		UserID:    userID,
		SessionID: firstValue(md, common.SessionHeaderName),
		Client:    clientMeta(ctx, md),
	})
	return handler(ctx, req)
}

var grpcCodes = map[string]codes.Code{
	common.CodeNotFound:           codes.NotFound,
	common.CodeForbidden:          codes.PermissionDenied,
	common.CodeConflict:           codes.Aborted,
	common.CodeIsolationViolation: codes.PermissionDenied,
	common.CodeDecryptionFailed:   codes.DataLoss,
	common.CodeValidation:         codes.InvalidArgument,
	common.CodeUnauthorized:       codes.Unauthenticated,
	common.CodeInternal:           codes.Internal,
}

// toStatus converts a domain error into a status carrying only the stable
// code and a caller-safe message.
func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(grpcCodes[common.Code(err)], common.Message(err))
}

// errorInterceptor is outermost: it records the call, logs failures that
// the caller only sees as INTERNAL, and maps errors to gRPC statuses.
func (s *GRPCServer) errorInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	started := time.Now()
	method := info.FullMethod[strings.LastIndex(info.FullMethod, "/")+1:]

	resp, err := handler(ctx, req)
	code := "OK"
	if err != nil {
		code = common.Code(err)
		if code == common.CodeInternal {
			s.logger.Error(ctx, "request failed", "method", method, "error", err)
		}
		_ = grpc.SetTrailer(ctx, metadata.Pairs(ErrorCodeTrailer, code))
		err = toStatus(err)
	}
	if s.metrics != nil {
		s.metrics.ObserveRequest("grpc", method, code, started)
	}
	return resp, err
}
