package grpc

import (
	"context"

	"github.com/dmitrijs2005/accountctx/internal/server/api"
	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "accountctx.AccountService"

// accountServiceServer is the handler type of the service descriptor.
type accountServiceServer interface {
	apiService() *api.Service
}

// FullMethod returns the gRPC path of method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// public calls need no access token.
func public[Req, Resp any](name string, call func(*api.Service, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	publicMethods[FullMethod(name)] = true
	return method(name, func(srv accountServiceServer, ctx context.Context, req *Req) (*Resp, error) {
		return call(srv.apiService(), ctx, req)
	})
}

// authed calls run as the caller the interceptor put in ctx.
func authed[Req, Resp any](name string, call func(*api.Service, context.Context, api.Caller, *Req) (*Resp, error)) grpc.MethodDesc {
	return method(name, func(srv accountServiceServer, ctx context.Context, req *Req) (*Resp, error) {
		return call(srv.apiService(), ctx, CallerFromContext(ctx), req)
	})
}

func method[Req, Resp any](name string, call func(accountServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			h := func(ctx context.Context, req any) (any, error) {
				return call(srv.(accountServiceServer), ctx, req.(*Req))
			}
			if interceptor == nil {
				return h(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, h)
		},
	}
}

var publicMethods = map[string]bool{}

func ping(_ *api.Service, _ context.Context, _ *api.Empty) (*api.Empty, error) {
	return &api.Empty{}, nil
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*accountServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		public("Ping", ping),
		public("RegisterUser", (*api.Service).Register),
		public("GetSalt", (*api.Service).GetSalt),
		public("Login", (*api.Service).Login),
		authed("Logout", (*api.Service).Logout),

		authed("CreateAccount", (*api.Service).CreateAccount),
		authed("ListAccounts", (*api.Service).ListAccounts),
		authed("GetAccount", (*api.Service).GetAccount),
		authed("UpdateAccount", (*api.Service).UpdateAccount),
		authed("UnlockAccount", (*api.Service).UnlockAccount),
		authed("SwitchAccount", (*api.Service).SwitchAccount),
		authed("DeleteAccount", (*api.Service).DeleteAccount),
		authed("AssignProxy", (*api.Service).AssignProxy),

		authed("CreateProxy", (*api.Service).CreateProxy),
		authed("ListProxies", (*api.Service).ListProxies),

		authed("OpenTab", (*api.Service).OpenTab),
		authed("ListTabs", (*api.Service).ListTabs),
		authed("CloseTab", (*api.Service).CloseTab),

		authed("StoragePut", (*api.Service).StoragePut),
		authed("StorageGetAll", (*api.Service).StorageGetAll),
		authed("StorageClear", (*api.Service).StorageClear),

		authed("CurrentSession", (*api.Service).CurrentSession),
		authed("PurgeSessions", (*api.Service).PurgeSessions),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "accountctx",
}
