package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/server/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	gs "github.com/dmitrijs2005/accountctx/internal/server/grpc"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn

	mu          sync.RWMutex
	accessToken string
	sessionID   string
}

var _ Client = (*GRPCClient)(nil)

func withCredentials(ctx context.Context, token, sessionID string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Delete(common.SessionHeaderName)
	if token != "" {
		md.Set(common.AccessTokenHeaderName, token)
	}
	if sessionID != "" {
		md.Set(common.SessionHeaderName, sessionID)
	}

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) credentialsInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	token, sessionID := s.Credentials()
	return invoker(withCredentials(ctx, token, sessionID), method, req, reply, cc, opts...)
}

// NewGRPCClient prepares a connection to endpointURL. No network traffic
// happens until the first call.
func NewGRPCClient(endpointURL string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(gs.Codec())),
		grpc.WithUnaryInterceptor(c.credentialsInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, opts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) Credentials() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken, s.sessionID
}

func (s *GRPCClient) SetCredentials(accessToken, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken, s.sessionID = accessToken, sessionID
}

func (s *GRPCClient) setSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = sessionID
}

// invoke runs one unary call and maps its error.
func (s *GRPCClient) invoke(ctx context.Context, method string, req, resp any) error {
	var trailer metadata.MD
	err := s.conn.Invoke(ctx, gs.FullMethod(method), req, resp, grpc.Trailer(&trailer))
	return mapError(err, trailer)
}

// mapError turns a failed call into the matching sentinel. The server's
// error-code trailer is preferred; the status code is the fallback.
func mapError(err error, trailer metadata.MD) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)

	if vals := trailer.Get(gs.ErrorCodeTrailer); len(vals) > 0 {
		if sentinel := common.FromCode(vals[0]); sentinel != nil {
			if errors.Is(sentinel, common.ErrorUnauthorized) {
				return fmt.Errorf("%s: %w", st.Message(), ErrUnauthorized)
			}
			return fmt.Errorf("%s: %w", st.Message(), sentinel)
		}
	}

	switch st.Code() {
	case codes.Unauthenticated:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	return s.invoke(ctx, "Ping", &api.Empty{}, &api.Empty{})
}

func (s *GRPCClient) Register(ctx context.Context, username string, salt, verifier []byte) error {
	req := &api.RegisterRequest{Username: username, Salt: salt, Verifier: verifier}
	return s.invoke(ctx, "RegisterUser", req, &api.RegisterResponse{})
}

func (s *GRPCClient) GetSalt(ctx context.Context, username string) ([]byte, error) {
	resp := &api.GetSaltResponse{}
	if err := s.invoke(ctx, "GetSalt", &api.GetSaltRequest{Username: username}, resp); err != nil {
		return nil, err
	}
	return resp.Salt, nil
}

// Login stores the new access token. Any previous session binding is
// dropped since it belonged to the earlier login.
func (s *GRPCClient) Login(ctx context.Context, username string, verifier []byte) error {
	resp := &api.LoginResponse{}
	if err := s.invoke(ctx, "Login", &api.LoginRequest{Username: username, Verifier: verifier}, resp); err != nil {
		return err
	}
	s.SetCredentials(resp.AccessToken, "")
	return nil
}

// Logout deactivates the active account on the server and forgets the
// session. The access token stays valid for further switches.
func (s *GRPCClient) Logout(ctx context.Context) error {
	if err := s.invoke(ctx, "Logout", &api.Empty{}, &api.Empty{}); err != nil {
		return err
	}
	s.setSession("")
	return nil
}

func (s *GRPCClient) CreateAccount(ctx context.Context, req *api.CreateAccountRequest) (*api.Account, error) {
	resp := &api.Account{}
	if err := s.invoke(ctx, "CreateAccount", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *GRPCClient) ListAccounts(ctx context.Context, req *api.ListAccountsRequest) ([]api.Account, error) {
	resp := &api.ListAccountsResponse{}
	if err := s.invoke(ctx, "ListAccounts", req, resp); err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

func (s *GRPCClient) UnlockAccount(ctx context.Context, accountID string, verifier []byte) (string, error) {
	resp := &api.UnlockAccountResponse{}
	req := &api.UnlockAccountRequest{AccountID: accountID, Verifier: verifier}
	if err := s.invoke(ctx, "UnlockAccount", req, resp); err != nil {
		return "", err
	}
	return resp.VerificationToken, nil
}

// SwitchAccount binds the client to the session the switch created.
func (s *GRPCClient) SwitchAccount(ctx context.Context, accountID, verificationToken string) (*api.SwitchAccountResponse, error) {
	resp := &api.SwitchAccountResponse{}
	req := &api.SwitchAccountRequest{AccountID: accountID, VerificationToken: verificationToken}
	if err := s.invoke(ctx, "SwitchAccount", req, resp); err != nil {
		return nil, err
	}
	s.setSession(resp.SessionID)
	return resp, nil
}

func (s *GRPCClient) DeleteAccount(ctx context.Context, accountID string) error {
	req := &api.DeleteAccountRequest{AccountID: accountID, Confirm: true}
	return s.invoke(ctx, "DeleteAccount", req, &api.Empty{})
}

func (s *GRPCClient) CurrentSession(ctx context.Context) (*api.SessionResponse, error) {
	resp := &api.SessionResponse{}
	if err := s.invoke(ctx, "CurrentSession", &api.Empty{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *GRPCClient) StoragePut(ctx context.Context, req *api.StoragePutRequest) error {
	return s.invoke(ctx, "StoragePut", req, &api.Empty{})
}

func (s *GRPCClient) StorageGetAll(ctx context.Context, namespace, kind string) ([]api.StorageEntry, error) {
	resp := &api.StorageGetAllResponse{}
	req := &api.StorageGetAllRequest{Namespace: namespace, Kind: kind}
	if err := s.invoke(ctx, "StorageGetAll", req, resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

func (s *GRPCClient) StorageClear(ctx context.Context, namespace string, kinds ...string) error {
	req := &api.StorageClearRequest{Namespace: namespace, Kinds: kinds}
	return s.invoke(ctx, "StorageClear", req, &api.Empty{})
}
