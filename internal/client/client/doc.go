// Package client contains the client-side building blocks of acctl.
//
// It provides the Client contract for talking to the account context server,
// a gRPC implementation (GRPCClient) that speaks the server's JSON codec and
// attaches the access token and live session id to every call, and
// InitDatabase, which opens the CLI's SQLite state file and applies its
// embedded goose migrations.
//
// Failed calls are mapped back onto the sentinels in package common using
// the stable error code the server sends in its trailer, so callers match
// them with errors.Is. Transport failures surface as ErrUnavailable.
package client
