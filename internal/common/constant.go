// Package common contains shared constants and sentinel errors used across
// accountctx components.
package common

// AccessTokenHeaderName is the gRPC/HTTP metadata key used to carry the
// access token on inbound requests.
const AccessTokenHeaderName = "access_token"

// SessionHeaderName is the gRPC metadata key carrying the live session id.
// Over HTTP the session travels in the SessionCookieName cookie instead.
const SessionHeaderName = "session_id"

// SessionCookieName is the HTTP cookie that binds a browser to its session.
const SessionCookieName = "acctx_session"
