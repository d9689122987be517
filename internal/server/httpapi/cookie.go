package httpapi

import (
	"net/http"
	"strings"

	"github.com/dmitrijs2005/accountctx/internal/common"
)

// secureRequest reports whether the client reached us over HTTPS, either
// directly or, when trusted, through a proxy that says so in
// X-Forwarded-Proto. Proxies may send a comma separated list.
func (s *Server) secureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if !s.opts.TrustForwardedProto {
		return false
	}
	for _, header := range r.Header.Values("X-Forwarded-Proto") {
		for _, proto := range strings.Split(header, ",") {
			if strings.EqualFold(strings.TrimSpace(proto), "https") {
				return true
			}
		}
	}
	return false
}

func (s *Server) sessionCookie(r *http.Request, value string) *http.Cookie {
	return &http.Cookie{
		Name:     common.SessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureRequest(r),
		SameSite: http.SameSiteStrictMode,
	}
}

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, sessionID string) {
	http.SetCookie(w, s.sessionCookie(r, sessionID))
}

func (s *Server) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	c := s.sessionCookie(r, "")
	c.MaxAge = -1
	http.SetCookie(w, c)
}
