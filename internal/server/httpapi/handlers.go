package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/server/api"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

var httpStatus = map[string]int{
	common.CodeNotFound:           http.StatusNotFound,
	common.CodeForbidden:          http.StatusForbidden,
	common.CodeConflict:           http.StatusConflict,
	common.CodeIsolationViolation: http.StatusForbidden,
	common.CodeDecryptionFailed:   http.StatusInternalServerError,
	common.CodeValidation:         http.StatusBadRequest,
	common.CodeUnauthorized:       http.StatusUnauthorized,
	common.CodeInternal:           http.StatusInternalServerError,
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn(context.Background(), "response encoding failed", "error", err)
	}
}

// writeError sends the stable code and a caller-safe message. Internal
// failures are logged in full.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := common.Code(err)
	if code == common.CodeInternal {
		s.logger.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, httpStatus[code], api.ErrorResponse{Code: code, Message: common.Message(err)})
}

// decode reads an optional JSON body into v.
func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("malformed body: %w", common.ErrorValidation)
}

func public[Req, Resp any](s *Server, call func(*api.Service, context.Context, *Req) (*Resp, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := new(Req)
		if err := decode(r, req); err != nil {
			s.writeError(w, r, err)
			return
		}
		resp, err := call(s.api, r.Context(), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

// authed decodes the body, lets bind copy URL parameters over it and calls
// the api as the authenticated caller.
func authed[Req, Resp any](s *Server, status int, call func(*api.Service, context.Context, api.Caller, *Req) (*Resp, error),
	bind func(*http.Request, *Req) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := new(Req)
		if err := decode(r, req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if bind != nil {
			if err := bind(r, req); err != nil {
				s.writeError(w, r, err)
				return
			}
		}
		resp, err := call(s.api, r.Context(), callerFrom(r.Context()), req)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, status, resp)
	}
}

func (s *Server) switchAccount(w http.ResponseWriter, r *http.Request) {
	req := &api.SwitchAccountRequest{}
	if err := decode(r, req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.AccountID = chi.URLParam(r, "accountID")

	resp, err := s.api.SwitchAccount(r.Context(), callerFrom(r.Context()), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.setSessionCookie(w, r, resp.SessionID)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	resp, err := s.api.Logout(r.Context(), callerFrom(r.Context()), &api.Empty{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.clearSessionCookie(w, r)
	s.writeJSON(w, http.StatusOK, resp)
}

// --- URL binders ---

func queryBool(r *http.Request, name string) (*bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("%s must be a boolean: %w", name, common.ErrorValidation)
	}
	return &b, nil
}

func bindListAccounts(r *http.Request, req *api.ListAccountsRequest) error {
	q := r.URL.Query()
	if v := q.Get("sort_by"); v != "" {
		req.SortBy = v
	}
	if v := q.Get("order"); v != "" {
		req.Order = v
	}
	protected, err := queryBool(r, "protected")
	if err != nil {
		return err
	}
	if query := q.Get("q"); query != "" || protected != nil {
		req.Filter = &api.AccountFilter{Query: query, Protected: protected}
	}
	return nil
}

func bindAccount(r *http.Request, req *api.AccountRequest) error {
	req.AccountID = chi.URLParam(r, "accountID")
	return nil
}

func bindUpdateAccount(r *http.Request, req *api.UpdateAccountRequest) error {
	req.AccountID = chi.URLParam(r, "accountID")
	return nil
}

// bindDeleteAccount accepts confirm from the body or the query string.
func bindDeleteAccount(r *http.Request, req *api.DeleteAccountRequest) error {
	req.AccountID = chi.URLParam(r, "accountID")
	confirm, err := queryBool(r, "confirm")
	if err != nil {
		return err
	}
	if confirm != nil {
		req.Confirm = *confirm
	}
	return nil
}

func bindUnlockAccount(r *http.Request, req *api.UnlockAccountRequest) error {
	req.AccountID = chi.URLParam(r, "accountID")
	return nil
}

func bindAssignProxy(r *http.Request, req *api.AssignProxyRequest) error {
	req.AccountID = chi.URLParam(r, "accountID")
	return nil
}

func bindOpenTab(r *http.Request, req *api.OpenTabRequest) error {
	req.AccountID = chi.URLParam(r, "accountID")
	return nil
}

func bindCloseTab(r *http.Request, req *api.CloseTabRequest) error {
	req.AccountID = chi.URLParam(r, "accountID")
	req.TabID = chi.URLParam(r, "tabID")
	return nil
}

func bindStorageGetAll(r *http.Request, req *api.StorageGetAllRequest) error {
	req.Namespace = chi.URLParam(r, "namespace")
	req.Kind = chi.URLParam(r, "kind")
	return nil
}

func bindStorageClear(r *http.Request, req *api.StorageClearRequest) error {
	req.Namespace = chi.URLParam(r, "namespace")
	if kinds := r.URL.Query()["kind"]; len(kinds) > 0 {
		req.Kinds = kinds
	}
	return nil
}
