package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/accountctx/internal/server/api"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(s.recoverer)
	r.Use(s.observe)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", public(s, (*api.Service).Register))
		r.Post("/user/salt", public(s, (*api.Service).GetSalt))
		r.Post("/user/login", public(s, (*api.Service).Login))

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Post("/user/logout", s.logout)

			r.Post("/accounts", authed(s, http.StatusCreated, (*api.Service).CreateAccount, nil))
			r.Get("/accounts", authed(s, http.StatusOK, (*api.Service).ListAccounts, bindListAccounts))
			r.Route("/accounts/{accountID}", func(r chi.Router) {
				r.Get("/", authed(s, http.StatusOK, (*api.Service).GetAccount, bindAccount))
				r.Patch("/", authed(s, http.StatusOK, (*api.Service).UpdateAccount, bindUpdateAccount))
				r.Delete("/", authed(s, http.StatusOK, (*api.Service).DeleteAccount, bindDeleteAccount))
				r.Post("/unlock", authed(s, http.StatusOK, (*api.Service).UnlockAccount, bindUnlockAccount))
				r.Post("/switch", s.switchAccount)
				r.Put("/proxy", authed(s, http.StatusOK, (*api.Service).AssignProxy, bindAssignProxy))

				r.Post("/tabs", authed(s, http.StatusCreated, (*api.Service).OpenTab, bindOpenTab))
				r.Get("/tabs", authed(s, http.StatusOK, (*api.Service).ListTabs, bindAccount))
				r.Delete("/tabs/{tabID}", authed(s, http.StatusOK, (*api.Service).CloseTab, bindCloseTab))
			})

			r.Post("/proxies", authed(s, http.StatusCreated, (*api.Service).CreateProxy, nil))
			r.Get("/proxies", authed(s, http.StatusOK, (*api.Service).ListProxies, nil))

			r.Post("/storage", authed(s, http.StatusOK, (*api.Service).StoragePut, nil))
			r.Get("/storage/{namespace}/{kind}", authed(s, http.StatusOK, (*api.Service).StorageGetAll, bindStorageGetAll))
			r.Delete("/storage/{namespace}", authed(s, http.StatusOK, (*api.Service).StorageClear, bindStorageClear))

			r.Get("/session", authed(s, http.StatusOK, (*api.Service).CurrentSession, nil))
			r.Post("/admin/sessions/purge", authed(s, http.StatusOK, (*api.Service).PurgeSessions, nil))
		})
	})

	return r
}
