package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/banko/internal/core"
	"github.com/JonMunkholm/banko/internal/logging"
)

const (
	sessionCookie = "banko_session"
	sessionHeader = "X-Session-Id"
)

type workflowKey struct{}

// withWorkflow resolves the caller's import session from the session cookie
// or X-Session-Id header, creating one when it is missing or expired. The
// session id is echoed back in both.
func (s *Server) withWorkflow(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(sessionHeader)
		if id == "" {
			if c, err := r.Cookie(sessionCookie); err == nil {
				id = c.Value
			}
		}

		wf, created := s.registry.Open(id)
		if created || wf.ID() != id {
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookie,
				Value:    wf.ID(),
				Path:     "/",
				HttpOnly: true,
				Secure:   s.cfg.Server.CookieSecure,
				SameSite: http.SameSiteLaxMode,
			})
		}
		w.Header().Set(sessionHeader, wf.ID())

		ctx := logging.WithSessionID(r.Context(), wf.ID())
		ctx = context.WithValue(ctx, workflowKey{}, wf)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// workflowFrom returns the workflow attached by withWorkflow.
func workflowFrom(ctx context.Context) *core.Workflow {
	wf, _ := ctx.Value(workflowKey{}).(*core.Workflow)
	return wf
}
