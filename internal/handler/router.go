package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/abstimmung-app/backend/internal/handler/ws"
	middlewarePkg "github.com/abstimmung-app/backend/internal/middleware"
	"github.com/abstimmung-app/backend/internal/registry"
	"github.com/abstimmung-app/backend/internal/service/auth"
	"github.com/abstimmung-app/backend/internal/service/voting"
	"github.com/abstimmung-app/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(authSvc *auth.Service, votingSvc *voting.Service, reg *registry.Registry) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	wsHandler := ws.New(authSvc, votingSvc, reg)

	r.Route("/api", func(api chi.Router) {
		wsHandler.RegisterRoutes(api)
	})

	return r
}
