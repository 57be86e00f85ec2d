package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/z-tavern/chatengine/internal/auth"
	authHandler "github.com/zhouzirui/z-tavern/chatengine/internal/handler/auth"
	"github.com/zhouzirui/z-tavern/chatengine/internal/handler/chat"
	"github.com/zhouzirui/z-tavern/chatengine/internal/handler/media"
	"github.com/zhouzirui/z-tavern/chatengine/internal/handler/persona"
	"github.com/zhouzirui/z-tavern/chatengine/internal/metrics"
	middlewarePkg "github.com/zhouzirui/z-tavern/chatengine/internal/middleware"
	personaModel "github.com/zhouzirui/z-tavern/chatengine/internal/model/persona"
	aiService "github.com/zhouzirui/z-tavern/chatengine/internal/service/ai"
	chatService "github.com/zhouzirui/z-tavern/chatengine/internal/service/chat"
	mediaService "github.com/zhouzirui/z-tavern/chatengine/internal/service/media"
	"github.com/zhouzirui/z-tavern/chatengine/internal/service/quota"
	"github.com/zhouzirui/z-tavern/chatengine/pkg/utils"
)

// Services are the backend components exposed over HTTP.
type Services struct {
	Personas  personaModel.Store
	Chat      *chatService.Service
	Responder aiService.Responder
	Quota     *quota.Service
	Media     *mediaService.Service
	Auth      *auth.Service
	Metrics   *metrics.Metrics
	AccessLog bool
}

// NewRouter wires HTTP routes to core services.
func NewRouter(svc Services) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if svc.AccessLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	if svc.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", svc.Metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		persona.New(svc.Personas).RegisterRoutes(api)

		var memberOnly, identify func(http.Handler) http.Handler
		if svc.Auth != nil {
			memberOnly = svc.Auth.Middleware
			identify = svc.Auth.Optional
			authHandler.New(svc.Auth).RegisterRoutes(api)
		} else {
			memberOnly = func(http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					utils.RespondError(w, http.StatusServiceUnavailable, "member sign-in unavailable")
				})
			}
		}
		chat.New(svc.Chat, svc.Personas, svc.Responder, svc.Quota, svc.Metrics).RegisterRoutes(api, memberOnly, identify)

		if svc.Media != nil {
			media.New(svc.Media, svc.Metrics).RegisterRoutes(api)
		}
	})

	return r
}
