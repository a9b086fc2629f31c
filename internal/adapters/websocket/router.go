package websocket

import (
	"context"
	"net/http"

	"gitlab.com/supernavi/api/navi-bridge-service/internal/adapters/config"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/adapters/middleware"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/domain"
)

// Router handles routing for the bridge WebSocket endpoint.
type Router struct {
	logger         domain.Logger
	configProvider config.Provider
	wsHandler      http.Handler
}

// NewRouter creates a new WebSocket router.
func NewRouter(logger domain.Logger, cfgProvider config.Provider, wsHandler *Handler) *Router {
	return &Router{
		logger:         logger,
		configProvider: cfgProvider,
		wsHandler:      wsHandler,
	}
}

// RegisterRoutes sets up the bridge WebSocket endpoint. Authentication to the
// slide service happens per outbound cloud call, not at connection time: an
// unconfigured bridge still accepts connections so the UI can drive pairing.
func (r *Router) RegisterRoutes(ctx context.Context, mux *http.ServeMux) {
	mux.Handle("GET /ws/bridge", middleware.RequestIDMiddleware(r.wsHandler))
	r.logger.Info(ctx, "Bridge WebSocket endpoint registered", "pattern", "GET /ws/bridge")
}
