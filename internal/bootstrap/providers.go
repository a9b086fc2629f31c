package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gitlab.com/supernavi/api/navi-bridge-service/internal/adapters/cloudapi"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/adapters/config"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/adapters/edge"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/adapters/logger"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/adapters/memcache"
	appnats "gitlab.com/supernavi/api/navi-bridge-service/internal/adapters/nats"
	appredis "gitlab.com/supernavi/api/navi-bridge-service/internal/adapters/redis"
	wsadapter "gitlab.com/supernavi/api/navi-bridge-service/internal/adapters/websocket"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/application"
	"gitlab.com/supernavi/api/navi-bridge-service/internal/domain"
)

// App aggregates the long-lived pieces of the bridge service. The resolution
// engine owns the process-wide mutable state (status cache handle, resolved
// edge agent identifier); the coordinator owns the current-case pointer. Both
// live exactly as long as the App.
type App struct {
	configProvider       config.Provider
	logger               domain.Logger
	httpServeMux         *http.ServeMux
	httpServer           *http.Server
	wsRouter             *wsadapter.Router
	engine               *application.ResolutionEngine
	coordinator          *application.RequestCoordinator
	invalidationConsumer *appnats.InvalidationConsumer
}

// NewApp is the constructor for App, used by Wire.
func NewApp(
	cfgProvider config.Provider,
	appLogger domain.Logger,
	mux *http.ServeMux,
	server *http.Server,
	wsRouter *wsadapter.Router,
	engine *application.ResolutionEngine,
	coordinator *application.RequestCoordinator,
	invalidationConsumer *appnats.InvalidationConsumer,
) (*App, func(), error) {
	app := &App{
		configProvider:       cfgProvider,
		logger:               appLogger,
		httpServeMux:         mux,
		httpServer:           server,
		wsRouter:             wsRouter,
		engine:               engine,
		coordinator:          coordinator,
		invalidationConsumer: invalidationConsumer,
	}
	cleanup := func() {
		app.logger.Info(context.Background(), "Running app cleanup...")
	}
	return app, cleanup, nil
}

// InitialZapLoggerProvider provides a basic *zap.Logger instance, primarily for config initialization.
// It returns the logger, a cleanup function (for syncing), and an error if creation fails.
func InitialZapLoggerProvider() (*zap.Logger, func(), error) {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		zapLogger, err = zap.NewDevelopment()
		if err != nil {
			zapLogger = zap.NewExample()
			fmt.Fprintf(os.Stderr, "Failed to create initial zap logger (production and development failed, falling back to example): %v\n", err)
		}
	}

	cleanup := func() {
		// Syncing flushes any buffered log entries before exit.
		if syncErr := zapLogger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync initial zap logger: %v\n", syncErr)
		}
	}
	return zapLogger, cleanup, nil
}

// ConfigProvider provides the application configuration.
func ConfigProvider(appCtx context.Context, zapLogger *zap.Logger) (config.Provider, error) {
	return config.NewViperProvider(appCtx, zapLogger)
}

// LoggerProvider provides the application logger.
func LoggerProvider(cfgProvider config.Provider) (domain.Logger, error) {
	appCfg := cfgProvider.Get()
	return logger.NewZapAdapter(cfgProvider, appCfg.App.ServiceName)
}

// HTTPServeMuxProvider provides the main HTTP multiplexer.
func HTTPServeMuxProvider() *http.ServeMux {
	return http.NewServeMux()
}

// HTTPGracefulServerProvider provides a new HTTP server configured for graceful shutdown.
func HTTPGracefulServerProvider(cfgProvider config.Provider, mux *http.ServeMux) *http.Server {
	appCfg := cfgProvider.Get()

	readTimeout := 10 * time.Second
	writeTimeout := 10 * time.Second
	idleTimeout := 60 * time.Second
	if appCfg.App.WriteTimeoutSeconds > 0 {
		writeTimeout = time.Duration(appCfg.App.WriteTimeoutSeconds) * time.Second
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", appCfg.Server.HTTPPort),
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// StatusCacheProvider selects the status cache backend: in-process by default,
// Redis when several bridge pods share one resolved view. The Redis client is
// created here so deployments on the memory backend never dial Redis.
func StatusCacheProvider(cfgProvider config.Provider, appLogger domain.Logger) (domain.StatusCacheStore, func(), error) {
	appCfg := cfgProvider.Get()
	backend := strings.ToLower(appCfg.Cache.Backend)

	switch backend {
	case "", "memory":
		return memcache.NewStatusCacheAdapter(appLogger), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     appCfg.Redis.Address,
			Password: appCfg.Redis.Password,
			DB:       appCfg.Redis.DB,
		})
		if _, err := client.Ping(context.Background()).Result(); err != nil {
			appLogger.Error(context.Background(), "Failed to connect to Redis", "error", err.Error(), "address", appCfg.Redis.Address)
			return nil, nil, fmt.Errorf("failed to connect to Redis at %s: %w", appCfg.Redis.Address, err)
		}
		appLogger.Info(context.Background(), "Successfully connected to Redis", "address", appCfg.Redis.Address)
		cleanup := func() {
			client.Close()
			appLogger.Info(context.Background(), "Redis connection closed")
		}
		return appredis.NewStatusCacheAdapter(client, appLogger), cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q (want memory or redis)", appCfg.Cache.Backend)
	}
}

// EdgeSourceProvider provides the edge tunnel client.
func EdgeSourceProvider(cfgProvider config.Provider, appLogger domain.Logger) domain.EdgeSource {
	return edge.NewClient(cfgProvider, appLogger)
}

// CloudSourceProvider provides the authoritative cloud API client.
func CloudSourceProvider(cfgProvider config.Provider, appLogger domain.Logger) domain.CloudSource {
	return cloudapi.NewClient(cfgProvider, appLogger)
}

// ResolutionEngineProvider provides the case status resolution engine.
func ResolutionEngineProvider(appLogger domain.Logger, cfgProvider config.Provider, cache domain.StatusCacheStore, edgeSource domain.EdgeSource, cloudSource domain.CloudSource) *application.ResolutionEngine {
	return application.NewResolutionEngine(appLogger, cfgProvider, cache, edgeSource, cloudSource)
}

// RequestCoordinatorProvider provides the request coordinator.
func RequestCoordinatorProvider(appLogger domain.Logger, cfgProvider config.Provider, engine *application.ResolutionEngine) *application.RequestCoordinator {
	return application.NewRequestCoordinator(appLogger, cfgProvider, engine)
}

// WebsocketHandlerProvider provides the bridge websocket handler.
func WebsocketHandlerProvider(appLogger domain.Logger, cfgProvider config.Provider, coordinator *application.RequestCoordinator) *wsadapter.Handler {
	return wsadapter.NewHandler(appLogger, cfgProvider, coordinator)
}

// WebsocketRouterProvider provides the bridge websocket router.
func WebsocketRouterProvider(appLogger domain.Logger, cfgProvider config.Provider, wsHandler *wsadapter.Handler) *wsadapter.Router {
	return wsadapter.NewRouter(appLogger, cfgProvider, wsHandler)
}

// InvalidationConsumerProvider provides the optional NATS case-updated consumer.
func InvalidationConsumerProvider(appCtx context.Context, cfgProvider config.Provider, appLogger domain.Logger, engine *application.ResolutionEngine) (*appnats.InvalidationConsumer, func(), error) {
	return appnats.NewInvalidationConsumer(appCtx, cfgProvider, appLogger, engine)
}

// ProviderSet is the Wire provider set for the whole application.
var ProviderSet = wire.NewSet(
	InitialZapLoggerProvider,
	ConfigProvider,
	LoggerProvider,
	HTTPServeMuxProvider,
	HTTPGracefulServerProvider,
	StatusCacheProvider,
	EdgeSourceProvider,
	CloudSourceProvider,
	ResolutionEngineProvider,
	RequestCoordinatorProvider,
	WebsocketHandlerProvider,
	WebsocketRouterProvider,
	InvalidationConsumerProvider,
	NewApp,
)
