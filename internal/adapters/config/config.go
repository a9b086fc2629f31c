package config

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"gitlab.com/supernavi/api/navi-bridge-service/internal/domain"
)

const envPrefix = "NAVI_BRIDGE"

// ServerConfig holds server-related configurations.
// Note: Fields should be exported (start with uppercase) to be unmarshalled by Viper.
type ServerConfig struct {
	HTTPPort int `mapstructure:"http_port"`
}

// CloudConfig holds the cloud API endpoint and persisted credentials.
// Exactly one credential is active at a time; a device token takes priority
// over the legacy key when both are present.
type CloudConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	LegacyKey      string `mapstructure:"legacy_key"`   // Should primarily come from ENV or initial setup
	DeviceToken    string `mapstructure:"device_token"` // Written back after a successful pairing claim
	DeviceID       string `mapstructure:"device_id"`
	DeviceName     string `mapstructure:"device_name"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// EdgeConfig holds tunnel-related configuration for the local agent.
type EdgeConfig struct {
	AgentID        string `mapstructure:"agent_id"` // Resolved once from an authenticated identity call
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// CacheConfig selects the status cache backend and its TTL.
type CacheConfig struct {
	Backend    string `mapstructure:"backend"` // "memory" (default) or "redis"
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// CoordinatorConfig holds request-coordinator tuning.
type CoordinatorConfig struct {
	ViewerLinkCooldownSeconds int `mapstructure:"viewer_link_cooldown_seconds"`
}

// RedisConfig holds Redis-related configurations (only used when cache.backend is "redis").
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"` // Optional
	DB       int    `mapstructure:"db"`       // Optional
}

// NATSConfig holds NATS-related configurations for the case-updated
// invalidation feed. Leaving URL empty disables the consumer.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// LogConfig holds logging-related configurations.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// AppConfig holds application-specific configurations.
type AppConfig struct {
	ServiceName            string `mapstructure:"service_name"`
	Version                string `mapstructure:"version"`
	Debug                  bool   `mapstructure:"debug"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
	WriteTimeoutSeconds    int    `mapstructure:"write_timeout_seconds"`
}

// Config holds all configuration for the application.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Cloud       CloudConfig       `mapstructure:"cloud"`
	Edge        EdgeConfig        `mapstructure:"edge"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Redis       RedisConfig       `mapstructure:"redis"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Log         LogConfig         `mapstructure:"log"`
	App         AppConfig         `mapstructure:"app"`
}

// Provider defines an interface for accessing application configuration.
// This allows for easy mocking in tests and decouples the app from Viper.
type Provider interface {
	Get() *Config

	// PersistPairingGrant writes device credentials obtained from a pairing
	// claim into the live configuration and the backing config file, so the
	// paired state survives a restart.
	PersistPairingGrant(grant *domain.PairingGrant) error
}

// viperProvider implements the Provider interface using Viper.
type viperProvider struct {
	mu     sync.RWMutex
	viper  *viper.Viper
	config *Config
	logger *zap.Logger // Using zap.Logger directly for config internal logging, not domain.Logger to avoid circular deps
}

// NewViperProvider creates and initializes a new configuration provider using Viper.
// It loads configuration from file and environment variables, and sets up hot-reloading:
// a SIGHUP or a config file change re-reads the file, which is also how a credential
// change (new device token, revoked legacy key) reaches running resolutions.
// appCtx is the application lifecycle context used for graceful shutdown of background tasks.
func NewViperProvider(appCtx context.Context, logger *zap.Logger) (Provider, error) {
	cfg := &Config{}
	v := viper.New()

	v.SetDefault("server.http_port", 8093)
	v.SetDefault("cloud.timeout_seconds", 15)
	v.SetDefault("edge.timeout_seconds", 4)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl_seconds", 60)
	v.SetDefault("coordinator.viewer_link_cooldown_seconds", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("app.service_name", "navi-bridge-service")
	v.SetDefault("app.shutdown_timeout_seconds", 10)

	// Configure Viper to read from YAML file
	configName := os.Getenv("VIPER_CONFIG_NAME")
	if configName == "" {
		configName = "config"
	}
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	if path := os.Getenv("VIPER_CONFIG_PATH"); path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".") // Also look in current directory for local dev

	// Configure Viper to read from environment variables
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_")) // e.g., cloud.base_url becomes CLOUD_BASE_URL

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.Warn("Config file not found; relying on defaults and environment variables", zap.Error(err))
		} else {
			logger.Error("Failed to read config file", zap.Error(err))
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		logger.Error("Failed to unmarshal config", zap.Error(err))
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	p := &viperProvider{
		viper:  v,
		config: cfg,
		logger: logger,
	}

	// Set up SIGHUP for hot-reloading configuration
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Panic recovered in SIGHUP handler goroutine",
					zap.String("goroutine_name", "SIGHUPConfigReloader"),
					zap.Any("panic_info", r),
					zap.String("stacktrace", string(debug.Stack())),
				)
			}
		}()
		for {
			select {
			case sig := <-sigChan:
				p.logger.Info("SIGHUP received, attempting to reload configuration...", zap.String("signal", sig.String()))
				p.reload()
			case <-appCtx.Done():
				p.logger.Info("SIGHUPConfigReloader goroutine shutting down due to context cancellation.")
				return
			}
		}
	}()

	// Watch for config file changes; pairing claims persisted by this process
	// and operator edits both arrive this way.
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Panic recovered in OnConfigChange callback",
					zap.String("event_name", e.Name),
					zap.String("event_op", e.Op.String()),
					zap.Any("panic_info", r),
					zap.String("stacktrace", string(debug.Stack())),
				)
			}
		}()
		p.logger.Info("Config file changed", zap.String("name", e.Name), zap.String("op", e.Op.String()))
		p.reload()
	})

	p.logger.Info("Configuration loaded successfully", zap.String("config_file_used", v.ConfigFileUsed()))

	return p, nil
}

func (p *viperProvider) reload() {
	if err := p.viper.ReadInConfig(); err != nil {
		p.logger.Error("Failed to re-read config file", zap.Error(err))
		return
	}
	newCfg := &Config{}
	if err := p.viper.Unmarshal(newCfg); err != nil {
		p.logger.Error("Failed to unmarshal re-read config", zap.Error(err))
		return
	}
	p.mu.Lock()
	p.config = newCfg
	p.mu.Unlock()
	p.logger.Info("Configuration reloaded successfully")
}

// Get returns the current configuration.
func (p *viperProvider) Get() *Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config
}

// PersistPairingGrant stores freshly claimed device credentials in the live
// configuration and writes them back to the config file.
func (p *viperProvider) PersistPairingGrant(grant *domain.PairingGrant) error {
	if grant == nil || grant.DeviceToken == "" {
		return fmt.Errorf("pairing grant is missing a device token")
	}

	p.viper.Set("cloud.device_token", grant.DeviceToken)
	p.viper.Set("cloud.device_id", grant.DeviceID)
	if grant.DeviceName != "" {
		p.viper.Set("cloud.device_name", grant.DeviceName)
	}

	newCfg := &Config{}
	if err := p.viper.Unmarshal(newCfg); err != nil {
		return fmt.Errorf("failed to unmarshal config after pairing grant: %w", err)
	}
	p.mu.Lock()
	p.config = newCfg
	p.mu.Unlock()

	if p.viper.ConfigFileUsed() == "" {
		if err := p.viper.SafeWriteConfigAs("config.yaml"); err != nil {
			return fmt.Errorf("failed to write new config file with device credentials: %w", err)
		}
		return nil
	}
	if err := p.viper.WriteConfig(); err != nil {
		return fmt.Errorf("failed to persist device credentials to config file: %w", err)
	}
	return nil
}
