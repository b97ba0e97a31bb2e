package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "LEXYO"
	envConfigDefaultPath = "LEXYO_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars (.env included) < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) && logger != nil {
		logger.Warn().Err(err).Msg("failed to read .env file")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// no default: unset means "derive from env"
	_ = v.BindEnv("captcha.required")

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, configPath, fmt.Errorf("validate config: %w", err)
	}

	return cfg, configPath, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("addr", cfg.Addr)
	v.SetDefault("read_header_timeout", cfg.ReadHeaderTimeout)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)
	v.SetDefault("env", cfg.Env)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_file", cfg.LogFile)
	v.SetDefault("data_dir", cfg.DataDir)

	v.SetDefault("history_limit", cfg.HistoryLimit)
	v.SetDefault("room_ttl", cfg.RoomTTL)
	v.SetDefault("cleanup_interval", cfg.CleanupInterval)
	v.SetDefault("min_message_delay", cfg.MinMessageDelay)
	v.SetDefault("max_message_length", cfg.MaxMessageLength)
	v.SetDefault("save_debounce", cfg.SaveDebounce)
	v.SetDefault("max_frames_per_minute", cfg.MaxFramesPerMinute)
	v.SetDefault("translate_history", cfg.TranslateHistory)
	v.SetDefault("default_room", cfg.DefaultRoom)
	v.SetDefault("official_rooms", cfg.OfficialRooms)
	v.SetDefault("trusted_proxies", cfg.TrustedProxies)

	v.SetDefault("admin_key", cfg.AdminKey)
	v.SetDefault("admin_key_hash", cfg.AdminKeyHash)
	v.SetDefault("private_secret", cfg.PrivateSecret)

	v.SetDefault("rate_limit.window", cfg.RateLimit.Window)
	v.SetDefault("rate_limit.max_per_addr", cfg.RateLimit.MaxPerAddr)
	v.SetDefault("rate_limit.max_per_identity", cfg.RateLimit.MaxPerIdentity)

	v.SetDefault("admin_guard.window", cfg.AdminGuard.Window)
	v.SetDefault("admin_guard.max_attempts", cfg.AdminGuard.MaxAttempts)
	v.SetDefault("admin_guard.lockout", cfg.AdminGuard.Lockout)

	v.SetDefault("captcha.secret_key", cfg.Captcha.SecretKey)
	v.SetDefault("captcha.site_key", cfg.Captcha.SiteKey)
	v.SetDefault("captcha.verify_url", cfg.Captcha.VerifyURL)
	v.SetDefault("captcha.timeout", cfg.Captcha.Timeout)

	v.SetDefault("translation.api_key", cfg.Translation.APIKey)
	v.SetDefault("translation.model", cfg.Translation.Model)
	v.SetDefault("translation.timeout", cfg.Translation.Timeout)
	v.SetDefault("translation.cache_size", cfg.Translation.CacheSize)
	v.SetDefault("translation.cache_path", cfg.Translation.CachePath)
	v.SetDefault("translation.max_cache_entries", cfg.Translation.MaxCacheEntries)

	v.SetDefault("operator.secret", cfg.Operator.Secret)
	v.SetDefault("operator.issuer", cfg.Operator.Issuer)
	v.SetDefault("operator.ttl", cfg.Operator.TTL)
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
