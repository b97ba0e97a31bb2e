package config

import (
	"errors"
	"time"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// Env is "dev" or "prod". Production posture enforces the captcha by default.
	Env      string `mapstructure:"env" yaml:"env"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	LogFile  string `mapstructure:"log_file" yaml:"log_file"`
	DataDir  string `mapstructure:"data_dir" yaml:"data_dir"`

	// TrustedProxies lists proxy IPs or CIDRs whose X-Forwarded-For is honored. Empty trusts none.
	TrustedProxies []string `mapstructure:"trusted_proxies" yaml:"trusted_proxies"`

	HistoryLimit       int           `mapstructure:"history_limit" yaml:"history_limit"`
	RoomTTL            time.Duration `mapstructure:"room_ttl" yaml:"room_ttl"`
	CleanupInterval    time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
	MinMessageDelay    time.Duration `mapstructure:"min_message_delay" yaml:"min_message_delay"`
	MaxMessageLength   int           `mapstructure:"max_message_length" yaml:"max_message_length"`
	SaveDebounce       time.Duration `mapstructure:"save_debounce" yaml:"save_debounce"`
	MaxFramesPerMinute int           `mapstructure:"max_frames_per_minute" yaml:"max_frames_per_minute"`
	TranslateHistory   bool          `mapstructure:"translate_history" yaml:"translate_history"`

	DefaultRoom   string   `mapstructure:"default_room" yaml:"default_room"`
	OfficialRooms []string `mapstructure:"official_rooms" yaml:"official_rooms"`

	// AdminKey is compared in constant time; AdminKeyHash (bcrypt) takes precedence when set.
	AdminKey     string `mapstructure:"admin_key" yaml:"admin_key"`
	AdminKeyHash string `mapstructure:"admin_key_hash" yaml:"admin_key_hash"`
	// PrivateSecret keys the cipher for private room history. Empty disables private persistence.
	PrivateSecret string `mapstructure:"private_secret" yaml:"private_secret"`

	RateLimit   RateLimit   `mapstructure:"rate_limit" yaml:"rate_limit"`
	AdminGuard  AdminGuard  `mapstructure:"admin_guard" yaml:"admin_guard"`
	Captcha     Captcha     `mapstructure:"captcha" yaml:"captcha"`
	Translation Translation `mapstructure:"translation" yaml:"translation"`
	Operator    Operator    `mapstructure:"operator" yaml:"operator"`
}

// RateLimit configures the sliding-window limiter applied to every session event.
type RateLimit struct {
	Window         time.Duration `mapstructure:"window" yaml:"window"`
	MaxPerAddr     int           `mapstructure:"max_per_addr" yaml:"max_per_addr"`
	MaxPerIdentity int           `mapstructure:"max_per_identity" yaml:"max_per_identity"`
}

// AdminGuard configures the /admin brute-force lockout.
type AdminGuard struct {
	Window      time.Duration `mapstructure:"window" yaml:"window"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	Lockout     time.Duration `mapstructure:"lockout" yaml:"lockout"`
}

// Captcha configures Cloudflare Turnstile verification at registration.
type Captcha struct {
	SecretKey string        `mapstructure:"secret_key" yaml:"secret_key"`
	SiteKey   string        `mapstructure:"site_key" yaml:"site_key"`
	Required  *bool         `mapstructure:"required" yaml:"required,omitempty"`
	VerifyURL string        `mapstructure:"verify_url" yaml:"verify_url"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Translation configures the machine translation backend and its caches.
type Translation struct {
	APIKey          string        `mapstructure:"api_key" yaml:"api_key"`
	Model           string        `mapstructure:"model" yaml:"model"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	CacheSize       int           `mapstructure:"cache_size" yaml:"cache_size"`
	CachePath       string        `mapstructure:"cache_path" yaml:"cache_path"`
	MaxCacheEntries int           `mapstructure:"max_cache_entries" yaml:"max_cache_entries"`
}

// Operator configures bearer tokens for the HTTP operator API.
type Operator struct {
	Secret string        `mapstructure:"secret" yaml:"secret"`
	Issuer string        `mapstructure:"issuer" yaml:"issuer"`
	TTL    time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// DefaultOfficialRooms are always listed and never evicted.
var DefaultOfficialRooms = []string{
	"#general", "#coding", "#linux", "#security", "#ai",
	"#opensource", "#anonymous", "#underground", "#privacy", "#torrent",
	"#deepweb", "#crypto", "#bitcoin", "#defi", "#trading",
	"#gaming", "#music", "#memes", "#philosophy", "#nsfw",
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,

		Env:      "dev",
		LogLevel: "info",
		DataDir:  "data",

		HistoryLimit:       100,
		RoomTTL:            10 * time.Minute,
		CleanupInterval:    time.Minute,
		MinMessageDelay:    800 * time.Millisecond,
		MaxMessageLength:   1000,
		SaveDebounce:       time.Second,
		MaxFramesPerMinute: 600,

		DefaultRoom:   "#general",
		OfficialRooms: append([]string(nil), DefaultOfficialRooms...),

		RateLimit: RateLimit{
			Window:         10 * time.Second,
			MaxPerAddr:     40,
			MaxPerIdentity: 25,
		},
		AdminGuard: AdminGuard{
			Window:      time.Minute,
			MaxAttempts: 5,
			Lockout:     5 * time.Minute,
		},
		Captcha: Captcha{
			VerifyURL: "https://challenges.cloudflare.com/turnstile/v0/siteverify",
			Timeout:   8 * time.Second,
		},
		Translation: Translation{
			Model:           "gpt-4o-mini",
			Timeout:         15 * time.Second,
			CacheSize:       5000,
			MaxCacheEntries: 50000,
		},
		Operator: Operator{
			Issuer: "lexyo",
			TTL:    24 * time.Hour,
		},
	}
}

// Production reports whether the server runs in production posture.
func (c *Config) Production() bool {
	return c.Env == "prod" || c.Env == "production"
}

// CaptchaRequired resolves the captcha posture: explicit setting wins, otherwise production requires it.
func (c *Config) CaptchaRequired() bool {
	if c.Captcha.Required != nil {
		return *c.Captcha.Required
	}
	return c.Production()
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.HistoryLimit <= 0:
		return errors.New("history_limit must be positive")
	case c.MaxMessageLength <= 0:
		return errors.New("max_message_length must be positive")
	case c.RoomTTL <= 0 || c.CleanupInterval <= 0:
		return errors.New("room_ttl and cleanup_interval must be positive")
	case c.RateLimit.Window <= 0 || c.AdminGuard.Window <= 0 || c.AdminGuard.Lockout <= 0:
		return errors.New("rate limit and admin guard windows must be positive")
	case c.AdminGuard.MaxAttempts <= 0:
		return errors.New("admin_guard.max_attempts must be positive")
	case c.DefaultRoom == "":
		return errors.New("default_room is required")
	}
	return nil
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}
	if other.Env != "" {
		c.Env = other.Env
	}
}
