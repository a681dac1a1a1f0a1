package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"hermes/internal/auth"
	"hermes/internal/realtime"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	SessionStoreSQL   = "sql"
	SessionStoreRedis = "redis"

	defaultAddr = ":8080"
)

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type WebSocketConfig struct {
	MaxMessageSize int64 `yaml:"max_message_size"`
	SendBuffer     int   `yaml:"send_buffer"`
}

// ServerConfig defines how the HTTP/WebSocket backend should run.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	Environment string `yaml:"environment"`
	// PublicURL is where this server is reachable; OAuth callbacks are
	// built from it.
	PublicURL string `yaml:"public_url"`
	// FrontendURL is the browser app that receives users after login.
	FrontendURL    string   `yaml:"frontend_url"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	TrustProxy     bool     `yaml:"trust_proxy"`
	SecureCookies  bool     `yaml:"secure_cookies"`

	SessionSecret  string        `yaml:"session_secret"`
	SessionStore   string        `yaml:"session_store"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	PresencePolicy string        `yaml:"presence_policy"`

	Database  DatabaseConfig           `yaml:"database"`
	Redis     RedisConfig              `yaml:"redis"`
	Auth      auth.ProviderCredentials `yaml:"auth"`
	Log       LogConfig                `yaml:"log"`
	WebSocket WebSocketConfig          `yaml:"websocket"`

	// generatedSecret is set when Validate made up a development secret.
	generatedSecret bool
}

// WatchConfig defines the parameters the watch client needs.
type WatchConfig struct {
	ServerURL   string
	Token       string
	UserID      string
	SessionPath string
	// Save persists the resolved server and token to SessionPath.
	Save bool
}

// LoadServerConfig builds the configuration in stages: the YAML file at
// path (optional), then a .env file, then environment variables. The
// result is not validated; callers apply flags and then call Validate.
func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg := &ServerConfig{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal yaml config: %w", err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment through lookup.
func (cfg *ServerConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	if port, ok := lookup("PORT"); ok && port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return fmt.Errorf("PORT must be numeric, got %q", port)
		}
		cfg.Addr = ":" + port
	}
	str("HERMES_ENV", &cfg.Environment)
	str("HERMES_URL", &cfg.FrontendURL)
	str("HERMES_PUBLIC_URL", &cfg.PublicURL)
	str("SESSION_SECRET", &cfg.SessionSecret)
	str("AUTH_GOOGLE_CLIENT", &cfg.Auth.Google.ClientID)
	str("AUTH_GOOGLE_SECRET", &cfg.Auth.Google.ClientSecret)
	str("AUTH_GITHUB_CLIENT", &cfg.Auth.GitHub.ClientID)
	str("AUTH_GITHUB_SECRET", &cfg.Auth.GitHub.ClientSecret)
	str("AUTH_DISCORD_CLIENT", &cfg.Auth.Discord.ClientID)
	str("AUTH_DISCORD_SECRET", &cfg.Auth.Discord.ClientSecret)
	str("HERMES_DB_DRIVER", &cfg.Database.Driver)
	str("HERMES_DB_DSN", &cfg.Database.DSN)
	str("HERMES_PRESENCE_POLICY", &cfg.PresencePolicy)
	str("HERMES_SESSION_STORE", &cfg.SessionStore)
	str("HERMES_REDIS_ADDR", &cfg.Redis.Addr)
	str("HERMES_LOG_LEVEL", &cfg.Log.Level)
	str("HERMES_LOG_FORMAT", &cfg.Log.Format)

	if ttl, ok := lookup("HERMES_SESSION_TTL"); ok && ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return fmt.Errorf("HERMES_SESSION_TTL: %w", err)
		}
		cfg.SessionTTL = d
	}
	if origins, ok := lookup("HERMES_ALLOWED_ORIGINS"); ok && origins != "" {
		var clean []string
		for _, o := range strings.Split(origins, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				clean = append(clean, trimmed)
			}
		}
		cfg.AllowedOrigins = clean
	}
	return nil
}

// Validate fills defaults and rejects impossible combinations.
func (cfg *ServerConfig) Validate() error {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}

	switch strings.ToLower(cfg.Environment) {
	case "", "dev", EnvDevelopment:
		cfg.Environment = EnvDevelopment
	case "prod", EnvProduction:
		cfg.Environment = EnvProduction
	default:
		return fmt.Errorf("unknown environment %q", cfg.Environment)
	}

	switch strings.ToLower(cfg.Database.Driver) {
	case "", "sqlite", "sqlite3":
		cfg.Database.Driver = "sqlite"
		if cfg.Database.DSN == "" {
			cfg.Database.DSN = DefaultDBPath()
		}
	case "postgres", "postgresql", "pg":
		cfg.Database.Driver = "postgres"
		if cfg.Database.DSN == "" {
			return errors.New("postgres requires a database dsn")
		}
	default:
		return fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	policy, err := realtime.ParsePolicy(cfg.PresencePolicy)
	if err != nil {
		return err
	}
	cfg.PresencePolicy = string(policy)

	switch strings.ToLower(cfg.SessionStore) {
	case "", SessionStoreSQL:
		cfg.SessionStore = SessionStoreSQL
	case SessionStoreRedis:
		cfg.SessionStore = SessionStoreRedis
		if cfg.Redis.Addr == "" {
			return errors.New("redis session store requires a redis address")
		}
	default:
		return fmt.Errorf("unknown session store %q", cfg.SessionStore)
	}
	if cfg.SessionTTL < 0 {
		return errors.New("session ttl must be positive")
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = auth.DefaultSessionTTL
	}

	if cfg.SessionSecret == "" {
		if cfg.Environment != EnvDevelopment {
			return errors.New("SESSION_SECRET is required outside development")
		}
		cfg.SessionSecret = uuid.NewString()
		cfg.generatedSecret = true
	}

	if cfg.PublicURL == "" {
		host := cfg.Addr
		if strings.HasPrefix(host, ":") {
			host = "localhost" + host
		}
		cfg.PublicURL = "http://" + host
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	if strings.HasPrefix(cfg.PublicURL, "https://") {
		cfg.SecureCookies = true
	}
	if len(cfg.AllowedOrigins) == 0 && cfg.FrontendURL != "" {
		cfg.AllowedOrigins = []string{strings.TrimRight(cfg.FrontendURL, "/")}
	}

	if cfg.Log.Format == "" {
		cfg.Log.Format = LogFormatConsole
		if cfg.Environment == EnvProduction {
			cfg.Log.Format = LogFormatJSON
		}
	}
	if _, err := parseLogLevel(cfg.Log.Level); err != nil {
		return err
	}
	switch cfg.Log.Format {
	case LogFormatConsole, LogFormatJSON:
	default:
		return fmt.Errorf("unknown log format %q", cfg.Log.Format)
	}
	return nil
}

// DefaultDBPath returns a per-user data path for the bundled SQLite file.
func DefaultDBPath() string {
	if env := os.Getenv("HERMES_DATA_DIR"); env != "" {
		return filepath.Join(env, "hermes.db")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "hermes", "hermes.db")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Hermes", "hermes.db")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "Hermes", "hermes.db")
		}
		return filepath.Join(home, ".local", "share", "hermes", "hermes.db")
	}
	return filepath.Join(".", ".hermes", "hermes.db")
}

// DefaultSessionPath is where the watch client keeps its token.
func DefaultSessionPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "hermes", "session.json")
	}
	return filepath.Join(".", ".hermes", "session.json")
}
