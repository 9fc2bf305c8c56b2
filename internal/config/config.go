package config

import (
	"fmt"
	"os"
	"time"

	"github.com/svarog-dev/warden/internal/domain"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server      ServerConfig          `yaml:"server"`
	Database    DatabaseConfig        `yaml:"database"`
	Auth        AuthConfig            `yaml:"auth"`
	Monitor     MonitorConfig         `yaml:"monitor"`
	Relay       RelayConfig           `yaml:"relay"`
	Status      StatusAPIConfig       `yaml:"status_api"`
	GameServers []domain.ServerConfig `yaml:"game_servers"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	HTTPPort   int    `yaml:"http_port"`
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication settings. APIToken is the shared secret
// checked by the /ban/player and /kick/player automation endpoints.
type AuthConfig struct {
	JWTSecret         string        `yaml:"jwt_secret"`
	TokenDuration     time.Duration `yaml:"token_duration"`
	APIToken          string        `yaml:"api_token"`
	AdminUser         string        `yaml:"admin_user"`
	AdminPasswordHash string        `yaml:"admin_password_hash"`
}

// MonitorConfig holds polling cadence settings. BotNamePrefixes feeds the
// bot predicate: roster names starting with any prefix are tagged as bots.
type MonitorConfig struct {
	TickInterval      time.Duration `yaml:"tick_interval"`
	RosterDelay       time.Duration `yaml:"roster_delay"`
	SpectatorInterval time.Duration `yaml:"spectator_interval"`
	BotNamePrefixes   []string      `yaml:"bot_name_prefixes"`
}

// RelayConfig holds the tuning knobs of the command relay. The retry
// thresholds were tuned empirically against the live bots; they are
// configuration, not invariants.
type RelayConfig struct {
	ForceCancelAfter   time.Duration `yaml:"force_cancel_after"`
	NotFoundRetries    int           `yaml:"not_found_retries"`
	StartServerRetries int           `yaml:"start_server_retries"`
	MaxAttempts        int           `yaml:"max_attempts"`
	SendInterval       time.Duration `yaml:"send_interval"`
}

// StatusAPIConfig holds the third-party status API endpoint
type StatusAPIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Set defaults
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = "127.0.0.1"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/warden/warden.db"
	}
	if cfg.Auth.TokenDuration == 0 {
		cfg.Auth.TokenDuration = 24 * time.Hour
	}
	if cfg.Monitor.TickInterval == 0 {
		cfg.Monitor.TickInterval = 10 * time.Second
	}
	if cfg.Monitor.RosterDelay == 0 {
		cfg.Monitor.RosterDelay = 2 * time.Second
	}
	if cfg.Monitor.SpectatorInterval == 0 {
		cfg.Monitor.SpectatorInterval = 30 * time.Second
	}
	if cfg.Relay.ForceCancelAfter == 0 {
		cfg.Relay.ForceCancelAfter = 2 * time.Minute
	}
	if cfg.Relay.NotFoundRetries == 0 {
		cfg.Relay.NotFoundRetries = 2
	}
	if cfg.Relay.StartServerRetries == 0 {
		cfg.Relay.StartServerRetries = 5
	}
	if cfg.Relay.MaxAttempts == 0 {
		cfg.Relay.MaxAttempts = 5
	}
	if cfg.Relay.SendInterval == 0 {
		cfg.Relay.SendInterval = 2 * time.Second
	}
	if cfg.Status.Timeout == 0 {
		cfg.Status.Timeout = 10 * time.Second
	}

	for i := range cfg.GameServers {
		if cfg.GameServers[i].Tag == "" {
			return nil, fmt.Errorf("game server %d: tag is required", i)
		}
		if cfg.GameServers[i].ExternalID == "" {
			return nil, fmt.Errorf("game server %q: external_id is required", cfg.GameServers[i].Tag)
		}
	}

	return &cfg, nil
}
