package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultRoom is the shared room every candidate and admin joins
const DefaultRoom = "web_exam_academy_2025_v1"

// Config holds all application configuration
type Config struct {
	NodeEnv  string `env:"NODE_ENV" envDefault:"development"`
	Database DatabaseConfig
	Relay    RelayConfig
	Client   ClientConfig
}

// DatabaseConfig holds relay journal database configuration
type DatabaseConfig struct {
	Driver     string `env:"DB_DRIVER" envDefault:"sqlite"` // sqlite | postgres
	Host       string `env:"PG_HOST" envDefault:"localhost"`
	Port       string `env:"PG_PORT" envDefault:"5432"`
	Username   string `env:"PG_USERNAME" envDefault:"postgres"`
	Password   string `env:"PG_PASSWORD"`
	Database   string `env:"PG_DATABASE" envDefault:"examroom"`
	Alter      bool   `env:"DB_ALTER" envDefault:"false"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"./data/examroom.db"`
}

// RelayConfig holds relay server configuration
type RelayConfig struct {
	Port       string        `env:"PORT" envDefault:"3210"`
	PathPrefix string        `env:"PATH_PREFIX"`
	InstanceID string        `env:"RELAY_INSTANCE_ID"`
	Secret     string        `env:"RELAY_SECRET"` // empty = open relay
	TokenTTL   time.Duration `env:"RELAY_TOKEN_TTL" envDefault:"24h"`
	RedisURL   string        `env:"REDIS_URL"` // empty = single relay
	Cluster    string        `env:"RELAY_CLUSTER" envDefault:"examroom"`
}

// ClientConfig holds exam client configuration
type ClientConfig struct {
	Peers           []string `env:"EXAM_PEERS" envSeparator:"," envDefault:"ws://localhost:3210/ws"`
	Room            string   `env:"EXAM_ROOM" envDefault:"web_exam_academy_2025_v1"`
	AdminPassphrase string   `env:"EXAM_ADMIN_PASSPHRASE" envDefault:"admin2025"`
	RelayToken      string   `env:"EXAM_RELAY_TOKEN"`
	Locale          string   `env:"EXAM_LOCALE" envDefault:"ka-GE"`
	PassThreshold   float64  `env:"EXAM_PASS_THRESHOLD" envDefault:"80"`
	QuestionSeconds int      `env:"EXAM_QUESTION_SECONDS" envDefault:"60"`
	CertDir         string   `env:"EXAM_CERT_DIR" envDefault:"."`
	CertFont        string   `env:"EXAM_CERT_FONT"` // optional UTF-8 TTF for non-Latin names
	LogFile         string   `env:"EXAM_LOG_FILE"`
}

// Load loads configuration from .env and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Client.Peers = trimAll(cfg.Client.Peers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component can work with
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.Database.Driver))
	}
	if len(c.Client.Peers) == 0 {
		errs = append(errs, errors.New("EXAM_PEERS needs at least one relay address"))
	}
	if strings.TrimSpace(c.Client.Room) == "" || strings.Contains(c.Client.Room, "/") {
		errs = append(errs, fmt.Errorf("EXAM_ROOM %q is not a valid room id", c.Client.Room))
	}
	if c.Client.PassThreshold <= 0 || c.Client.PassThreshold > 100 {
		errs = append(errs, fmt.Errorf("EXAM_PASS_THRESHOLD must be in (0,100], got %v", c.Client.PassThreshold))
	}
	if c.Client.QuestionSeconds <= 0 {
		errs = append(errs, fmt.Errorf("EXAM_QUESTION_SECONDS must be positive, got %d", c.Client.QuestionSeconds))
	}
	if c.Relay.Secret != "" && c.Relay.TokenTTL <= 0 {
		errs = append(errs, errors.New("RELAY_TOKEN_TTL must be positive when RELAY_SECRET is set"))
	}

	return errors.Join(errs...)
}

// IsProduction reports whether NODE_ENV is production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.NodeEnv, "production")
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
