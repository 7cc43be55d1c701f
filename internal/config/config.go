package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Database       DatabaseConfig       `yaml:"database"`
	Server         ServerConfig         `yaml:"server"`
	Auction        AuctionConfig        `yaml:"auction"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
	Broker         BrokerConfig         `yaml:"broker"`
	Discord        DiscordConfig        `yaml:"discord"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "postgres", "sqlite" or "memory"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	// Path is the database file used by the sqlite driver.
	Path string `yaml:"path"`
}

// DSN returns the connection string for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", d.Path)
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

// AuctionConfig holds the rules every room is played under.
type AuctionConfig struct {
	DefaultTimerSeconds int           `yaml:"default_timer_seconds"`
	TickInterval        time.Duration `yaml:"tick_interval"`
	// RescanInterval is how often the timer driver re-reads the live rooms,
	// picking up rooms started on other replicas.
	RescanInterval time.Duration `yaml:"rescan_interval"`
	// DriveTimers runs a scheduler per live room so timers resolve without
	// anyone polling. When false, rooms only advance on get-state reads.
	DriveTimers     bool   `yaml:"drive_timers"`
	StartingBudget  string `yaml:"starting_budget"` // Crores
	HomeCountry     string `yaml:"home_country"`
	MaxSquad        int    `yaml:"max_squad"`
	MaxOverseas     int    `yaml:"max_overseas"`
	QualifySquad    int    `yaml:"qualify_squad"`
	LineupSize      int    `yaml:"lineup_size"`
	MaxParticipants int    `yaml:"max_participants"`
	RoomCodeLength  int    `yaml:"room_code_length"`
}

// Budget returns StartingBudget as a decimal. validate guarantees it parses.
func (a AuctionConfig) Budget() decimal.Decimal {
	return decimal.RequireFromString(a.StartingBudget)
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	// OTLPEndpoint is the collector address. When empty nothing is exported
	// and logs go to stderr as JSON.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	// SampleRatio is the fraction of root traces kept, in [0, 1].
	SampleRatio    float64       `yaml:"sample_ratio"`
	MetricInterval time.Duration `yaml:"metric_interval"`
}

// LeaderElectionConfig holds Kubernetes leader election settings.
type LeaderElectionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
}

// BrokerConfig holds the AMQP settings used to fan out auction events.
// An empty URL disables publishing.
type BrokerConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// DiscordConfig holds the optional Discord bot settings. An empty token
// disables the bot.
type DiscordConfig struct {
	Token   string `yaml:"token"`
	GuildID string `yaml:"guild_id"`
}

// Defaults returns the configuration used for any field the file omits.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:  "postgres",
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
			Path:    "auction.db",
		},
		Auction: AuctionConfig{
			DefaultTimerSeconds: 15,
			TickInterval:        250 * time.Millisecond,
			RescanInterval:      5 * time.Second,
			DriveTimers:         true,
			StartingBudget:      "120.00",
			HomeCountry:         "India",
			MaxSquad:            25,
			MaxOverseas:         8,
			QualifySquad:        18,
			LineupSize:          11,
			MaxParticipants:     10,
			RoomCodeLength:      5,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "auctiond",
			ServiceVersion: "0.1.0",
			SampleRatio:    1,
			MetricInterval: 30 * time.Second,
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "auctiond-leader",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
		Broker: BrokerConfig{
			Exchange: "auction_events",
		},
	}
}

// Load reads a YAML configuration file from the given path. A .env file in the
// working directory is loaded first if present, and ${VAR} references in the
// file are expanded from the environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite", "memory":
		// valid
	default:
		return fmt.Errorf("unsupported database driver %q: must be \"postgres\", \"sqlite\" or \"memory\"", c.Database.Driver)
	}
	if c.Database.Driver == "sqlite" && strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("database.path is required for the sqlite driver")
	}

	a := c.Auction
	if a.DefaultTimerSeconds <= 0 {
		return fmt.Errorf("auction.default_timer_seconds must be positive, got %d", a.DefaultTimerSeconds)
	}
	if a.TickInterval <= 0 {
		return fmt.Errorf("auction.tick_interval must be positive, got %s", a.TickInterval)
	}
	if a.RescanInterval <= 0 {
		return fmt.Errorf("auction.rescan_interval must be positive, got %s", a.RescanInterval)
	}
	budget, err := decimal.NewFromString(a.StartingBudget)
	if err != nil {
		return fmt.Errorf("auction.starting_budget %q: %w", a.StartingBudget, err)
	}
	if !budget.IsPositive() {
		return fmt.Errorf("auction.starting_budget must be positive, got %s", budget)
	}
	if a.MaxSquad <= 0 || a.MaxOverseas < 0 || a.QualifySquad <= 0 || a.LineupSize <= 0 {
		return fmt.Errorf("auction squad limits must be positive")
	}
	if a.QualifySquad > a.MaxSquad {
		return fmt.Errorf("auction.qualify_squad (%d) exceeds auction.max_squad (%d)", a.QualifySquad, a.MaxSquad)
	}
	if a.MaxParticipants < 2 {
		return fmt.Errorf("auction.max_participants must be at least 2, got %d", a.MaxParticipants)
	}
	if a.RoomCodeLength < 4 {
		return fmt.Errorf("auction.room_code_length must be at least 4, got %d", a.RoomCodeLength)
	}
	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1], got %g", r)
	}
	return nil
}
