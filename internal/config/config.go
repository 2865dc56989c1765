// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath       = "config.toml"
	DefaultHTTPAddr         = ":8080"
	DefaultPGHost           = "127.0.0.1"
	DefaultPGPort           = 5432
	DefaultPGUser           = "postgres"
	DefaultPGDatabase       = "parlor"
	DefaultPGSSLMode        = "disable"
	DefaultSuggestionLimit  = 5
	DefaultSearchFields     = "username,name"
	DefaultResidentUsername = "concierge"
	DefaultQueueCloseAfter  = "30m"
	DefaultCloseMessage     = "Conversation closed automatically because it stayed in the queue too long."
	DefaultErasureMode      = "keep"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Admin     AdminConfig     `toml:"admin"`
	Auth      AuthConfig      `toml:"auth"`
	Postgres  PostgresConfig  `toml:"postgres"`
	SMTP      SMTPConfig      `toml:"smtp"`
	Spotlight SpotlightConfig `toml:"spotlight"`
	Queue     QueueConfig     `toml:"queue"`
	Accounts  AccountsConfig  `toml:"accounts"`
	VoIP      VoIPConfig      `toml:"voip"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP server listen address.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// AdminConfig holds the initial admin account created on first boot.
type AdminConfig struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
	Email    string `toml:"email"`
}

// AuthConfig holds the JWT secret for request authentication.
type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// SMTPConfig holds the outbound notification mail account.
type SMTPConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
}

// SpotlightConfig tunes the user/room search suggestions.
type SpotlightConfig struct {
	SuggestionLimit  int    `toml:"suggestion_limit"`
	SearchFields     string `toml:"search_fields"`
	UseRealName      bool   `toml:"use_real_name"`
	AnonymousRead    bool   `toml:"anonymous_read"`
	StoreLastMessage bool   `toml:"store_last_message"`
}

// QueueConfig tunes the livechat queue inactivity monitor.
type QueueConfig struct {
	Enabled      bool   `toml:"enabled"`
	CloseAfter   string `toml:"close_after"`
	CloseMessage string `toml:"close_message"`
}

// AccountsConfig holds account lifecycle behavior.
type AccountsConfig struct {
	ErasureMode      string `toml:"erasure_mode"`
	ResidentUsername string `toml:"resident_username"`
	ThreadsEnabled   bool   `toml:"threads_enabled"`
}

// VoIPConfig holds the connector address and the registration token secret.
type VoIPConfig struct {
	ConnectorURL string `toml:"connector_url"`
	JWTSecret    string `toml:"jwt_secret"`
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Admin: AdminConfig{
			Username: "admin",
			Password: "change-your-password-here",
			Email:    "you@example.com",
		},
		Auth: AuthConfig{
			JWTExpiresIn: "24h",
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Spotlight: SpotlightConfig{
			SuggestionLimit:  DefaultSuggestionLimit,
			SearchFields:     DefaultSearchFields,
			StoreLastMessage: true,
		},
		Queue: QueueConfig{
			CloseAfter:   DefaultQueueCloseAfter,
			CloseMessage: DefaultCloseMessage,
		},
		Accounts: AccountsConfig{
			ErasureMode:      DefaultErasureMode,
			ResidentUsername: DefaultResidentUsername,
			ThreadsEnabled:   true,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
