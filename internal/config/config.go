package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Logger   Logger   `mapstructure:"logger"`
	Database Database `mapstructure:"database"`
	Google   Google   `mapstructure:"google"`
	Session  Session  `mapstructure:"session"`
	Journal  Journal  `mapstructure:"journal"`
	Settings Settings `mapstructure:"settings"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File, when set, receives a copy of every log line.
	File string `mapstructure:"file"`
}

// Database holds the configuration for the local state database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Google holds the OAuth client and the spreadsheet/drive endpoints.
type Google struct {
	ClientID       string   `mapstructure:"client_id"`
	ClientSecret   string   `mapstructure:"client_secret"`
	RedirectURL    string   `mapstructure:"redirect_url"`
	Scopes         []string `mapstructure:"scopes"`
	DiscoveryURL   string   `mapstructure:"discovery_url"`
	AuthURL        string   `mapstructure:"auth_url"`
	TokenURL       string   `mapstructure:"token_url"`
	SheetsBaseURL  string   `mapstructure:"sheets_base_url"`
	DriveBaseURL   string   `mapstructure:"drive_base_url"`
	UploadBaseURL  string   `mapstructure:"upload_base_url"`
	RateLimit      float64  `mapstructure:"rate_limit"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
}

// Session holds the credential lifecycle configuration.
type Session struct {
	// TokenLifetime is the validity window the credential provider enforces.
	TokenLifetime time.Duration `mapstructure:"token_lifetime"`
}

// Journal names the backing spreadsheet and folders in the remote store.
type Journal struct {
	SpreadsheetTitle  string `mapstructure:"spreadsheet_title"`
	RootFolder        string `mapstructure:"root_folder"`
	ScreenshotsFolder string `mapstructure:"screenshots_folder"`
}

// Settings holds the defaults used before remote settings are loaded.
type Settings struct {
	Currency        string  `mapstructure:"currency"`
	StartingBalance float64 `mapstructure:"starting_balance"`
	PrivacyMode     bool    `mapstructure:"privacy_mode"`
}

// LoadConfig reads configuration from file or environment variables.
// A .env file in path is loaded into the environment first, when present.
func LoadConfig(path string) (config Config, err error) {
	if err = godotenv.Load(filepath.Join(path, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("server.port", 8080)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.file", "")
	v.SetDefault("database.dsn", "tradezen.db")
	// Unmarshal only sees env overrides for keys viper already knows.
	v.SetDefault("google.client_id", "")
	v.SetDefault("google.client_secret", "")
	v.SetDefault("google.redirect_url", "http://localhost:8080/oauth/callback")
	v.SetDefault("google.scopes", []string{
		"https://www.googleapis.com/auth/spreadsheets",
		"https://www.googleapis.com/auth/drive.file",
	})
	v.SetDefault("google.discovery_url", "https://accounts.google.com/.well-known/openid-configuration")
	v.SetDefault("google.auth_url", "https://accounts.google.com/o/oauth2/v2/auth")
	v.SetDefault("google.token_url", "https://oauth2.googleapis.com/token")
	v.SetDefault("google.sheets_base_url", "https://sheets.googleapis.com/v4")
	v.SetDefault("google.drive_base_url", "https://www.googleapis.com/drive/v3")
	v.SetDefault("google.upload_base_url", "https://www.googleapis.com/upload/drive/v3")
	v.SetDefault("google.rate_limit", 10) // requests per second
	v.SetDefault("google.rate_limit_burst", 5)
	v.SetDefault("session.token_lifetime", time.Hour)
	v.SetDefault("journal.spreadsheet_title", "TradeZen Journal")
	v.SetDefault("journal.root_folder", "TradeZen")
	v.SetDefault("journal.screenshots_folder", "Screenshots")
	v.SetDefault("settings.currency", "$")
	v.SetDefault("settings.starting_balance", 0)
	v.SetDefault("settings.privacy_mode", false)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}
