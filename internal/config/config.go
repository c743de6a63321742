package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/onboardly/onboardly/internal/models"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	OAuth    OAuthConfig
	Crm      CrmConfig
	Vendor   VendorConfig
	Email    EmailConfig
	App      AppConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Address string
	BaseURL string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string // "postgres" or "sqlite"
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// OAuthConfig holds the calendar provider OAuth configuration
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
	Scopes       []string
}

// CrmConfig holds the CRM system-of-record configuration
type CrmConfig struct {
	BaseURL      string
	APIToken     string
	PollInterval time.Duration
}

// VendorConfig holds the external installation vendor configuration
type VendorConfig struct {
	BaseURL string
	APIKey  string
}

// EmailConfig holds notification email configuration
type EmailConfig struct {
	FromAddress  string
	FromName     string
	ManagerEmail string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Environment        string
	Timezone           string // civil timezone all slot math is anchored in
	Slots              []models.Slot
	IncludeWeekends    bool
	TokenRefreshBuffer time.Duration
	ProviderTimeout    time.Duration
	FetchWorkers       int
	OperatorKeyHash    string // bcrypt hash of the operator override key
}

// ConnectionString returns the database connection string
func (d DatabaseConfig) ConnectionString() string {
	if d.Driver == "sqlite" {
		return d.Name // For SQLite, Name is the file path
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// Location returns the business timezone. Slot wall-clock times are
// interpreted here regardless of resource or caller timezone.
func (a AppConfig) Location() (*time.Location, error) {
	return time.LoadLocation(a.Timezone)
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
			BaseURL: getEnv("BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "sqlite"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "onboardly"),
			Password: getEnv("DB_PASSWORD", "onboardly"),
			Name:     getEnv("DB_NAME", "onboardly.db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OAuth: OAuthConfig{
			ClientID:     getEnv("PROVIDER_CLIENT_ID", ""),
			ClientSecret: getEnv("PROVIDER_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("PROVIDER_REDIRECT_URL", ""),
			AuthURL:      getEnv("PROVIDER_AUTH_URL", "https://calendar.provider.example/oauth/authorize"),
			TokenURL:     getEnv("PROVIDER_TOKEN_URL", "https://calendar.provider.example/oauth/token"),
			APIBaseURL:   getEnv("PROVIDER_API_BASE_URL", "https://calendar.provider.example/api/v1"),
			Scopes:       strings.Fields(getEnv("PROVIDER_SCOPES", "calendar:read calendar:write")),
		},
		Crm: CrmConfig{
			BaseURL:      getEnv("CRM_BASE_URL", ""),
			APIToken:     getEnv("CRM_API_TOKEN", ""),
			PollInterval: time.Duration(getEnvInt("CRM_POLL_INTERVAL_MINUTES", 15)) * time.Minute,
		},
		Vendor: VendorConfig{
			BaseURL: getEnv("VENDOR_BASE_URL", ""),
			APIKey:  getEnv("VENDOR_API_KEY", ""),
		},
		Email: EmailConfig{
			FromAddress:  getEnv("EMAIL_FROM_ADDRESS", "noreply@localhost"),
			FromName:     getEnv("EMAIL_FROM_NAME", "Onboardly"),
			ManagerEmail: getEnv("EMAIL_MANAGER_ADDRESS", ""),
			SMTPHost:     getEnv("SMTP_HOST", "localhost"),
			SMTPPort:     getEnvInt("SMTP_PORT", 587),
			SMTPUser:     getEnv("SMTP_USER", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		},
		App: AppConfig{
			Environment:        getEnv("APP_ENV", "development"),
			Timezone:           getEnv("BUSINESS_TIMEZONE", "Asia/Singapore"),
			IncludeWeekends:    getEnvBool("INCLUDE_WEEKENDS", false),
			TokenRefreshBuffer: time.Duration(getEnvInt("TOKEN_REFRESH_BUFFER_SECONDS", 60)) * time.Second,
			ProviderTimeout:    time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 30)) * time.Second,
			FetchWorkers:       getEnvInt("FETCH_WORKERS", 4),
			OperatorKeyHash:    getEnv("OPERATOR_KEY_HASH", ""),
		},
	}

	slots, err := parseSlotGrid(getEnv("SLOT_GRID", "09:00-11:00,11:00-13:00,14:00-16:00,16:00-18:00"))
	if err != nil {
		return nil, err
	}
	cfg.App.Slots = slots

	if _, err := cfg.App.Location(); err != nil {
		return nil, fmt.Errorf("invalid BUSINESS_TIMEZONE %q: %w", cfg.App.Timezone, err)
	}

	if cfg.App.Environment == "production" {
		if cfg.OAuth.ClientID == "" || cfg.OAuth.ClientSecret == "" {
			return nil, fmt.Errorf("PROVIDER_CLIENT_ID and PROVIDER_CLIENT_SECRET are required in production")
		}
		if cfg.Crm.BaseURL == "" {
			return nil, fmt.Errorf("CRM_BASE_URL is required in production")
		}
	}

	return cfg, nil
}

// parseSlotGrid parses "09:00-11:00,11:00-13:00" into a slot grid. Labels are
// the window itself, which is how slots are addressed in booking requests.
func parseSlotGrid(raw string) ([]models.Slot, error) {
	var slots []models.Slot
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		bounds := strings.Split(part, "-")
		if len(bounds) != 2 {
			return nil, fmt.Errorf("invalid slot %q in SLOT_GRID", part)
		}
		start, end := strings.TrimSpace(bounds[0]), strings.TrimSpace(bounds[1])
		for _, hhmm := range []string{start, end} {
			if _, err := time.Parse("15:04", hhmm); err != nil {
				return nil, fmt.Errorf("invalid slot time %q in SLOT_GRID", hhmm)
			}
		}
		if start >= end {
			return nil, fmt.Errorf("slot %q must start before it ends", part)
		}
		slots = append(slots, models.Slot{Label: part, Start: start, End: end})
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("SLOT_GRID must define at least one slot")
	}
	return slots, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
