package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
)

// MailConfig holds the transactional mail provider settings. An empty
// APIKey disables outbound mail (senders report it as an error that
// callers treat as best-effort).
type MailConfig struct {
	APIURL    string
	APIKey    string
	FromEmail string
	FromName  string
}

// Config holds the application configuration
type Config struct {
	DatabaseURL string
	Port        string
	JWTSecret   string
	BackendURL  string
	Mail        MailConfig
	DevMode     bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:       "8080", // default port
		BackendURL: "http://localhost:8080",
	}

	// Load DATABASE_URL and log connection details (password masked)
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	cfg.DatabaseURL = databaseURL

	if u, err := url.Parse(databaseURL); err == nil {
		host := u.Hostname()
		if host == "" {
			host = "localhost"
		}
		port := u.Port()
		if port == "" {
			port = "5432"
		}
		dbName := strings.TrimPrefix(u.Path, "/")
		if idx := strings.Index(dbName, "?"); idx >= 0 {
			dbName = dbName[:idx]
		}
		user := u.User.Username()
		if user == "" {
			user = "(none)"
		}
		log.Printf("DB connect: host=%s port=%s db=%s user=%s", host, port, dbName, user)
	}

	// Load PORT (optional, defaults to 8080)
	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	// Load JWT_SECRET (required; session tokens cannot be issued without it)
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	cfg.JWTSecret = jwtSecret

	// BACKEND_URL is the external base URL used to build device-approval links
	if backendURL := os.Getenv("BACKEND_URL"); backendURL != "" {
		cfg.BackendURL = strings.TrimRight(backendURL, "/")
	}

	cfg.Mail = MailConfig{
		APIURL:    envOr("MAIL_API_URL", "https://api.mailersend.com/v1/email"),
		APIKey:    os.Getenv("MAIL_API_KEY"),
		FromEmail: envOr("MAIL_FROM", "noreply@clupso.app"),
		FromName:  envOr("MAIL_FROM_NAME", "CLUPSO Vault"),
	}

	// Load DEV_MODE (optional, defaults to false)
	devMode := os.Getenv("DEV_MODE")
	cfg.DevMode = devMode == "true"

	return cfg, nil
}

// envOr returns the value of the environment variable or the fallback.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
