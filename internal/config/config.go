package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DBFile      string
	APIAddr     string
	BaseURL     string
	UploadsPath string
	JWTSecret   string
	TokenExpiry time.Duration

	// Outbound email (notifications). Disabled when SMTPHost is empty.
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	// Outbound SMS gateway (notifications). Disabled when SMSEndpoint is empty.
	SMSEndpoint string
	SMSAccount  string
	SMSToken    string
	SMSFrom     string

	// Web push. Disabled when the key pair is empty.
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubscriber string
}

func Load(cliMode bool) (*Config, error) {
	tokenExpiry, err := time.ParseDuration(getEnv("TOKEN_EXPIRY", "1h"))
	if err != nil {
		return nil, err
	}

	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("SMTP_PORT is not a number: %w", err)
	}

	cfg := &Config{
		DBFile:      getEnv("CAMPUS_DB", "campus.db"),
		APIAddr:     getEnv("API_ADDR", ":5000"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:5000"),
		UploadsPath: getEnv("UPLOADS_PATH", "uploads"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		TokenExpiry: tokenExpiry,

		SMTPHost: os.Getenv("SMTP_HOST"),
		SMTPPort: smtpPort,
		SMTPUser: os.Getenv("SMTP_USER"),
		SMTPPass: os.Getenv("SMTP_PASS"),
		SMTPFrom: getEnv("SMTP_FROM", os.Getenv("SMTP_USER")),

		SMSEndpoint: os.Getenv("SMS_ENDPOINT"),
		SMSAccount:  os.Getenv("SMS_ACCOUNT"),
		SMSToken:    os.Getenv("SMS_TOKEN"),
		SMSFrom:     os.Getenv("SMS_FROM"),

		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubscriber: os.Getenv("VAPID_SUBSCRIBER"),
	}

	if err := cfg.Validate(cliMode); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate(cliMode bool) error {
	if c.JWTSecret == "" && !cliMode {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.TokenExpiry <= 0 {
		return fmt.Errorf("TOKEN_EXPIRY must be greater than 0")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
