package config

import (
	"os"
	"strconv"
	"time"

	"riderx/services"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Environment string
	Port        string
	DatabaseURL string
	RedisURL    string
	RabbitMQURL string
	JWTSecret   string
	JWTTTL      time.Duration

	// Twilio Config
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string

	EmailProvider string

	// SMTP Settings
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// Notification dispatch
	NotifyMaxAttempts    int
	NotifyBaseDelay      time.Duration
	NotifyMaxConcurrency int
	NotifyTimeout        time.Duration

	// Ride alerts
	OverSpeedLimitKmh float64
	OverSpeedCooldown time.Duration

	// App Settings
	RateLimitRequest int
	RateLimitWindow  int // minutes
}

func Load() *Config {
	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),
		RabbitMQURL: getEnv("RABBITMQ_URL", ""),
		JWTSecret:   getEnv("JWT_SECRET", "your-super-secret-jwt-key"),
		JWTTTL:      getEnvAsDuration("JWT_TTL", 24*time.Hour),

		// Twilio
		TwilioAccountSID:  getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioPhoneNumber: getEnv("TWILIO_PHONE_NUMBER", ""),

		// Email settings
		EmailProvider: getEnv("EMAIL_PROVIDER", "smtp"),
		SMTPHost:      getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:      getEnv("SMTP_PORT", "587"),
		SMTPUsername:  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:      getEnv("SMTP_FROM", "alerts@riderx.app"),

		NotifyMaxAttempts:    getEnvAsInt("NOTIFY_MAX_ATTEMPTS", 3),
		NotifyBaseDelay:      getEnvAsDuration("NOTIFY_BASE_DELAY", time.Second),
		NotifyMaxConcurrency: getEnvAsInt("NOTIFY_MAX_CONCURRENCY", 16),
		NotifyTimeout:        getEnvAsDuration("NOTIFY_TIMEOUT", 2*time.Minute),

		OverSpeedLimitKmh: getEnvAsFloat("OVERSPEED_LIMIT_KMH", services.DefaultOverSpeedLimitKmh),
		OverSpeedCooldown: getEnvAsDuration("OVERSPEED_COOLDOWN", services.DefaultOverSpeedCooldown),

		RateLimitRequest: getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:  getEnvAsInt("RATE_LIMIT_WINDOW_MINUTES", 1),
	}
}

// DispatcherConfig builds the notification dispatcher settings. Invalid
// values fall back to the defaults.
func (c *Config) DispatcherConfig() services.DispatcherConfig {
	cfg := services.DefaultDispatcherConfig()
	if c.NotifyMaxAttempts > 0 {
		cfg.Retry.MaxAttempts = c.NotifyMaxAttempts
	}
	if c.NotifyBaseDelay > 0 {
		cfg.Retry.BaseDelay = c.NotifyBaseDelay
	}
	if c.NotifyMaxConcurrency > 0 {
		cfg.MaxConcurrency = c.NotifyMaxConcurrency
	}
	return cfg
}

func (c *Config) AlertPolicy() services.AlertPolicy {
	policy := services.DefaultAlertPolicy()
	if c.OverSpeedLimitKmh > 0 {
		policy.OverSpeedLimitKmh = c.OverSpeedLimitKmh
	}
	if c.OverSpeedCooldown > 0 {
		policy.OverSpeedCooldown = c.OverSpeedCooldown
	}
	return policy
}

func InitRedis(cfg *Config) *redis.Client {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		// Fallback to default config
		opt = &redis.Options{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
		}
	}

	client := redis.NewClient(opt)
	return client
}

// InitEmailSender picks the email channel based on configuration
func (c *Config) InitEmailSender() services.EmailSender {
	switch c.EmailProvider {
	case "smtp":
		if c.SMTPUsername == "" || c.SMTPPassword == "" {
			logrus.Warn("SMTP credentials not configured, using mock email sender")
			return services.NewMockEmailSender()
		}
		return services.NewSMTPEmailSender(
			c.SMTPHost,
			c.SMTPPort,
			c.SMTPUsername,
			c.SMTPPassword,
			c.SMTPFrom,
		)
	case "mock":
		return services.NewMockEmailSender()
	default:
		logrus.Warn("Unknown email provider, using mock email sender")
		return services.NewMockEmailSender()
	}
}

// InitSMSSender returns the Twilio sender when credentials are present.
func (c *Config) InitSMSSender() services.SMSSender {
	if c.TwilioAccountSID == "" || c.TwilioAuthToken == "" || c.TwilioPhoneNumber == "" {
		logrus.Warn("Twilio credentials not configured, using mock SMS sender")
		return services.NewMockSMSSender()
	}
	return services.NewTwilioSMSSender(c.TwilioAccountSID, c.TwilioAuthToken, c.TwilioPhoneNumber)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
