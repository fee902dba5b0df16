package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	ProviderLog    = "log"
	ProviderTwilio = "twilio"
	ProviderSNS    = "sns"
	ProviderSMTP   = "smtp"
)

// Config holds application configuration loaded from environment.
type Config struct {
	DB struct {
		Driver string
		DSN    string
	}
	Logging struct {
		Dir   string
		Level string
	}
	API struct {
		Port     string
		BasePath string
	}
	Worker struct {
		QueueSize  int
		MaxWorkers int
	}
	Notification struct {
		Concurrency        int
		AttemptTimeout     time.Duration
		SMSRatePerSecond   float64
		EmailRatePerSecond float64
		SMSProvider        string
		EmailProvider      string
	}
	Twilio struct {
		AccountSID string
		AuthToken  string
		FromNumber string
	}
	AWS struct {
		Region string
	}
	Email struct {
		SMTPServer  string
		SMTPPort    int
		Username    string
		Password    string
		FromName    string
		FromAddress string
	}
	Maps struct {
		APIKey         string
		GeocodeTimeout time.Duration
	}
	Telegram struct {
		BotToken      string
		ChatID        int64
		RatePerSecond int
	}
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	Emergency struct {
		DefaultNumber     string
		JurisdictionAware bool
	}
	App struct {
		Version string
	}
}

// Load reads environment variables, validates them, applies defaults, and returns a Config.
func Load() (Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current process environment only.
func FromEnv() (Config, error) {
	var cfg Config
	var bad []string

	cfg.DB.Driver = strings.ToLower(os.Getenv("DB_DRIVER"))
	cfg.DB.DSN = os.Getenv("DB_DSN")

	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	cfg.Worker.QueueSize = intVar("QUEUE_SIZE", &bad)
	cfg.Worker.MaxWorkers = intVar("MAX_WORKERS", &bad)

	cfg.Notification.Concurrency = intVar("DISPATCH_CONCURRENCY", &bad)
	cfg.Notification.AttemptTimeout = millisVar("ATTEMPT_TIMEOUT_MS", &bad)
	cfg.Notification.SMSRatePerSecond = floatVar("SMS_RATE_PER_SECOND", &bad)
	cfg.Notification.EmailRatePerSecond = floatVar("EMAIL_RATE_PER_SECOND", &bad)
	cfg.Notification.SMSProvider = strings.ToLower(os.Getenv("SMS_PROVIDER"))
	cfg.Notification.EmailProvider = strings.ToLower(os.Getenv("EMAIL_PROVIDER"))

	cfg.Twilio.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	cfg.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.Twilio.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")

	cfg.AWS.Region = os.Getenv("AWS_REGION")

	cfg.Email.SMTPServer = os.Getenv("EMAIL_SMTP_SERVER")
	cfg.Email.SMTPPort = intVar("EMAIL_SMTP_PORT", &bad)
	cfg.Email.Username = os.Getenv("EMAIL_USERNAME")
	cfg.Email.Password = os.Getenv("EMAIL_PASSWORD")
	cfg.Email.FromName = os.Getenv("EMAIL_FROM_NAME")
	cfg.Email.FromAddress = os.Getenv("EMAIL_FROM_ADDRESS")

	cfg.Maps.APIKey = os.Getenv("GOOGLE_MAPS_API_KEY")
	cfg.Maps.GeocodeTimeout = millisVar("GEOCODE_TIMEOUT_MS", &bad)

	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			bad = append(bad, "TELEGRAM_CHAT_ID")
		}
		cfg.Telegram.ChatID = id
	}
	cfg.Telegram.RatePerSecond = intVar("TELEGRAM_RATE_PER_SECOND", &bad)

	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	cfg.Emergency.DefaultNumber = os.Getenv("DEFAULT_EMERGENCY_NUMBER")
	if v := os.Getenv("JURISDICTION_AWARE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			bad = append(bad, "JURISDICTION_AWARE")
		}
		cfg.Emergency.JurisdictionAware = b
	}

	cfg.App.Version = os.Getenv("APP_VERSION")

	if len(bad) > 0 {
		return Config{}, fmt.Errorf("invalid configurations: %v", bad)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.DB.Driver == "" {
		cfg.DB.Driver = DriverPostgres
	}
	if cfg.DB.Driver == DriverSQLite && cfg.DB.DSN == "" {
		cfg.DB.DSN = "emergency.db"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if !strings.HasPrefix(cfg.API.Port, ":") {
		cfg.API.Port = ":" + cfg.API.Port
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v0"
	}
	if cfg.Worker.QueueSize == 0 {
		cfg.Worker.QueueSize = 500
	}
	if cfg.Worker.MaxWorkers == 0 {
		cfg.Worker.MaxWorkers = 10
	}
	if cfg.Notification.Concurrency == 0 {
		cfg.Notification.Concurrency = 8
	}
	if cfg.Notification.AttemptTimeout == 0 {
		cfg.Notification.AttemptTimeout = 5 * time.Second
	}
	if cfg.Notification.SMSRatePerSecond == 0 {
		cfg.Notification.SMSRatePerSecond = 10
	}
	if cfg.Notification.EmailRatePerSecond == 0 {
		cfg.Notification.EmailRatePerSecond = 10
	}
	if cfg.Notification.SMSProvider == "" {
		cfg.Notification.SMSProvider = ProviderLog
	}
	if cfg.Notification.EmailProvider == "" {
		cfg.Notification.EmailProvider = ProviderLog
		if cfg.Email.SMTPServer != "" {
			cfg.Notification.EmailProvider = ProviderSMTP
		}
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = 587
	}
	if cfg.Email.FromName == "" {
		cfg.Email.FromName = "EmergencyGuard Alert System"
	}
	if cfg.Email.FromAddress == "" {
		cfg.Email.FromAddress = cfg.Email.Username
	}
	if cfg.Maps.GeocodeTimeout == 0 {
		cfg.Maps.GeocodeTimeout = 3 * time.Second
	}
	if cfg.Telegram.RatePerSecond == 0 {
		cfg.Telegram.RatePerSecond = 1
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "emergency_alert_requests"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "emergency-service"
	}
	if cfg.Emergency.DefaultNumber == "" {
		cfg.Emergency.DefaultNumber = "911"
	}
	if cfg.App.Version == "" {
		cfg.App.Version = "dev"
	}
}

func (cfg Config) validate() error {
	missing := []string{}
	switch cfg.DB.Driver {
	case DriverPostgres:
		if cfg.DB.DSN == "" {
			missing = append(missing, "DB_DSN")
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", cfg.DB.Driver)
	}

	switch cfg.Notification.SMSProvider {
	case ProviderLog:
	case ProviderTwilio:
		if cfg.Twilio.AccountSID == "" {
			missing = append(missing, "TWILIO_ACCOUNT_SID")
		}
		if cfg.Twilio.AuthToken == "" {
			missing = append(missing, "TWILIO_AUTH_TOKEN")
		}
		if cfg.Twilio.FromNumber == "" {
			missing = append(missing, "TWILIO_FROM_NUMBER")
		}
	case ProviderSNS:
		if cfg.AWS.Region == "" {
			missing = append(missing, "AWS_REGION")
		}
	default:
		return fmt.Errorf("unsupported SMS_PROVIDER %q", cfg.Notification.SMSProvider)
	}

	switch cfg.Notification.EmailProvider {
	case ProviderLog:
	case ProviderSMTP:
		if cfg.Email.SMTPServer == "" {
			missing = append(missing, "EMAIL_SMTP_SERVER")
		}
		if cfg.Email.FromAddress == "" {
			missing = append(missing, "EMAIL_FROM_ADDRESS")
		}
	default:
		return fmt.Errorf("unsupported EMAIL_PROVIDER %q", cfg.Notification.EmailProvider)
	}

	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID == 0 {
		missing = append(missing, "TELEGRAM_CHAT_ID")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configurations: %v", missing)
	}
	return nil
}

func intVar(key string, bad *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		*bad = append(*bad, key)
		return 0
	}
	return n
}

func floatVar(key string, bad *[]string) float64 {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		*bad = append(*bad, key)
		return 0
	}
	return f
}

func millisVar(key string, bad *[]string) time.Duration {
	return time.Duration(intVar(key, bad)) * time.Millisecond
}
