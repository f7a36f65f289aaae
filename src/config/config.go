package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port         string
	DatabasePath string
	LogLevel     string

	// Template graph definition. Empty path falls back to the compiled-in template.
	TemplatePath string

	// Oracle (classification / instruction pipeline) settings.
	OracleAPIKey     string
	OracleBaseURL    string
	ClassifierModel  string
	RewriterModel    string
	IntegratorModel  string
	PromptsDir       string
	OracleTimeout    time.Duration
	OracleMaxRetries int

	// Reconciliation tolerances.
	CurrencyTolerance float64
	PercentTolerance  float64

	// Rule store and audit data locations.
	CompanyContextDir string
	DataDir           string

	MaxRequestBytes int64

	EmailServiceProvider string

	SMTPServer   string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string

	MailgunDomain        string
	MailgunPrivateAPIKey string

	SenderEmail string
	SenderName  string

	// Where flagged-review notifications are sent.
	ReviewNotifyEmail string
}

var Cfg *AppConfig

func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		log.Println("Info: No .env file found or error loading .env file. Relying on OS environment variables and defaults. Error (if any):", errEnv)
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	oracleTimeoutStr := getEnv("ORACLE_TIMEOUT", "120s")
	oracleTimeout, err := time.ParseDuration(oracleTimeoutStr)
	if err != nil {
		log.Printf("WARNING: Invalid ORACLE_TIMEOUT format '%s'. Using default 120s. Error: %v", oracleTimeoutStr, err)
		oracleTimeout = 120 * time.Second
	}

	currencyTolerance := getEnvAsFloat("CURRENCY_TOLERANCE", 0.01)
	if currencyTolerance <= 0 {
		log.Printf("WARNING: CURRENCY_TOLERANCE must be positive, got %v. Using default 0.01.", currencyTolerance)
		currencyTolerance = 0.01
	}
	percentTolerance := getEnvAsFloat("PERCENT_TOLERANCE", 0.01)
	if percentTolerance <= 0 {
		log.Printf("WARNING: PERCENT_TOLERANCE must be positive, got %v. Using default 0.01.", percentTolerance)
		percentTolerance = 0.01
	}

	maxRequestBytesStr := getEnv("MAX_REQUEST_BYTES", "10485760")
	maxRequestBytes, err := strconv.ParseInt(maxRequestBytesStr, 10, 64)
	if err != nil {
		log.Printf("WARNING: Invalid MAX_REQUEST_BYTES format '%s'. Using default 10MB. Error: %v", maxRequestBytesStr, err)
		maxRequestBytes = 10 * 1024 * 1024
	}

	Cfg = &AppConfig{
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "./finloader.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		TemplatePath: getEnv("TEMPLATE_PATH", ""),

		OracleAPIKey:     getEnv("ANTHROPIC_API_KEY", ""),
		OracleBaseURL:    getEnv("ORACLE_BASE_URL", "https://api.anthropic.com/v1/messages"),
		ClassifierModel:  getEnv("CLASSIFIER_MODEL", "claude-opus-4-1"),
		RewriterModel:    getEnv("REWRITER_MODEL", "claude-sonnet-4-5"),
		IntegratorModel:  getEnv("INTEGRATOR_MODEL", "claude-opus-4-1"),
		PromptsDir:       getEnv("PROMPTS_DIR", "prompts"),
		OracleTimeout:    oracleTimeout,
		OracleMaxRetries: getEnvAsInt("ORACLE_MAX_RETRIES", 3),

		CurrencyTolerance: currencyTolerance,
		PercentTolerance:  percentTolerance,

		CompanyContextDir: getEnv("COMPANY_CONTEXT_DIR", "company_context"),
		DataDir:           getEnv("DATA_DIR", "data"),

		MaxRequestBytes: maxRequestBytes,

		EmailServiceProvider: getEnv("EMAIL_SERVICE_PROVIDER", "mock"),

		SMTPServer:   getEnv("SMTP_SERVER", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		MailgunDomain:        getEnv("MAILGUN_DOMAIN", ""),
		MailgunPrivateAPIKey: getEnv("MAILGUN_PRIVATE_API_KEY", ""),

		SenderEmail: getEnv("SENDER_EMAIL", "noreply@example.com"),
		SenderName:  getEnv("SENDER_NAME", "Finloader"),

		ReviewNotifyEmail: getEnv("REVIEW_NOTIFY_EMAIL", ""),
	}

	if Cfg.EmailServiceProvider == "mailgun" {
		if Cfg.MailgunDomain == "" {
			log.Fatalf("FATAL: MAILGUN_DOMAIN is required when EMAIL_SERVICE_PROVIDER is 'mailgun', but it's not set in environment or .env file.")
		}
		if Cfg.MailgunPrivateAPIKey == "" {
			log.Fatalf("FATAL: MAILGUN_PRIVATE_API_KEY is required when EMAIL_SERVICE_PROVIDER is 'mailgun', but it's not set in environment or .env file.")
		}
		if Cfg.SenderEmail == "noreply@example.com" || Cfg.SenderEmail == "" {
			log.Fatalf("FATAL: SENDER_EMAIL must be configured properly (e.g., your Mailgun sender) when EMAIL_SERVICE_PROVIDER is 'mailgun'.")
		}
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, EmailProvider=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.EmailServiceProvider)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		log.Printf("Integer value for %s not set or empty, using default: %d", key, fallback)
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("WARNING: Invalid integer value for %s: '%s'. Using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	log.Printf("WARNING: Invalid float value for %s: '%s'. Using default: %v", key, valueStr, fallback)
	return fallback
}
