package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Lease     LeaseConfig
	Telephony TelephonyConfig
	Guardrail GuardrailConfig
	NATS      NATSConfig
	Telemetry TelemetryConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	// AutoMigrate applies embedded migrations on startup.
	AutoMigrate bool
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	ServiceTokenTTL time.Duration
}

type LeaseConfig struct {
	DefaultTTL    time.Duration
	SweepInterval time.Duration
	// FailClosed rejects admission when the atomic acquire primitive is unavailable
	// instead of falling back to count-then-insert.
	FailClosed bool
}

type TelephonyConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

type GuardrailConfig struct {
	RepeatThreshold int
	MaxUserTurns    int
	MaxToolCalls    int
}

type NATSConfig struct {
	URL            string
	BillingSubject string
	BillingQueue   string
}

type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

func Load() (Config, error) {
	c := Config{}
	p := &envParser{}

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port = p.requiredInt("APP_PORT")

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port = p.requiredInt("DB_PORT")
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	c.DB.AutoMigrate = p.optionalBool("DB_AUTO_MIGRATE")

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port = p.requiredInt("REDIS_PORT")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration and tuning env vars are optional; defaults applied in Validate().
	c.Auth.ServiceTokenTTL = p.optionalDuration("JWT_SERVICE_TTL")

	c.Lease.DefaultTTL = p.optionalDuration("LEASE_DEFAULT_TTL")
	c.Lease.SweepInterval = p.optionalDuration("LEASE_SWEEP_INTERVAL")
	c.Lease.FailClosed = p.optionalBool("LEASE_FAIL_CLOSED")

	c.Telephony.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("TELEPHONY_BASE_URL")), "/")
	c.Telephony.APIKey = os.Getenv("TELEPHONY_API_KEY")
	c.Telephony.Timeout = p.optionalDuration("TELEPHONY_TIMEOUT")
	c.Telephony.MaxRetries = p.optionalInt("TELEPHONY_MAX_RETRIES")

	c.Guardrail.RepeatThreshold = p.optionalInt("GUARDRAIL_REPEAT_THRESHOLD")
	c.Guardrail.MaxUserTurns = p.optionalInt("GUARDRAIL_MAX_USER_TURNS")
	c.Guardrail.MaxToolCalls = p.optionalInt("GUARDRAIL_MAX_TOOL_CALLS")

	c.NATS.URL = strings.TrimSpace(os.Getenv("NATS_URL"))
	c.NATS.BillingSubject = strings.TrimSpace(os.Getenv("NATS_BILLING_SUBJECT"))
	c.NATS.BillingQueue = strings.TrimSpace(os.Getenv("NATS_BILLING_QUEUE"))

	c.Telemetry.OTLPEndpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	c.Telemetry.ServiceName = strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME"))

	if err := joinErrors(p.errs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate applies defaults in place and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.ServiceTokenTTL <= 0 {
		c.Auth.ServiceTokenTTL = 24 * time.Hour
	}

	if c.Lease.DefaultTTL <= 0 {
		c.Lease.DefaultTTL = 15 * time.Minute
	}
	if c.Lease.SweepInterval <= 0 {
		c.Lease.SweepInterval = time.Minute
	}
	// Bounds worst-case capacity leakage after a lost release.
	if c.Lease.SweepInterval >= c.Lease.DefaultTTL {
		errs = append(errs, fmt.Errorf("LEASE_SWEEP_INTERVAL (%s) must be shorter than LEASE_DEFAULT_TTL (%s)", c.Lease.SweepInterval, c.Lease.DefaultTTL))
	}

	if c.Telephony.BaseURL == "" {
		errs = append(errs, errors.New("TELEPHONY_BASE_URL is required"))
	} else if !strings.HasPrefix(c.Telephony.BaseURL, "http://") && !strings.HasPrefix(c.Telephony.BaseURL, "https://") {
		errs = append(errs, fmt.Errorf("TELEPHONY_BASE_URL must be an http(s) URL, got %q", c.Telephony.BaseURL))
	}
	if c.IsProduction() && c.Telephony.APIKey == "" {
		errs = append(errs, errors.New("TELEPHONY_API_KEY is required in production"))
	}
	if c.Telephony.Timeout <= 0 {
		c.Telephony.Timeout = 10 * time.Second
	}
	if c.Telephony.MaxRetries <= 0 {
		c.Telephony.MaxRetries = 3
	}

	if c.Guardrail.RepeatThreshold <= 0 {
		c.Guardrail.RepeatThreshold = 2
	}
	if c.Guardrail.MaxUserTurns <= 0 {
		c.Guardrail.MaxUserTurns = 12
	}
	if c.Guardrail.MaxToolCalls <= 0 {
		c.Guardrail.MaxToolCalls = 3
	}

	if c.NATS.BillingSubject == "" {
		c.NATS.BillingSubject = "billing.workspace.events"
	}
	if c.NATS.BillingQueue == "" {
		c.NATS.BillingQueue = "lifecycle-enforcer"
	}
	if c.NATS.URL != "" && !strings.HasPrefix(c.NATS.URL, "nats://") && !strings.HasPrefix(c.NATS.URL, "tls://") {
		errs = append(errs, fmt.Errorf("NATS_URL must use nats:// or tls://, got %q", c.NATS.URL))
	}

	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "voice-agent-platform"
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// envParser reads typed env vars and collects every parse error.
type envParser struct {
	errs []error
}

func (p *envParser) requiredInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		p.errs = append(p.errs, fmt.Errorf("%s is required", key))
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be an integer, got %q", key, v))
		return 0
	}
	return n
}

func (p *envParser) optionalInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be an integer, got %q", key, v))
		return 0
	}
	return n
}

func (p *envParser) optionalDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be a duration like 15m, got %q", key, v))
		return 0
	}
	return d
}

func (p *envParser) optionalBool(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
		return false
	}
	return b
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
