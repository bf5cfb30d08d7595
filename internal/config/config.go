package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the api, callsync and migrate processes read from env.
// Per-tenant telephony API keys are stored with the tenant connection, never here.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Telephony TelephonyConfig
	Sync      SyncConfig
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
}

// RedisConfig is optional. An empty Host disables the sync run guard.
type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

type TelephonyConfig struct {
	BaseURL string
	Timeout time.Duration

	// BreakerFailures is the number of consecutive upstream failures that opens the breaker.
	BreakerFailures uint32
	BreakerInterval time.Duration
	BreakerTimeout  time.Duration
}

type SyncConfig struct {
	// Secret guards the scheduler trigger. Empty disables that path only.
	Secret string
	// RunTTL bounds how long a run guard is held if the process dies mid-run.
	RunTTL time.Duration
}

// envReader reads variables and collects every malformed value instead of stopping at the first.
type envReader struct {
	errs []error
}

func (r *envReader) str(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// secret is not trimmed; whitespace may be part of it.
func (r *envReader) secret(key string) string {
	return os.Getenv(key)
}

func (r *envReader) integer(key string, required bool) int {
	v := r.str(key)
	if v == "" {
		if required {
			r.errs = append(r.errs, fmt.Errorf("%s is required", key))
		}
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n
}

func (r *envReader) unsigned(key string) uint32 {
	v := r.str(key)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be an unsigned integer, got %q", key, v))
	}
	return uint32(n)
}

// duration returns 0 when unset; Validate applies the default.
func (r *envReader) duration(key string) time.Duration {
	v := r.str(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a duration like 30s or 5m, got %q", key, v))
	}
	return d
}

func Load() (Config, error) {
	r := &envReader{}
	c := Config{
		App: AppConfig{
			Env:  r.str("APP_ENV"),
			Port: r.integer("APP_PORT", true),
		},
		DB: DBConfig{
			Host:     r.str("DB_HOST"),
			Port:     r.integer("DB_PORT", true),
			User:     r.str("DB_USER"),
			Password: r.secret("DB_PASSWORD"),
			Name:     r.str("DB_NAME"),
			SSLMode:  r.str("DB_SSLMODE"),
		},
		Redis: RedisConfig{
			Host: r.str("REDIS_HOST"),
		},
		Auth: AuthConfig{
			JWTSecret:      r.secret("JWT_SECRET"),
			JWTIssuer:      r.str("JWT_ISSUER"),
			JWTAudience:    r.str("JWT_AUDIENCE"),
			AccessTokenTTL: r.duration("JWT_ACCESS_TTL"),
		},
		Telephony: TelephonyConfig{
			BaseURL:         r.str("TELEPHONY_BASE_URL"),
			Timeout:         r.duration("TELEPHONY_TIMEOUT"),
			BreakerFailures: r.unsigned("TELEPHONY_BREAKER_FAILURES"),
			BreakerInterval: r.duration("TELEPHONY_BREAKER_INTERVAL"),
			BreakerTimeout:  r.duration("TELEPHONY_BREAKER_TIMEOUT"),
		},
		Sync: SyncConfig{
			Secret: r.secret("SYNC_SECRET"),
			RunTTL: r.duration("SYNC_RUN_TTL"),
		},
	}
	if c.Redis.Host != "" {
		c.Redis.Port = r.integer("REDIS_PORT", true)
	}

	if err := joinErrors(r.errs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error
	errs = append(errs, c.validateApp()...)
	errs = append(errs, c.validateDB()...)
	errs = append(errs, c.validateAuth()...)
	errs = append(errs, c.validateTelephony()...)

	if c.Redis.Host != "" && !validPort(c.Redis.Port) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}
	if c.Sync.RunTTL <= 0 {
		c.Sync.RunTTL = 15 * time.Minute
	}
	return joinErrors(errs)
}

func (c *Config) validateApp() []error {
	var errs []error
	switch c.App.Env {
	case "":
		errs = append(errs, errors.New("APP_ENV is required"))
	case "local", "dev", "staging", "production":
	default:
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if !validPort(c.App.Port) {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	return errs
}

func (c *Config) validateDB() []error {
	var errs []error
	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if !validPort(c.DB.Port) {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	switch c.DB.SSLMode {
	case "":
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	case "disable", "require", "verify-ca", "verify-full":
	default:
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	return errs
}

func (c *Config) validateAuth() []error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() && c.Auth.JWTIssuer == "" {
		errs = append(errs, errors.New("JWT_ISSUER is required in production"))
	}
	if c.IsProduction() && c.Auth.JWTAudience == "" {
		errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	return errs
}

func (c *Config) validateTelephony() []error {
	var errs []error
	t := &c.Telephony
	if t.BaseURL == "" {
		errs = append(errs, errors.New("TELEPHONY_BASE_URL is required"))
	} else if u, err := url.Parse(t.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("TELEPHONY_BASE_URL must be an http(s) url, got %q", t.BaseURL))
	}
	if t.Timeout <= 0 {
		t.Timeout = 30 * time.Second
	}
	if t.BreakerFailures == 0 {
		t.BreakerFailures = 5
	}
	if t.BreakerInterval <= 0 {
		t.BreakerInterval = time.Minute
	}
	if t.BreakerTimeout <= 0 {
		t.BreakerTimeout = 30 * time.Second
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// PostgresDSN is the keyword/value form pgxpool parses. Never log it.
func (c Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, quoteDSN(c.DB.Password), c.DB.Name, c.DB.SSLMode)
}

// PostgresURL is the url form golang-migrate's pgx/v5 driver expects.
func (c Config) PostgresURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DB.User, c.DB.Password),
		Host:     net.JoinHostPort(c.DB.Host, strconv.Itoa(c.DB.Port)),
		Path:     "/" + c.DB.Name,
		RawQuery: url.Values{"sslmode": {c.DB.SSLMode}}.Encode(),
	}
	return u.String()
}

func (c Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}

func (c Config) RedisAddr() string {
	return net.JoinHostPort(c.Redis.Host, strconv.Itoa(c.Redis.Port))
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

// quoteDSN quotes a keyword/value DSN value when it contains spaces or quotes.
func quoteDSN(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func joinErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:")
	for _, e := range errs {
		b.WriteString("\n- ")
		b.WriteString(e.Error())
	}
	return errors.New(b.String())
}
