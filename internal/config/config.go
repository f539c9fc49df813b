package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"rekord/internal/core"
)

// Supported database/sql drivers.
const (
	DriverODBC   = "odbc"
	DriverSQLite = "sqlite"
)

type Config struct {
	// HTTP Server
	Port string
	// TrustedProxies are extra CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string

	// Data source
	DBDriver     string
	DBDSN        string
	DBLogin      string
	DBPassword   string
	MaxOpenConns int
	QueryTimeout time.Duration

	// Option list cache
	OptionsCacheTTL time.Duration

	// AMQP (optional, empty URL disables events)
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	LogLevel string
}

func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8081"),
		TrustedProxies: getEnvList("TRUSTED_PROXIES"),

		DBDriver:     strings.ToLower(getEnv("DB_DRIVER", DriverODBC)),
		DBDSN:        getEnv("DB_DSN", ""),
		DBLogin:      getEnv("DB_LOGIN", ""),
		DBPassword:   getEnv("DB_PASSWORD", ""),
		MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 4),
		QueryTimeout: getEnvDuration("QUERY_TIMEOUT", 10*time.Second),

		OptionsCacheTTL: getEnvDuration("OPTIONS_CACHE_TTL", time.Hour),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "rekord"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "report.queried"),

		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}
}

// Validate validates the configuration. The returned error wraps
// core.ErrConfiguration.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR like 10.1.0.0/16", cidr))
		}
	}

	switch c.DBDriver {
	case DriverODBC:
		if c.DBDSN == "" {
			errors = append(errors, "DB_DSN (ODBC data source name) is required")
		}
		if c.DBLogin == "" {
			errors = append(errors, "DB_LOGIN is required for odbc driver")
		}
		if c.DBPassword == "" {
			errors = append(errors, "DB_PASSWORD is required for odbc driver")
		}
	case DriverSQLite:
		if c.DBDSN == "" {
			errors = append(errors, "DB_DSN (SQLite database path) is required")
		} else if dir := filepath.Dir(c.DBDSN); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("SQLite database directory does not exist: %s", dir))
			}
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid database driver '%s': must be one of [%s %s]", c.DBDriver, DriverODBC, DriverSQLite))
	}

	if c.MaxOpenConns < 1 {
		errors = append(errors, fmt.Sprintf("invalid max open connections %d: must be at least 1", c.MaxOpenConns))
	}

	if c.QueryTimeout < 100*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid query timeout %v: must be at least 100ms", c.QueryTimeout))
	} else if c.QueryTimeout > 10*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid query timeout %v: must be at most 10 minutes", c.QueryTimeout))
	}

	if c.OptionsCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid options cache TTL %v: must be at least 1 second", c.OptionsCacheTTL))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPRoutingKey == "" {
			errors = append(errors, "AMQP routing key cannot be empty when AMQP URL is provided")
		}
	}

	if _, ok := parseLevel(c.LogLevel); !ok {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of [debug info warn error]", c.LogLevel))
	}

	if len(errors) > 0 {
		return fmt.Errorf("%w: validation failed:\n- %s", core.ErrConfiguration, strings.Join(errors, "\n- "))
	}

	return nil
}

// ConnectionString builds the driver specific data source string.
// For ODBC this is DSN=...;UID=...;PWD=...; for SQLite the file path.
func (c *Config) ConnectionString() string {
	if c.DBDriver == DriverSQLite {
		return c.DBDSN
	}
	return fmt.Sprintf("DSN=%s;UID=%s;PWD=%s", odbcValue(c.DBDSN), odbcValue(c.DBLogin), odbcValue(c.DBPassword))
}

// odbcValue brace-quotes a connection string value when it contains
// characters the ODBC attribute syntax reserves. A closing brace inside a
// quoted value is doubled.
func odbcValue(v string) string {
	if !strings.ContainsAny(v, ";{}=") && strings.TrimSpace(v) == v {
		return v
	}
	return "{" + strings.ReplaceAll(v, "}", "}}") + "}"
}

// SlogLevel returns the configured log level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

// Redacted returns display pairs with secrets masked.
func (c *Config) Redacted() [][2]string {
	mask := func(s string) string {
		if s == "" {
			return "(brak)"
		}
		return "••••••"
	}
	proxies := "domyślne (sieci prywatne)"
	if len(c.TrustedProxies) > 0 {
		proxies += ", " + strings.Join(c.TrustedProxies, ", ")
	}
	amqp := "wyłączone"
	if c.AMQPURL != "" {
		amqp = c.AMQPExchange + " / " + c.AMQPRoutingKey
	}
	return [][2]string{
		{"Sterownik", c.DBDriver},
		{"Źródło danych", c.DBDSN},
		{"Użytkownik", mask(c.DBLogin)},
		{"Hasło", mask(c.DBPassword)},
		{"Limit czasu zapytania", c.QueryTimeout.String()},
		{"Ważność listy opcji", c.OptionsCacheTTL.String()},
		{"Zdarzenia AMQP", amqp},
		{"Zaufane proxy", proxies},
	}
}

func parseLevel(s string) (slog.Level, bool) {
	switch s {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
