package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

type Config struct {
	// HTTP Server
	Port       string
	AdminToken string

	// Database
	DBDriver     string
	SQLiteDBPath string
	MySQLDSN     string

	// AMQP, disabled when AMQPURL is empty
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Batch
	ChunkSize  int
	RetryLimit int
	SkipLimit  int

	// Worker
	ScheduleEnabled bool
	ShutdownTimeout time.Duration

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		Port:       getEnv("PORT", "8081"),
		AdminToken: getEnv("ADMIN_TOKEN", ""),

		DBDriver:     getEnv("DB_DRIVER", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/reportbatch.db"),
		MySQLDSN:     getEnv("MYSQL_DSN", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "reportbatch"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "report_ready"),

		ChunkSize:  getEnvInt("BATCH_CHUNK_SIZE", 100),
		RetryLimit: getEnvInt("BATCH_RETRY_LIMIT", 3),
		SkipLimit:  getEnvInt("BATCH_SKIP_LIMIT", 100),

		ScheduleEnabled: getEnvBool("SCHEDULE_ENABLED", true),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.DBDriver {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite driver")
		} else {
			// Create the database directory if needed
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "mysql":
		if c.MySQLDSN == "" {
			errors = append(errors, "MySQL DSN cannot be empty when using mysql driver")
		} else if _, err := mysql.ParseDSN(c.MySQLDSN); err != nil {
			errors = append(errors, fmt.Sprintf("invalid MySQL DSN: %v", err))
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid database driver '%s': must be one of [sqlite mysql]", c.DBDriver))
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
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.ChunkSize < 1 || c.ChunkSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid batch chunk size %d: must be between 1 and 1000", c.ChunkSize))
	}
	if c.RetryLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid batch retry limit %d: must be at least 1", c.RetryLimit))
	}
	if c.SkipLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid batch skip limit %d: must be at least 1", c.SkipLimit))
	}

	if c.ShutdownTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %v: must be at least 1 second", c.ShutdownTimeout))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of [debug info warn error]", c.LogLevel))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateServer checks the settings only the long-running worker needs.
func (c *Config) ValidateServer() error {
	if c.AdminToken == "" {
		return fmt.Errorf("configuration validation failed:\n- ADMIN_TOKEN is required to serve admin triggers")
	}
	return nil
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
