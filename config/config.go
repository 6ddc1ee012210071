package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
)

type Config struct {
	Port            string
	LogLevel        string
	DBPath          string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// Load reads .env when present, then the environment, then command-line flags.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}
	return Parse(args, os.Getenv)
}

// Parse builds a Config from getenv defaults overridden by args.
func Parse(args []string, getenv func(string) string) (*Config, error) {
	env := func(key, fallback string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return fallback
	}

	shutdown, err := cast.ToDurationE(env("SHUTDOWN_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
	}

	c := &Config{
		Port:            env("PORT", "8080"),
		LogLevel:        env("LOG_LEVEL", "info"),
		DBPath:          env("DB_PATH", "polls.db"),
		AllowedOrigins:  splitList(getenv("ALLOWED_ORIGINS")),
		ShutdownTimeout: shutdown,
	}

	flags := pflag.NewFlagSet("livepoll-server", pflag.ContinueOnError)
	flags.StringVar(&c.Port, "port", c.Port, "HTTP listen port")
	flags.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	flags.StringVar(&c.DBPath, "db", c.DBPath, "SQLite database path")
	flags.StringSliceVar(&c.AllowedOrigins, "allowed-origins", c.AllowedOrigins, "websocket origins to accept (empty accepts all)")
	flags.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", c.ShutdownTimeout, "graceful shutdown timeout")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
