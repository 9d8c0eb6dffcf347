package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type APIConfig struct {
	Addr               string
	ArchiveURL         string
	TickEvery          time.Duration
	ReapEvery          time.Duration
	Retention          time.Duration
	DedupWindow        time.Duration
	DefaultPlayerCount int
	DiceSeed           int64
	AllowedOrigins     []string
}

type CLIConfig struct {
	APIBaseURL string
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("STOCKTICKER_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:               addr,
		ArchiveURL:         strings.TrimSpace(os.Getenv("STOCKTICKER_ARCHIVE_URL")),
		TickEvery:          envDurationDefault("STOCKTICKER_TICK_EVERY", time.Second),
		ReapEvery:          envDurationDefault("STOCKTICKER_REAP_EVERY", time.Minute),
		Retention:          envDurationDefault("STOCKTICKER_RETENTION", time.Hour),
		DedupWindow:        envDurationDefault("STOCKTICKER_DEDUP_WINDOW", 2*time.Second),
		DefaultPlayerCount: envIntDefault("STOCKTICKER_DEFAULT_PLAYERS", 4),
		DiceSeed:           envInt64Default("STOCKTICKER_SEED", 0),
		AllowedOrigins:     envListDefault("STOCKTICKER_ALLOWED_ORIGINS", nil),
	}
	if cfg.TickEvery < 100*time.Millisecond || cfg.TickEvery > 5*time.Second {
		return cfg, fmt.Errorf("STOCKTICKER_TICK_EVERY must be between 100ms and 5s")
	}
	if cfg.DefaultPlayerCount < 2 || cfg.DefaultPlayerCount > 8 {
		return cfg, fmt.Errorf("STOCKTICKER_DEFAULT_PLAYERS must be between 2 and 8")
	}
	if cfg.ArchiveURL != "" && !validArchiveURL(cfg.ArchiveURL) {
		return cfg, fmt.Errorf("STOCKTICKER_ARCHIVE_URL must be a postgres:// or sqlite: url")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("STK_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func validArchiveURL(url string) bool {
	for _, prefix := range []string{"postgres://", "postgresql://", "sqlite:"} {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envInt64Default(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envListDefault(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
