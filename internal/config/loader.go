package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/example/clinic-scheduler/internal/timeconv"
)

// ConfigFileEnv names the variable pointing at an optional YAML file.
const ConfigFileEnv = "SCHEDULER_CONFIG_FILE"

// Config captures configuration values for the scheduler service.
type Config struct {
	HTTPPort  int    `yaml:"http_port"`
	SQLiteDSN string `yaml:"sqlite_dsn"`
	// MonthsAhead is the default generation horizon.
	MonthsAhead int `yaml:"months_ahead"`
	// HardCeilingDays bounds any generation window from its start.
	HardCeilingDays   int           `yaml:"hard_ceiling_days"`
	GenerationCron    string        `yaml:"generation_cron"`
	GenerationTimeout time.Duration `yaml:"generation_timeout"`
	DSTGapPolicy      string        `yaml:"dst_gap_policy"`
	DSTOverlapPolicy  string        `yaml:"dst_overlap_policy"`
	SyncQueueSize     int           `yaml:"sync_queue_size"`
	// SyncWebhookURL is optional. Without it calendar events are only logged.
	SyncWebhookURL  string        `yaml:"sync_webhook_url"`
	LogLevel        string        `yaml:"log_level"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		HTTPPort:          8080,
		SQLiteDSN:         "scheduler.db",
		MonthsAhead:       3,
		HardCeilingDays:   365,
		GenerationCron:    "0 * * * *",
		GenerationTimeout: 30 * time.Second,
		DSTGapPolicy:      string(timeconv.GapShiftForward),
		DSTOverlapPolicy:  string(timeconv.OverlapEarlier),
		SyncQueueSize:     256,
		LogLevel:          "info",
		ShutdownTimeout:   10 * time.Second,
	}
}

// Policy returns the DST policy named by the configuration.
func (c Config) Policy() timeconv.Policy {
	policy, err := timeconv.ParsePolicy(c.DSTGapPolicy, c.DSTOverlapPolicy)
	if err != nil {
		return timeconv.DefaultPolicy()
	}
	return policy
}

// SlogLevel returns the configured log level.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Load reads an optional .env file, then the YAML file named by
// SCHEDULER_CONFIG_FILE, then the process environment. Later sources win.
//
// Every invalid value is reported in a single error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf(".env ファイルを読み込めません: %w", err)
	}

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv(ConfigFileEnv)); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	invalid := make([]string, 0, 2)
	intEnv := func(key string, dst *int) {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			n, err := strconv.Atoi(value)
			if err != nil {
				invalid = append(invalid, key)
				return
			}
			*dst = n
		}
	}
	durationEnv := func(key string, dst *time.Duration) {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			d, err := time.ParseDuration(value)
			if err != nil {
				invalid = append(invalid, key)
				return
			}
			*dst = d
		}
	}
	stringEnv := func(key string, dst *string) {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			*dst = value
		}
	}

	intEnv("SCHEDULER_HTTP_PORT", &cfg.HTTPPort)
	stringEnv("SCHEDULER_SQLITE_DSN", &cfg.SQLiteDSN)
	intEnv("SCHEDULER_MONTHS_AHEAD", &cfg.MonthsAhead)
	intEnv("SCHEDULER_HARD_CEILING_DAYS", &cfg.HardCeilingDays)
	stringEnv("SCHEDULER_GENERATION_CRON", &cfg.GenerationCron)
	durationEnv("SCHEDULER_GENERATION_TIMEOUT", &cfg.GenerationTimeout)
	stringEnv("SCHEDULER_DST_GAP_POLICY", &cfg.DSTGapPolicy)
	stringEnv("SCHEDULER_DST_OVERLAP_POLICY", &cfg.DSTOverlapPolicy)
	intEnv("SCHEDULER_SYNC_QUEUE_SIZE", &cfg.SyncQueueSize)
	stringEnv("SCHEDULER_SYNC_WEBHOOK_URL", &cfg.SyncWebhookURL)
	stringEnv("SCHEDULER_LOG_LEVEL", &cfg.LogLevel)
	durationEnv("SCHEDULER_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	invalid = append(invalid, cfg.validate(invalid)...)
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("設定値が不正です: %s", strings.Join(invalid, ", "))
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルを読み込めません (%s): %w", path, err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("設定ファイルの形式が不正です (%s): %w", path, err)
	}
	return nil
}

// validate returns the variable names of values that are out of range.
// Names already reported by the parser are skipped.
func (c Config) validate(reported []string) []string {
	seen := make(map[string]bool, len(reported))
	for _, key := range reported {
		seen[key] = true
	}
	var invalid []string
	check := func(key string, ok bool) {
		if !ok && !seen[key] {
			invalid = append(invalid, key)
		}
	}

	check("SCHEDULER_HTTP_PORT", c.HTTPPort > 0 && c.HTTPPort <= 65535)
	check("SCHEDULER_SQLITE_DSN", strings.TrimSpace(c.SQLiteDSN) != "")
	check("SCHEDULER_MONTHS_AHEAD", c.MonthsAhead > 0 && c.MonthsAhead <= 24)
	check("SCHEDULER_HARD_CEILING_DAYS", c.HardCeilingDays > 0)
	_, cronErr := cron.ParseStandard(c.GenerationCron)
	check("SCHEDULER_GENERATION_CRON", cronErr == nil)
	check("SCHEDULER_GENERATION_TIMEOUT", c.GenerationTimeout > 0)
	_, policyErr := timeconv.ParsePolicy(c.DSTGapPolicy, "")
	check("SCHEDULER_DST_GAP_POLICY", policyErr == nil)
	_, policyErr = timeconv.ParsePolicy("", c.DSTOverlapPolicy)
	check("SCHEDULER_DST_OVERLAP_POLICY", policyErr == nil)
	check("SCHEDULER_SYNC_QUEUE_SIZE", c.SyncQueueSize > 0)
	if c.SyncWebhookURL != "" {
		u, err := url.ParseRequestURI(c.SyncWebhookURL)
		check("SCHEDULER_SYNC_WEBHOOK_URL", err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "")
	}
	var level slog.Level
	check("SCHEDULER_LOG_LEVEL", level.UnmarshalText([]byte(c.LogLevel)) == nil)
	check("SCHEDULER_SHUTDOWN_TIMEOUT", c.ShutdownTimeout > 0)
	return invalid
}
