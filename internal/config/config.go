package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"
)

var ErrMissingToken = errors.New("TELEGRAM_BOT_TOKEN is required")

type Config struct {
	Docker     DockerConfig     `yaml:"docker"`
	Server     ServerConfig     `yaml:"server"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
}

type DockerConfig struct {
	Socket string `yaml:"socket"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	Port int    `yaml:"port"`
}

// ListenAddr is the host:port the status server binds to.
func (s ServerConfig) ListenAddr() string {
	return net.JoinHostPort(s.Addr, strconv.Itoa(s.Port))
}

type TelegramConfig struct {
	Token         string  `yaml:"token"`
	AdminChatID   string  `yaml:"admin_chat_id"`
	AlertChatID   string  `yaml:"alert_chat_id"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	MaxAttempts   int     `yaml:"max_attempts"`
}

type MonitorConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	RealertAfter time.Duration `yaml:"realert_after"`
}

type DispatcherConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type StorageConfig struct {
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func Defaults() Config {
	return Config{
		Docker:     DockerConfig{Socket: "/var/run/docker.sock"},
		Server:     ServerConfig{Addr: "127.0.0.1", Port: 3000},
		Telegram:   TelegramConfig{RatePerSecond: 1, MaxAttempts: 3},
		Monitor:    MonitorConfig{PollInterval: time.Minute, RealertAfter: 30 * time.Minute},
		Dispatcher: DispatcherConfig{Interval: 100 * time.Millisecond},
		Storage:    StorageConfig{DBPath: "./data/dockwatch.db", RetentionDays: 14},
		Log:        LogConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, a .env file in the working directory and the process environment,
// in increasing order of precedence.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	// .env never overrides variables already set in the environment.
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Docker.Socket = getenv("DOCKER_SOCKET_PATH", cfg.Docker.Socket)
	cfg.Server.Addr = getenv("SERVER_ADDR", cfg.Server.Addr)
	cfg.Server.Port = getenvInt("SERVER_PORT", cfg.Server.Port)
	cfg.Telegram.Token = getenv("TELEGRAM_BOT_TOKEN", cfg.Telegram.Token)
	cfg.Telegram.AdminChatID = getenv("ADMIN_CHAT_ID", cfg.Telegram.AdminChatID)
	cfg.Telegram.AlertChatID = getenv("ALERT_CHAT_ID", cfg.Telegram.AlertChatID)
	if cfg.Telegram.AlertChatID == "" {
		cfg.Telegram.AlertChatID = cfg.Telegram.AdminChatID
	}
	cfg.Telegram.RatePerSecond = getenvFloat("TELEGRAM_RATE", cfg.Telegram.RatePerSecond)
	cfg.Telegram.MaxAttempts = getenvInt("TELEGRAM_MAX_ATTEMPTS", cfg.Telegram.MaxAttempts)
	cfg.Monitor.PollInterval = getenvDuration("POLL_INTERVAL", cfg.Monitor.PollInterval)
	cfg.Monitor.RealertAfter = getenvDuration("REALERT_AFTER", cfg.Monitor.RealertAfter)
	cfg.Dispatcher.Interval = getenvDuration("DISPATCH_INTERVAL", cfg.Dispatcher.Interval)
	cfg.Storage.DBPath = getenv("DOCKWATCH_DB_PATH", cfg.Storage.DBPath)
	cfg.Storage.RetentionDays = getenvInt("DOCKWATCH_RETENTION_DAYS", cfg.Storage.RetentionDays)
	cfg.Log.Level = getenv("DOCKWATCH_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getenv("DOCKWATCH_LOG_FILE", cfg.Log.File)
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, ErrMissingToken)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.Server.Port))
	}
	if c.Monitor.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", c.Monitor.PollInterval))
	}
	if c.Monitor.RealertAfter <= 0 {
		errs = append(errs, fmt.Errorf("realert window must be positive, got %s", c.Monitor.RealertAfter))
	}
	if c.Dispatcher.Interval <= 0 {
		errs = append(errs, fmt.Errorf("dispatch interval must be positive, got %s", c.Dispatcher.Interval))
	}
	if c.Telegram.RatePerSecond <= 0 {
		errs = append(errs, fmt.Errorf("telegram rate must be positive, got %v", c.Telegram.RatePerSecond))
	}
	if c.Telegram.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("telegram max attempts must be at least 1, got %d", c.Telegram.MaxAttempts))
	}
	return errors.Join(errs...)
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func getenvFloat(k string, d float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return d
	}
	return f
}

func getenvDuration(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		return d
	}
	return dur
}
