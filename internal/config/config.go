package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Portal    PortalConfig    `json:"portal"`
	Browser   BrowserConfig   `json:"browser"`
	Sync      SyncConfig      `json:"sync"`
	Forms     FormsConfig     `json:"forms"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Log       LogConfig       `json:"log"`
	Security  SecurityConfig  `json:"security"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port         int    `json:"port"`
	Environment  string `json:"environment"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
	IdleTimeout  int    `json:"idle_timeout"`
}

// DatabaseConfig holds database configuration. An empty URL selects the in-memory store.
type DatabaseConfig struct {
	URL             string        `json:"-"`
	MaxConns        int32         `json:"max_conns"`
	MinConns        int32         `json:"min_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	Migrate         bool          `json:"migrate"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Password     string        `json:"-"`
	DB           int           `json:"db"`
	PoolSize     int           `json:"pool_size"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	CacheTTL     time.Duration `json:"cache_ttl"`
}

// PortalConfig describes the legacy portal and the credentials used against it
type PortalConfig struct {
	BaseURL        string        `json:"base_url"`
	Username       string        `json:"-"`
	Password       string        `json:"-"`
	LoginPath      string        `json:"login_path"`
	HomePath       string        `json:"home_path"`
	PatientsPath   string        `json:"patients_path"`
	CalendarPath   string        `json:"calendar_path"`
	StockPath      string        `json:"stock_path"`
	HomeFragment   string        `json:"home_fragment"`
	LoginSettle    time.Duration `json:"login_settle"`
	BodyTimeout    time.Duration `json:"body_timeout"`
	ActionSettle   time.Duration `json:"action_settle"`
	DiagnosticsDir string        `json:"diagnostics_dir"`
}

// BrowserConfig holds browser automation configuration
type BrowserConfig struct {
	Headless        bool          `json:"headless"`
	Binary          string        `json:"binary"`
	AllowDownload   bool          `json:"allow_download"`
	Stealth         bool          `json:"stealth"`
	WindowWidth     int           `json:"window_width"`
	WindowHeight    int           `json:"window_height"`
	UserAgent       string        `json:"user_agent"`
	ImplicitWait    time.Duration `json:"implicit_wait"`
	PageLoadTimeout time.Duration `json:"page_load_timeout"`
	PollInterval    time.Duration `json:"poll_interval"`
	ProbeTimeout    time.Duration `json:"probe_timeout"`
}

// SyncConfig holds extraction and batch tuning
type SyncConfig struct {
	StallLimit     int           `json:"stall_limit"`
	StockMaxPages  int           `json:"stock_max_pages"`
	UsersMaxPages  int           `json:"users_max_pages"`
	UsersLimit     int           `json:"users_limit"`
	RunTimeout     time.Duration `json:"run_timeout"`
	RecordDelay    time.Duration `json:"record_delay"`
	FieldRetries   int           `json:"field_retries"`
	LockTTL        time.Duration `json:"lock_ttl"`
	LogRetention   time.Duration `json:"log_retention"`
	PageSettle     time.Duration `json:"page_settle"`
	FramePolls     int           `json:"frame_polls"`
	FramePollDelay time.Duration `json:"frame_poll_delay"`
}

// FormsConfig points at the directory holding dumped form responses
type FormsConfig struct {
	ResponsesDir string `json:"responses_dir"`
	KeepLatest   bool   `json:"keep_latest"`
}

// SchedulerConfig holds cron specs; an empty spec disables the job
type SchedulerConfig struct {
	Enabled           bool   `json:"enabled"`
	RegistrationsSpec string `json:"registrations_spec"`
	CalendarSpec      string `json:"calendar_spec"`
	StockSpec         string `json:"stock_spec"`
	CleanupSpec       string `json:"cleanup_spec"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	RateLimit RateLimitConfig `json:"rate_limit"`
	CORS      CORSConfig      `json:"cors"`
	APIKey    string          `json:"-"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `json:"requests_per_minute"`
	BurstSize         int           `json:"burst_size"`
	CleanupInterval   time.Duration `json:"cleanup_interval"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvAsInt("PORT", 8080),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 30),
			WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 900),
			IdleTimeout:  getEnvAsInt("IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        int32(getEnvAsInt("DB_MAX_CONNS", 5)),
			MinConns:        int32(getEnvAsInt("DB_MIN_CONNS", 1)),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			Migrate:         getEnvAsBool("DB_MIGRATE", true),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			CacheTTL:     getEnvAsDuration("REDIS_CACHE_TTL", time.Hour),
		},
		Portal: PortalConfig{
			BaseURL:        strings.TrimRight(getEnv("PORTAL_BASE_URL", "https://aruja.gocfranquias.com.br"), "/"),
			Username:       getEnv("MATRIX_SYSTEM_USERNAME", ""),
			Password:       getEnv("MATRIX_SYSTEM_PASSWORD", ""),
			LoginPath:      getEnv("PORTAL_LOGIN_PATH", "/login.aspx"),
			HomePath:       getEnv("PORTAL_HOME_PATH", "/Login/Inicio.aspx"),
			PatientsPath:   getEnv("PORTAL_PATIENTS_PATH", "/Cadastro/Paciente.aspx"),
			CalendarPath:   getEnv("PORTAL_CALENDAR_PATH", "/Cadastro/AgendaAtendimentos.aspx"),
			StockPath:      getEnv("PORTAL_STOCK_PATH", "/Cadastro/Vacinas.aspx"),
			HomeFragment:   getEnv("PORTAL_HOME_FRAGMENT", "Inicio.aspx"),
			LoginSettle:    getEnvAsDuration("PORTAL_LOGIN_SETTLE", 5*time.Second),
			BodyTimeout:    getEnvAsDuration("PORTAL_BODY_TIMEOUT", 20*time.Second),
			ActionSettle:   getEnvAsDuration("PORTAL_ACTION_SETTLE", 3*time.Second),
			DiagnosticsDir: getEnv("PORTAL_DIAGNOSTICS_DIR", "diagnostics"),
		},
		Browser: BrowserConfig{
			Headless:        getEnvAsBool("BROWSER_HEADLESS", true),
			Binary:          getEnv("BROWSER_BINARY", ""),
			AllowDownload:   getEnvAsBool("BROWSER_ALLOW_DOWNLOAD", true),
			Stealth:         getEnvAsBool("BROWSER_STEALTH", false),
			WindowWidth:     getEnvAsInt("BROWSER_WINDOW_WIDTH", 1920),
			WindowHeight:    getEnvAsInt("BROWSER_WINDOW_HEIGHT", 1080),
			UserAgent:       getEnv("BROWSER_USER_AGENT", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"),
			ImplicitWait:    getEnvAsDuration("BROWSER_IMPLICIT_WAIT", 10*time.Second),
			PageLoadTimeout: getEnvAsDuration("BROWSER_PAGE_LOAD_TIMEOUT", 30*time.Second),
			PollInterval:    getEnvAsDuration("BROWSER_POLL_INTERVAL", 250*time.Millisecond),
			ProbeTimeout:    getEnvAsDuration("BROWSER_PROBE_TIMEOUT", 5*time.Second),
		},
		Sync: SyncConfig{
			StallLimit:     getEnvAsInt("SYNC_STALL_LIMIT", 2),
			StockMaxPages:  getEnvAsInt("SYNC_STOCK_MAX_PAGES", 50),
			UsersMaxPages:  getEnvAsInt("SYNC_USERS_MAX_PAGES", 10),
			UsersLimit:     getEnvAsInt("SYNC_USERS_LIMIT", 20),
			RunTimeout:     getEnvAsDuration("SYNC_RUN_TIMEOUT", 15*time.Minute),
			RecordDelay:    getEnvAsDuration("SYNC_RECORD_DELAY", 2*time.Second),
			FieldRetries:   getEnvAsInt("SYNC_FIELD_RETRIES", 2),
			LockTTL:        getEnvAsDuration("SYNC_LOCK_TTL", 20*time.Minute),
			LogRetention:   getEnvAsDuration("SYNC_LOG_RETENTION", 30*24*time.Hour),
			PageSettle:     getEnvAsDuration("SYNC_PAGE_SETTLE", time.Second),
			FramePolls:     getEnvAsInt("SYNC_FRAME_POLLS", 5),
			FramePollDelay: getEnvAsDuration("SYNC_FRAME_POLL_DELAY", 2*time.Second),
		},
		Forms: FormsConfig{
			ResponsesDir: getEnv("FORMS_RESPONSES_DIR", "forms_responses"),
			KeepLatest:   getEnvAsBool("FORMS_KEEP_LATEST", true),
		},
		Scheduler: SchedulerConfig{
			Enabled:           getEnvAsBool("SCHEDULER_ENABLED", true),
			RegistrationsSpec: getEnv("SCHEDULER_REGISTRATIONS_SPEC", "@every 1m"),
			CalendarSpec:      getEnv("SCHEDULER_CALENDAR_SPEC", ""),
			StockSpec:         getEnv("SCHEDULER_STOCK_SPEC", ""),
			CleanupSpec:       getEnv("SCHEDULER_CLEANUP_SPEC", "@daily"),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 50),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 30),
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				RequestsPerMinute: getEnvAsInt("RATE_LIMIT_RPM", 60),
				BurstSize:         getEnvAsInt("RATE_LIMIT_BURST", 10),
				CleanupInterval:   getEnvAsDuration("RATE_LIMIT_CLEANUP", time.Minute),
			},
			CORS: CORSConfig{
				AllowedOrigins:   getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
				AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders:   []string{"*"},
				AllowCredentials: false,
			},
			APIKey: getEnv("API_KEY", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that would make every run fail
func (c *Config) Validate() error {
	var errs []error
	if c.Portal.BaseURL == "" {
		errs = append(errs, fmt.Errorf("PORTAL_BASE_URL is required"))
	}
	if c.Sync.StallLimit < 1 {
		errs = append(errs, fmt.Errorf("SYNC_STALL_LIMIT must be at least 1"))
	}
	if c.Sync.FieldRetries < 1 {
		errs = append(errs, fmt.Errorf("SYNC_FIELD_RETRIES must be at least 1"))
	}
	if c.Browser.ImplicitWait <= 0 || c.Browser.PageLoadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("browser timeouts must be positive"))
	}
	return errors.Join(errs...)
}

// RequirePortalCredentials is checked before any operation that logs into the portal
func (c *Config) RequirePortalCredentials() error {
	if c.Portal.Username == "" || c.Portal.Password == "" {
		return fmt.Errorf("MATRIX_SYSTEM_USERNAME and MATRIX_SYSTEM_PASSWORD are required")
	}
	return nil
}

// URL joins a portal path onto the base URL
func (p PortalConfig) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return p.BaseURL + "/" + strings.TrimLeft(path, "/")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s") or bare seconds ("90")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
