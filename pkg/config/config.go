package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Gemini    GeminiConfig
	Generator GeneratorConfig
	Exams     ExamsConfig
	Sheets    SheetsConfig
	Dashboard DashboardConfig
	Bootstrap BootstrapConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// GeminiConfig holds credentials and tuning for the generative AI collaborator.
// An empty APIKey disables generation endpoints without affecting the rest of
// the service.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// GeneratorConfig bounds exam generation parameters.
type GeneratorConfig struct {
	DefaultQuestionCount int
	MaxQuestionCount     int
}

// ExamsConfig gates optional exam workflows.
type ExamsConfig struct {
	DuplicateEnabled bool
}

// SheetsConfig controls printable sheet rendering and storage.
type SheetsConfig struct {
	StorageDir      string
	FontPath        string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	Retention       time.Duration
}

// DashboardConfig governs dashboard summary caching.
type DashboardConfig struct {
	CacheTTL time.Duration
}

// BootstrapConfig seeds the initial super-admin account. The account is
// created once through the normal user path with a hashed password; there is
// no authentication bypass tied to it.
type BootstrapConfig struct {
	AdminEmail    string
	AdminPassword string
	AdminName     string
	SchoolName    string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Gemini = GeminiConfig{
		APIKey:  v.GetString("GEMINI_API_KEY"),
		Model:   v.GetString("GEMINI_MODEL"),
		BaseURL: v.GetString("GEMINI_BASE_URL"),
		Timeout: parseDuration(v.GetString("GEMINI_TIMEOUT"), 60*time.Second),
	}

	defaultCount := v.GetInt("GENERATOR_DEFAULT_QUESTIONS")
	if defaultCount <= 0 {
		defaultCount = 5
	}
	maxCount := v.GetInt("GENERATOR_MAX_QUESTIONS")
	if maxCount < defaultCount {
		maxCount = 25
	}
	cfg.Generator = GeneratorConfig{
		DefaultQuestionCount: defaultCount,
		MaxQuestionCount:     maxCount,
	}

	cfg.Exams = ExamsConfig{
		DuplicateEnabled: v.GetBool("EXAMS_DUPLICATE_ENABLED"),
	}

	cfg.Sheets = SheetsConfig{
		StorageDir:      v.GetString("SHEETS_STORAGE_DIR"),
		FontPath:        v.GetString("SHEETS_FONT_PATH"),
		SignedURLSecret: v.GetString("SHEETS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("SHEETS_SIGNED_URL_TTL"), 30*time.Minute),
		Retention:       parseDuration(v.GetString("SHEETS_RETENTION"), 24*time.Hour),
	}

	cfg.Dashboard = DashboardConfig{
		CacheTTL: parseDuration(v.GetString("DASHBOARD_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Bootstrap = BootstrapConfig{
		AdminEmail:    v.GetString("BOOTSTRAP_ADMIN_EMAIL"),
		AdminPassword: v.GetString("BOOTSTRAP_ADMIN_PASSWORD"),
		AdminName:     v.GetString("BOOTSTRAP_ADMIN_NAME"),
		SchoolName:    v.GetString("BOOTSTRAP_SCHOOL_NAME"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "exam_studio")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GEMINI_MODEL", "gemini-3-pro-preview")
	v.SetDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")
	v.SetDefault("GEMINI_TIMEOUT", "60s")

	v.SetDefault("GENERATOR_DEFAULT_QUESTIONS", 5)
	v.SetDefault("GENERATOR_MAX_QUESTIONS", 25)

	v.SetDefault("EXAMS_DUPLICATE_ENABLED", false)

	v.SetDefault("SHEETS_STORAGE_DIR", "./sheets")
	v.SetDefault("SHEETS_FONT_PATH", "")
	v.SetDefault("SHEETS_SIGNED_URL_SECRET", "dev_sheets_secret")
	v.SetDefault("SHEETS_SIGNED_URL_TTL", "30m")
	v.SetDefault("SHEETS_RETENTION", "24h")

	v.SetDefault("DASHBOARD_CACHE_TTL", "5m")

	v.SetDefault("BOOTSTRAP_ADMIN_EMAIL", "")
	v.SetDefault("BOOTSTRAP_ADMIN_PASSWORD", "")
	v.SetDefault("BOOTSTRAP_ADMIN_NAME", "System Administrator")
	v.SetDefault("BOOTSTRAP_SCHOOL_NAME", "Head Office")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
