package config

import (
	"errors"
	"io/fs"
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
	Env             string
	Port            int
	APIPrefix       string
	ShutdownTimeout time.Duration

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Cache     CacheConfig
	Scheduler SchedulerConfig
	Events    EventsConfig
	Tracing   TracingConfig
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	ApplicationName string
	ConnectTimeout  time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	AutoMigrate     bool
}

type RedisConfig struct {
	Host        string
	Port        int
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig toggles the Redis-backed schedule summary cache.
type CacheConfig struct {
	Enabled    bool
	SummaryTTL time.Duration
}

// SchedulerConfig carries the tunable thresholds of the timetable engine.
type SchedulerConfig struct {
	CapacityCriticalPercent float64
	MaxSwapAttempts         int
	GapRepairIterations     int
	TeacherWeeklyLimit      int
	MorningCutoff           int
	RulesFile               string
	DetectConcurrency       int
}

// EventsConfig sizes the in-process event worker pool.
type EventsConfig struct {
	Workers    int
	MaxRetries int
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	SamplerRatio float64
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return build(v), nil
}

func build(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.ShutdownTimeout = parseDuration(v.GetString("SHUTDOWN_TIMEOUT"), 10*time.Second)

	cfg.Database = DatabaseConfig{
		Host:            v.GetString("DB_HOST"),
		Port:            v.GetInt("DB_PORT"),
		User:            v.GetString("DB_USER"),
		Password:        v.GetString("DB_PASSWORD"),
		Name:            v.GetString("DB_NAME"),
		SSLMode:         v.GetString("DB_SSL_MODE"),
		ApplicationName: strings.TrimSpace(v.GetString("DB_APPLICATION_NAME")),
		ConnectTimeout:  parseDuration(v.GetString("DB_CONNECT_TIMEOUT"), 5*time.Second),
		MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		ConnMaxLifetime: parseDuration(v.GetString("DB_CONN_MAX_LIFETIME"), time.Hour),
		ConnMaxIdleTime: parseDuration(v.GetString("DB_CONN_MAX_IDLE_TIME"), 30*time.Minute),
		AutoMigrate:     v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:        v.GetString("REDIS_HOST"),
		Port:        v.GetInt("REDIS_PORT"),
		Password:    v.GetString("REDIS_PASSWORD"),
		DB:          v.GetInt("REDIS_DB"),
		PoolSize:    v.GetInt("REDIS_POOL_SIZE"),
		DialTimeout: parseDuration(v.GetString("REDIS_DIAL_TIMEOUT"), 5*time.Second),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled:    v.GetBool("ENABLE_CACHE"),
		SummaryTTL: parseDuration(v.GetString("SUMMARY_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Scheduler = SchedulerConfig{
		CapacityCriticalPercent: v.GetFloat64("SCHEDULER_CAPACITY_CRITICAL_PCT"),
		MaxSwapAttempts:         v.GetInt("SCHEDULER_MAX_SWAP_ATTEMPTS"),
		GapRepairIterations:     v.GetInt("SCHEDULER_GAP_REPAIR_ITERATIONS"),
		TeacherWeeklyLimit:      v.GetInt("SCHEDULER_TEACHER_WEEKLY_LIMIT"),
		MorningCutoff:           v.GetInt("SCHEDULER_MORNING_CUTOFF"),
		RulesFile:               strings.TrimSpace(v.GetString("SCHEDULER_RULES_FILE")),
		DetectConcurrency:       v.GetInt("SCHEDULER_DETECT_CONCURRENCY"),
	}

	cfg.Events = EventsConfig{
		Workers:    v.GetInt("EVENTS_WORKERS"),
		MaxRetries: v.GetInt("EVENTS_RETRIES"),
	}

	cfg.Tracing = TracingConfig{
		Enabled:      v.GetBool("OTEL_ENABLED"),
		ServiceName:  v.GetString("OTEL_SERVICE_NAME"),
		OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SamplerRatio: v.GetFloat64("OTEL_SAMPLER_RATIO"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "sma_timetable")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_APPLICATION_NAME", "sma-timetable")
	v.SetDefault("DB_CONNECT_TIMEOUT", "5s")
	v.SetDefault("DB_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DB_CONN_MAX_IDLE_TIME", "30m")
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("SUMMARY_CACHE_TTL", "5m")

	v.SetDefault("SCHEDULER_CAPACITY_CRITICAL_PCT", 20.0)
	v.SetDefault("SCHEDULER_MAX_SWAP_ATTEMPTS", 200)
	v.SetDefault("SCHEDULER_GAP_REPAIR_ITERATIONS", 12)
	v.SetDefault("SCHEDULER_TEACHER_WEEKLY_LIMIT", 25)
	v.SetDefault("SCHEDULER_MORNING_CUTOFF", 4)
	v.SetDefault("SCHEDULER_RULES_FILE", "")
	v.SetDefault("SCHEDULER_DETECT_CONCURRENCY", 4)

	v.SetDefault("EVENTS_WORKERS", 2)
	v.SetDefault("EVENTS_RETRIES", 3)

	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "sma-timetable")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_SAMPLER_RATIO", 1.0)
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
