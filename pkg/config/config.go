package config

import (
	"errors"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Store backends for the dispatch engine.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Notification transports.
const (
	TransportNone  = "none"
	TransportRedis = "redis"
	TransportKafka = "kafka"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Dispatch      DispatchConfig
	Geocoder      GeocoderConfig
	Notifications NotificationConfig
	Exports       ExportConfig
	Cache         CacheConfig
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds the shared secret used to verify access tokens issued by the account service.
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// DispatchConfig tunes the request lifecycle engine.
type DispatchConfig struct {
	Store       string
	LockTimeout time.Duration
}

// GeocoderConfig configures the reverse geocoding client.
type GeocoderConfig struct {
	Enabled   bool
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	CacheTTL  time.Duration
}

// NotificationConfig selects the delivery transport and its worker pool.
type NotificationConfig struct {
	Transport          string
	RedisChannelPrefix string
	KafkaBrokers       []string
	KafkaTopic         string
	Workers            int
	Retries            int
}

// ExportConfig toggles job-sheet exports.
type ExportConfig struct {
	Enabled bool
}

// CacheConfig governs the read-through cache for reference data.
type CacheConfig struct {
	Enabled    bool
	DefaultTTL time.Duration
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	parts := []string{
		"host=" + c.Host,
		"port=" + strconv.Itoa(c.Port),
		"user=" + c.User,
		"password=" + c.Password,
		"dbname=" + c.Name,
		"sslmode=" + c.SSLMode,
	}
	return strings.Join(parts, " ")
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
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Dispatch = DispatchConfig{
		Store:       strings.ToLower(v.GetString("DISPATCH_STORE")),
		LockTimeout: parseDuration(v.GetString("DISPATCH_LOCK_TIMEOUT"), 3*time.Second),
	}

	cfg.Geocoder = GeocoderConfig{
		Enabled:   v.GetBool("GEOCODER_ENABLED"),
		BaseURL:   v.GetString("GEOCODER_BASE_URL"),
		Timeout:   parseDuration(v.GetString("GEOCODER_TIMEOUT"), 5*time.Second),
		UserAgent: v.GetString("GEOCODER_USER_AGENT"),
		CacheTTL:  parseDuration(v.GetString("GEOCODER_CACHE_TTL"), 24*time.Hour),
	}

	workers := v.GetInt("NOTIFY_WORKERS")
	if workers <= 0 {
		workers = 2
	}
	cfg.Notifications = NotificationConfig{
		Transport:          strings.ToLower(v.GetString("NOTIFY_TRANSPORT")),
		RedisChannelPrefix: v.GetString("NOTIFY_REDIS_CHANNEL_PREFIX"),
		KafkaBrokers:       splitAndTrim(v.GetString("NOTIFY_KAFKA_BROKERS")),
		KafkaTopic:         v.GetString("NOTIFY_KAFKA_TOPIC"),
		Workers:            workers,
		Retries:            v.GetInt("NOTIFY_RETRIES"),
	}

	cfg.Exports = ExportConfig{
		Enabled: v.GetBool("ENABLE_EXPORTS"),
	}

	cfg.Cache = CacheConfig{
		Enabled:    v.GetBool("CACHE_ENABLED"),
		DefaultTTL: parseDuration(v.GetString("CACHE_DEFAULT_TTL"), 10*time.Minute),
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
	v.SetDefault("DB_NAME", "dispatch")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("DISPATCH_STORE", StorePostgres)
	v.SetDefault("DISPATCH_LOCK_TIMEOUT", "3s")

	v.SetDefault("GEOCODER_ENABLED", false)
	v.SetDefault("GEOCODER_BASE_URL", "https://nominatim.openstreetmap.org")
	v.SetDefault("GEOCODER_TIMEOUT", "5s")
	v.SetDefault("GEOCODER_USER_AGENT", "dispatch-api/1.0")
	v.SetDefault("GEOCODER_CACHE_TTL", "24h")

	v.SetDefault("NOTIFY_TRANSPORT", TransportNone)
	v.SetDefault("NOTIFY_REDIS_CHANNEL_PREFIX", "notifications:")
	v.SetDefault("NOTIFY_KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("NOTIFY_KAFKA_TOPIC", "dispatch.notifications")
	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_RETRIES", 3)

	v.SetDefault("ENABLE_EXPORTS", true)

	v.SetDefault("CACHE_ENABLED", true)
	v.SetDefault("CACHE_DEFAULT_TTL", "10m")
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
