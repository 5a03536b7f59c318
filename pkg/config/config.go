package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	OpenAIRE   OpenAIREConfig
	Collector  CollectorConfig
	Alerts     AlertsConfig
	Redis      RedisConfig
	NATS       NATSConfig
	CloudWatch CloudWatchConfig
	S3         S3Config
	Security   SecurityConfig
	LogLevel   string
	LogDir     string
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    float64
	RateLimitBurst  int
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// OpenAIREConfig holds credentials and endpoints for the graph API.
type OpenAIREConfig struct {
	ClientID       string
	ClientSecret   string
	APIBaseURL     string
	AuthURL        string
	RequestTimeout time.Duration
	PageSize       int
}

// CollectorConfig controls pacing, retries, and scheduling of collection runs.
type CollectorConfig struct {
	OrganizationsFile string
	RequestDelay      time.Duration // minimum spacing between API requests
	MaxRetries        int
	BackoffBase       time.Duration
	BackoffCap        time.Duration
	Interval          time.Duration // 0 disables the built-in scheduler
	Parallelism       int           // 1 = sequential collection
	RunOnStart        bool
}

// AlertsConfig enumerates every rule threshold.
type AlertsConfig struct {
	PublicationDropPercent float64
	CriticalDropPercent    float64
	StaleDataDays          int
	DataFreshnessDays      int
	FreshnessCriticalDays  int
	UnavailableHours       int
	RecoveryPercent        float64
	RecoverySnapshots      int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
	PoolSize int
}

type NATSConfig struct {
	Enabled bool
	URL     string
}

type CloudWatchConfig struct {
	Enabled         bool
	Namespace       string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BufferSize      int
	FlushInterval   time.Duration
}

type S3Config struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	KeyPrefix       string
}

type SecurityConfig struct {
	AuthEnabled    bool
	AuthToken      string
	AllowedOrigins []string
}

func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	requestTimeout, err := parseDuration(getEnv("OPENAIRE_REQUEST_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid OPENAIRE_REQUEST_TIMEOUT: %w", err)
	}

	pageSize, err := getEnvInt("OPENAIRE_PAGE_SIZE", 100)
	if err != nil {
		return nil, err
	}

	requestDelay, err := parseDuration(getEnv("COLLECTOR_REQUEST_DELAY", "500ms"))
	if err != nil {
		return nil, fmt.Errorf("invalid COLLECTOR_REQUEST_DELAY: %w", err)
	}

	maxRetries, err := getEnvInt("COLLECTOR_MAX_RETRIES", 5)
	if err != nil {
		return nil, err
	}

	backoffBase, err := parseDuration(getEnv("COLLECTOR_BACKOFF_BASE", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid COLLECTOR_BACKOFF_BASE: %w", err)
	}

	backoffCap, err := parseDuration(getEnv("COLLECTOR_BACKOFF_CAP", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid COLLECTOR_BACKOFF_CAP: %w", err)
	}

	interval, err := parseDuration(getEnv("COLLECTION_INTERVAL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid COLLECTION_INTERVAL: %w", err)
	}

	parallelism, err := getEnvInt("COLLECTOR_PARALLELISM", 1)
	if err != nil {
		return nil, err
	}
	if parallelism < 1 {
		return nil, fmt.Errorf("COLLECTOR_PARALLELISM must be >= 1")
	}

	dropPercent, err := getEnvFloat("ALERT_PUBLICATION_DROP_PERCENT", 20)
	if err != nil {
		return nil, err
	}

	criticalDropPercent, err := getEnvFloat("ALERT_CRITICAL_DROP_PERCENT", 50)
	if err != nil {
		return nil, err
	}

	staleDays, err := getEnvInt("ALERT_STALE_DATA_DAYS", 30)
	if err != nil {
		return nil, err
	}

	freshnessDays, err := getEnvInt("ALERT_DATA_FRESHNESS_DAYS", 14)
	if err != nil {
		return nil, err
	}

	freshnessCriticalDays, err := getEnvInt("ALERT_DATA_FRESHNESS_CRITICAL_DAYS", 30)
	if err != nil {
		return nil, err
	}

	unavailableHours, err := getEnvInt("ALERT_UNAVAILABLE_HOURS", 6)
	if err != nil {
		return nil, err
	}

	recoveryPercent, err := getEnvFloat("ALERT_RECOVERY_PERCENT", 5)
	if err != nil {
		return nil, err
	}

	recoverySnapshots, err := getEnvInt("ALERT_RECOVERY_SNAPSHOTS", 7)
	if err != nil {
		return nil, err
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	redisPoolSize, err := getEnvInt("REDIS_POOL_SIZE", 10)
	if err != nil {
		return nil, err
	}

	cwBufferSize, err := getEnvInt("CLOUDWATCH_BUFFER_SIZE", 100)
	if err != nil {
		return nil, err
	}

	cwFlushInterval, err := parseDuration(getEnv("CLOUDWATCH_FLUSH_INTERVAL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid CLOUDWATCH_FLUSH_INTERVAL: %w", err)
	}

	rateLimitRPS, err := getEnvFloat("SERVER_RATE_LIMIT_RPS", 10)
	if err != nil {
		return nil, err
	}

	rateLimitBurst, err := getEnvInt("SERVER_RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimitRPS:    rateLimitRPS,
			RateLimitBurst:  rateLimitBurst,
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "research_monitor"),
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
		},
		OpenAIRE: OpenAIREConfig{
			ClientID:       os.Getenv("OPENAIRE_CLIENT_ID"),
			ClientSecret:   os.Getenv("OPENAIRE_CLIENT_SECRET"),
			APIBaseURL:     getEnv("OPENAIRE_API_URL", "https://api.openaire.eu/graph/v1/"),
			AuthURL:        getEnv("OPENAIRE_AUTH_URL", "https://aai.openaire.eu/oidc/token"),
			RequestTimeout: requestTimeout,
			PageSize:       pageSize,
		},
		Collector: CollectorConfig{
			OrganizationsFile: getEnv("ORGANIZATIONS_FILE", "organizations.yaml"),
			RequestDelay:      requestDelay,
			MaxRetries:        maxRetries,
			BackoffBase:       backoffBase,
			BackoffCap:        backoffCap,
			Interval:          interval,
			Parallelism:       parallelism,
			RunOnStart:        getEnvBool("COLLECTOR_RUN_ON_START", false),
		},
		Alerts: AlertsConfig{
			PublicationDropPercent: dropPercent,
			CriticalDropPercent:    criticalDropPercent,
			StaleDataDays:          staleDays,
			DataFreshnessDays:      freshnessDays,
			FreshnessCriticalDays:  freshnessCriticalDays,
			UnavailableHours:       unavailableHours,
			RecoveryPercent:        recoveryPercent,
			RecoverySnapshots:      recoverySnapshots,
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
			PoolSize: redisPoolSize,
		},
		NATS: NATSConfig{
			Enabled: getEnvBool("NATS_ENABLED", false),
			URL:     getEnv("NATS_URL", "nats://localhost:4222"),
		},
		CloudWatch: CloudWatchConfig{
			Enabled:         getEnvBool("CLOUDWATCH_ENABLED", false),
			Namespace:       getEnv("CLOUDWATCH_NAMESPACE", "ResearchMonitor/Collection"),
			Region:          getEnv("CLOUDWATCH_REGION", "eu-west-1"),
			Endpoint:        os.Getenv("CLOUDWATCH_ENDPOINT"),
			AccessKeyID:     os.Getenv("CLOUDWATCH_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("CLOUDWATCH_SECRET_ACCESS_KEY"),
			BufferSize:      cwBufferSize,
			FlushInterval:   cwFlushInterval,
		},
		S3: S3Config{
			Enabled:         getEnvBool("S3_ENABLED", false),
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "eu-west-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
			UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE", true),
			KeyPrefix:       getEnv("S3_KEY_PREFIX", "exports"),
		},
		Security: SecurityConfig{
			AuthEnabled:    getEnvBool("AUTH_ENABLED", false),
			AuthToken:      os.Getenv("AUTH_BEARER_TOKEN"),
			AllowedOrigins: getEnvList("WS_ALLOWED_ORIGINS"),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogDir:   os.Getenv("LOG_DIR"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.OpenAIRE.ClientID == "" {
		return fmt.Errorf("OPENAIRE_CLIENT_ID is required")
	}
	if c.OpenAIRE.ClientSecret == "" {
		return fmt.Errorf("OPENAIRE_CLIENT_SECRET is required")
	}
	if c.Alerts.PublicationDropPercent <= 0 || c.Alerts.PublicationDropPercent > 100 {
		return fmt.Errorf("ALERT_PUBLICATION_DROP_PERCENT must be in (0, 100]")
	}
	if c.Alerts.CriticalDropPercent < c.Alerts.PublicationDropPercent {
		return fmt.Errorf("ALERT_CRITICAL_DROP_PERCENT must be >= ALERT_PUBLICATION_DROP_PERCENT")
	}
	if c.Alerts.FreshnessCriticalDays < c.Alerts.DataFreshnessDays {
		return fmt.Errorf("ALERT_DATA_FRESHNESS_CRITICAL_DAYS must be >= ALERT_DATA_FRESHNESS_DAYS")
	}
	if c.Collector.MaxRetries < 0 {
		return fmt.Errorf("COLLECTOR_MAX_RETRIES must be >= 0")
	}
	if c.Collector.BackoffCap < c.Collector.BackoffBase {
		return fmt.Errorf("COLLECTOR_BACKOFF_CAP must be >= COLLECTOR_BACKOFF_BASE")
	}
	if c.Security.AuthEnabled && c.Security.AuthToken == "" {
		return fmt.Errorf("AUTH_BEARER_TOKEN is required when AUTH_ENABLED=true")
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when S3_ENABLED=true")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Database)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return parsed, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return parsed, nil
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	var items []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}
