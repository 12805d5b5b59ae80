package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aura-webinar/autoswitch/internal/models"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Auth          AuthConfig
	AWS           AWSConfig
	Switching     SwitchingConfig
	Telemetry     TelemetryConfig
	Observability ObservabilityConfig
	// Layouts are the named camera sets read from CAMERA_LAYOUTS_FILE.
	Layouts map[string][]models.Camera
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	ShutdownTimeout    time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/autoswitch?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AuthConfig holds the bootstrap keys stored (hashed) at startup.
type AuthConfig struct {
	OperatorKey string
	AnalyzerKey string
}

// AWSConfig holds AWS credentials and the archive bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ArchiveBucket        string
	PresignExpireMinutes int
}

// SwitchingConfig holds the decision engine weights and timers.
type SwitchingConfig struct {
	AudioWeight        float64
	EngagementWeight   float64
	SilenceTimeout     time.Duration
	FallbackCooldown   time.Duration
	FallbackConfidence float64
	ManualHold         time.Duration
	Transition         time.Duration
	EventLogRetention  int
	SessionRetention   time.Duration
	JanitorInterval    time.Duration
}

// TelemetryConfig holds smoothing windows and the simulated sources.
type TelemetryConfig struct {
	Simulation         bool
	SimulationSeed     uint64
	AudioInterval      time.Duration
	EngagementInterval time.Duration
	AudioWindow        int
	EngagementWindow   int
	WindowMaxAge       time.Duration
}

// ObservabilityConfig holds metrics and event log persistence settings.
type ObservabilityConfig struct {
	ServiceName      string
	MetricsEnabled   bool
	LogLevel         string
	EventBuffer      int
	EventBatchSize   int
	EventFlushPeriod time.Duration
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "12"))
	silence := getEnvDuration("SILENCE_TIMEOUT", 3*time.Second)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001"),
			ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "autoswitch"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
			MinConns: getEnvInt("DB_MIN_CONNS", 1),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: jwtExpire,
		},
		Auth: AuthConfig{
			OperatorKey: getEnv("OPERATOR_KEY", ""),
			AnalyzerKey: getEnv("ANALYZER_KEY", ""),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ArchiveBucket:        getEnv("AWS_S3_ARCHIVE_BUCKET", "autoswitch-archive"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Switching: SwitchingConfig{
			AudioWeight:        getEnvFloat("AUDIO_WEIGHT", 0.7),
			EngagementWeight:   getEnvFloat("ENGAGEMENT_WEIGHT", 0.3),
			SilenceTimeout:     silence,
			FallbackCooldown:   getEnvDuration("FALLBACK_COOLDOWN", silence),
			FallbackConfidence: getEnvFloat("FALLBACK_CONFIDENCE", 0.5),
			ManualHold:         getEnvDuration("MANUAL_HOLD", 10*time.Second),
			Transition:         getEnvDuration("TRANSITION_DURATION", 300*time.Millisecond),
			EventLogRetention:  getEnvInt("EVENT_LOG_RETENTION", 200),
			SessionRetention:   getEnvDuration("SESSION_RETENTION", time.Hour),
			JanitorInterval:    getEnvDuration("JANITOR_INTERVAL", time.Minute),
		},
		Telemetry: TelemetryConfig{
			Simulation:         getEnvBool("TELEMETRY_SIMULATION", false),
			SimulationSeed:     uint64(getEnvInt("SIMULATION_SEED", 1)),
			AudioInterval:      getEnvDuration("AUDIO_SAMPLE_INTERVAL", 100*time.Millisecond),
			EngagementInterval: getEnvDuration("ENGAGEMENT_SAMPLE_INTERVAL", 500*time.Millisecond),
			AudioWindow:        getEnvInt("AUDIO_WINDOW", 10),
			EngagementWindow:   getEnvInt("ENGAGEMENT_WINDOW", 10),
			WindowMaxAge:       getEnvDuration("WINDOW_MAX_AGE", 2*time.Second),
		},
		Observability: ObservabilityConfig{
			ServiceName:      getEnv("SERVICE_NAME", "autoswitch"),
			MetricsEnabled:   getEnvBool("METRICS_ENABLED", true),
			LogLevel:         getEnv("LOG_LEVEL", "info"),
			EventBuffer:      getEnvInt("EVENT_LOG_BUFFER", 1024),
			EventBatchSize:   getEnvInt("EVENT_LOG_BATCH", 64),
			EventFlushPeriod: getEnvDuration("EVENT_LOG_FLUSH_INTERVAL", time.Second),
		},
	}

	if path := getEnv("CAMERA_LAYOUTS_FILE", ""); path != "" {
		layouts, err := LoadLayouts(path)
		if err != nil {
			return nil, err
		}
		cfg.Layouts = layouts
	}
	return cfg, nil
}

// layoutFile is the YAML shape of CAMERA_LAYOUTS_FILE.
type layoutFile struct {
	Layouts map[string][]layoutCamera `yaml:"layouts"`
}

// layoutCamera defaults auto_switch_enabled to true when omitted.
type layoutCamera struct {
	ID                  string          `yaml:"camera_id"`
	Name                string          `yaml:"name"`
	Position            models.Position `yaml:"position"`
	Priority            int             `yaml:"priority"`
	AudioThreshold      float64         `yaml:"audio_threshold"`
	EngagementThreshold float64         `yaml:"engagement_threshold"`
	AutoSwitchEnabled   *bool           `yaml:"auto_switch_enabled"`
	Participants        []string        `yaml:"participants"`
}

// LoadLayouts reads named camera sets from a YAML file.
func LoadLayouts(path string) (map[string][]models.Camera, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read camera layouts: %w", err)
	}
	return ParseLayouts(raw)
}

// ParseLayouts decodes the layouts document. Each layout must name at least one camera.
func ParseLayouts(raw []byte) (map[string][]models.Camera, error) {
	var f layoutFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse camera layouts: %w", err)
	}
	out := make(map[string][]models.Camera, len(f.Layouts))
	for name, cams := range f.Layouts {
		if len(cams) == 0 {
			return nil, fmt.Errorf("%w: layout %q has no cameras", models.ErrInvalidConfiguration, name)
		}
		list := make([]models.Camera, 0, len(cams))
		for _, c := range cams {
			list = append(list, models.Camera{
				ID:                  c.ID,
				Name:                c.Name,
				Position:            c.Position,
				Priority:            c.Priority,
				AudioThreshold:      c.AudioThreshold,
				EngagementThreshold: c.EngagementThreshold,
				AutoSwitchEnabled:   c.AutoSwitchEnabled == nil || *c.AutoSwitchEnabled,
				Participants:        c.Participants,
			})
		}
		out[name] = list
	}
	return out, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("1500ms") or bare milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
