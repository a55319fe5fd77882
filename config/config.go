package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Zoom       ZoomConfig
	OpenAI     OpenAIConfig
	YouTube    YouTubeConfig
	Google     GoogleConfig
	Notion     NotionConfig
	Slack      SlackConfig
	Dashboard  DashboardConfig
	Processing ProcessingConfig
	AWS        AWSConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ZoomConfig holds Server-to-Server OAuth credentials and the shared
// webhook secret used for signature verification.
type ZoomConfig struct {
	AccountID          string
	ClientID           string
	ClientSecret       string
	WebhookSecretToken string
}

// OpenAIConfig holds API key and model names for transcription and text generation.
type OpenAIConfig struct {
	APIKey       string
	WhisperModel string
	GPTModel     string
}

// YouTubeConfig holds OAuth refresh-token credentials for video uploads.
type YouTubeConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	CategoryID   string
}

// GoogleConfig holds service-account credentials for Sheets and Calendar.
type GoogleConfig struct {
	ServiceAccountEmail string
	PrivateKeyFile      string // PEM-encoded RSA key
	SpreadsheetID       string
	CalendarID          string
}

// NotionConfig holds the integration token and target database ids.
type NotionConfig struct {
	APIKey      string
	ClientDBID  string
	MeetingDBID string
}

// SlackConfig for outbound notifications via incoming webhook.
type SlackConfig struct {
	WebhookURL string
	Enabled    bool
}

// DashboardConfig guards the management API with basic auth.
// PasswordHash is a bcrypt hash; empty disables the guard.
type DashboardConfig struct {
	Username     string
	PasswordHash string
}

// ProcessingConfig holds pipeline behavior settings.
type ProcessingConfig struct {
	DownloadDir       string
	Language          string
	AutoDelete        bool
	WorkerConcurrency int
	SweepIntervalMin  int
	PromptsDir        string
}

// AWSConfig holds optional S3 archival settings for raw media.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	ArchiveBucket   string
	ArchiveEnabled  bool
}

// DSN returns the PostgreSQL connection string.
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
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "meetscribe"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Zoom: ZoomConfig{
			AccountID:          getEnv("ZOOM_ACCOUNT_ID", ""),
			ClientID:           getEnv("ZOOM_CLIENT_ID", ""),
			ClientSecret:       getEnv("ZOOM_CLIENT_SECRET", ""),
			WebhookSecretToken: getEnv("ZOOM_WEBHOOK_SECRET_TOKEN", ""),
		},
		OpenAI: OpenAIConfig{
			APIKey:       getEnv("OPENAI_API_KEY", ""),
			WhisperModel: getEnv("OPENAI_WHISPER_MODEL", "whisper-1"),
			GPTModel:     getEnv("OPENAI_GPT_MODEL", "gpt-4-turbo-preview"),
		},
		YouTube: YouTubeConfig{
			ClientID:     getEnv("YOUTUBE_CLIENT_ID", ""),
			ClientSecret: getEnv("YOUTUBE_CLIENT_SECRET", ""),
			RefreshToken: getEnv("YOUTUBE_REFRESH_TOKEN", ""),
			CategoryID:   getEnv("YOUTUBE_CATEGORY_ID", "22"),
		},
		Google: GoogleConfig{
			ServiceAccountEmail: getEnv("GOOGLE_SA_EMAIL", ""),
			PrivateKeyFile:      getEnv("GOOGLE_SA_PRIVATE_KEY_FILE", "credentials/service_account.pem"),
			SpreadsheetID:       getEnv("GOOGLE_SHEETS_SPREADSHEET_ID", ""),
			CalendarID:          getEnv("GOOGLE_CALENDAR_ID", "primary"),
		},
		Notion: NotionConfig{
			APIKey:      getEnv("NOTION_API_KEY", ""),
			ClientDBID:  getEnv("NOTION_CLIENT_DB_ID", ""),
			MeetingDBID: getEnv("NOTION_MEETING_DB_ID", ""),
		},
		Slack: SlackConfig{
			WebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
			Enabled:    getEnvBool("SLACK_ENABLED", false),
		},
		Dashboard: DashboardConfig{
			Username:     getEnv("DASHBOARD_USERNAME", "admin"),
			PasswordHash: getEnv("DASHBOARD_PASSWORD_HASH", ""),
		},
		Processing: ProcessingConfig{
			DownloadDir:       getEnv("DOWNLOAD_DIR", "downloads"),
			Language:          getEnv("TRANSCRIPTION_LANGUAGE", "ja"),
			AutoDelete:        getEnvBool("AUTO_DELETE_AFTER_PROCESSING", true),
			WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
			SweepIntervalMin:  getEnvInt("SWEEP_INTERVAL_MINUTES", 60),
			PromptsDir:        getEnv("PROMPTS_DIR", "prompts"),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ArchiveBucket:   getEnv("AWS_S3_ARCHIVE_BUCKET", ""),
			ArchiveEnabled:  getEnvBool("ARCHIVE_RAW_MEDIA", false),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}
