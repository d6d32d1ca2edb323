// Package config provides environment configuration for a persona
// relay process.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for one relay process.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Persona identity
	Persona        string
	BotToken       string
	BotID          int64
	WebhookSecret  string
	AdminID        int64
	AllowedChats   []int64
	PlatformAPIURL string
	PromptDir      string

	// Redis settings
	RedisURL string

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings. Tokens are issued out of band; the relay only
	// verifies them.
	JWTSecret string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	DefaultLLM      string
	Model           string
	ReasoningModel  string
	Temperature     float64
	PresencePenalty float64
	HistoryLimit    int

	// Behavior tuning
	ReplyDelayMin    time.Duration
	ReplyDelayMax    time.Duration
	AutoReplyMin     time.Duration
	AutoReplyMax     time.Duration
	AutoReplyChance  float64
	CommentWindow    time.Duration
	FragmentPause    time.Duration
	FallbackText     string

	// Rate limiting (ops API)
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// Persona identity
		Persona:        getEnv("PERSONA", "jester"),
		BotToken:       getEnv("BOT_TOKEN", ""),
		BotID:          getInt64Env("BOT_ID", 0),
		WebhookSecret:  getEnv("WEBHOOK_SECRET", ""),
		AdminID:        getInt64Env("ADMIN_ID", 0),
		AllowedChats:   getInt64ListEnv("CHAT_IDS"),
		PlatformAPIURL: getEnv("PLATFORM_API_URL", "https://api.telegram.org"),
		PromptDir:      getEnv("PROMPT_DIR", ""),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		DefaultLLM:      getEnv("DEFAULT_LLM", "openai"),
		Model:           getEnv("MODEL", "gpt-4o"),
		ReasoningModel:  getEnv("REASONING_MODEL", "o1-mini"),
		Temperature:     getFloatEnv("TEMPERATURE", 1.0),
		PresencePenalty: getFloatEnv("PRESENCE_PENALTY", 0.4),
		HistoryLimit:    getIntEnv("HISTORY_LIMIT", 10),

		// Behavior
		ReplyDelayMin:   getDurationEnv("REPLY_DELAY_MIN", 15*time.Second),
		ReplyDelayMax:   getDurationEnv("REPLY_DELAY_MAX", 25*time.Second),
		AutoReplyMin:    getDurationEnv("AUTO_REPLY_DELAY_MIN", 60*time.Second),
		AutoReplyMax:    getDurationEnv("AUTO_REPLY_DELAY_MAX", 180*time.Second),
		AutoReplyChance: getFloatEnv("AUTO_REPLY_CHANCE", 0.5),
		CommentWindow:   getDurationEnv("COMMENT_MERGE_WINDOW", 10*time.Second),
		FragmentPause:   getDurationEnv("FRAGMENT_PAUSE", 700*time.Millisecond),
		FallbackText:    getEnv("FALLBACK_TEXT", "Something broke, try again later."),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getInt64ListEnv parses a comma or semicolon separated id list.
func getInt64ListEnv(key string) []int64 {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ';'
	})
	var ids []int64
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if id, err := strconv.ParseInt(f, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
