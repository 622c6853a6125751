package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Extraction holds the tunables for meeting detection. Passed into the
// extractor at construction so deployments can tune keyword lists and
// thresholds without code changes.
type Extraction struct {
	Keywords            []string
	ConfidenceThreshold float64
	DedupWindow         time.Duration
}

// Proactive holds the notification scheduler tunables.
type Proactive struct {
	PollInterval    time.Duration
	PrepLeadTime    time.Duration
	PrepJitter      time.Duration
	FollowupDelay   time.Duration
	FollowupHorizon time.Duration
	ActiveWindow    time.Duration
	SendTimeout     time.Duration
}

type Config struct {
	DatabaseURI   string
	TelegramToken string
	AIAPIKey      string
	AIBaseURL     string
	AIModel       string
	LogLevel      string

	Extraction Extraction
	Proactive  Proactive
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional in production
	}

	return &Config{
		DatabaseURI:   os.Getenv("DATABASE_URI"),
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
		AIAPIKey:      os.Getenv("AI_API_KEY"),
		AIBaseURL:     getEnvOrDefault("AI_BASE_URL", "https://openrouter.ai/api/v1"),
		AIModel:       getEnvOrDefault("AI_MODEL", "openai/gpt-4o-mini"),
		LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
		Extraction: Extraction{
			Keywords:            getEnvList("EXTRACTION_KEYWORDS"),
			ConfidenceThreshold: getEnvFloat("EXTRACTION_CONFIDENCE_THRESHOLD", 0.5),
			DedupWindow:         getEnvMinutes("SCHEDULE_DEDUP_WINDOW_MINUTES", 5),
		},
		Proactive: Proactive{
			PollInterval:    getEnvMinutes("PROACTIVE_POLL_INTERVAL_MINUTES", 5),
			PrepLeadTime:    getEnvMinutes("PREP_REMINDER_LEAD_MINUTES", 30),
			PrepJitter:      getEnvMinutes("PREP_REMINDER_JITTER_MINUTES", 5),
			FollowupDelay:   getEnvMinutes("FOLLOWUP_DELAY_MINUTES", 5),
			FollowupHorizon: getEnvMinutes("FOLLOWUP_HORIZON_MINUTES", 8*60),
			ActiveWindow:    getEnvMinutes("ACTIVE_CONVERSATION_WINDOW_MINUTES", 30),
			SendTimeout:     getEnvSeconds("SEND_TIMEOUT_SECONDS", 20),
		},
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvMinutes(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Minute
}

func getEnvSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Second
}

// getEnvList parses a comma-separated value; empty entries are dropped.
// Returns nil when unset so callers can apply their own defaults.
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
