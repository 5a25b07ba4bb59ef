package config

import (
	"os"
	"strconv"
	"time"
)

type NotificationConfig struct {
	QueueName        string
	MaxAttempts      int
	MediaQueueName   string
	MediaMaxAttempts int
	PollTimeout      time.Duration
	ArchiveJobs      bool
	CacheTTL         time.Duration
	RateLimitMax     int
	RateWindow       time.Duration
}

func LoadNotificationConfig() *NotificationConfig {
	return &NotificationConfig{
		QueueName:        getEnv("NOTIFICATIONS_QUEUE", "notifications"),
		MaxAttempts:      getEnvAsInt("NOTIFICATIONS_MAX_ATTEMPTS", 3),
		MediaQueueName:   getEnv("MEDIA_QUEUE", "media"),
		MediaMaxAttempts: getEnvAsInt("MEDIA_MAX_ATTEMPTS", 5),
		PollTimeout:      getEnvAsDuration("NOTIFICATIONS_POLL_TIMEOUT", 5*time.Second),
		ArchiveJobs:      getEnvAsBool("NOTIFICATIONS_ARCHIVE_JOBS", false),
		CacheTTL:         getEnvAsDuration("COURSE_CACHE_TTL", 60*time.Second),
		RateLimitMax:     getEnvAsInt("LOGIN_RATE_LIMIT_MAX", 10),
		RateWindow:       getEnvAsDuration("LOGIN_RATE_LIMIT_WINDOW", 15*time.Minute),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
