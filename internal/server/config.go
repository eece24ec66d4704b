package server

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime configuration loaded from environment variables.
type Config struct {
	Port            string
	MaxUsersPerRoom int
	AllowedOrigins  []string
	DBPath          string
	RoomTTL         time.Duration
}

const (
	defaultPort            = "8080"
	defaultMaxUsersPerRoom = 12
	defaultAllowedOrigin   = "*"
	defaultDBPath          = "data/whiteboard.db"
	defaultRoomTTL         = 30 * time.Minute
)

// LoadConfig builds a Config instance using environment variables when present.
func LoadConfig() Config {
	cfg := Config{
		Port:            getEnv("PORT", defaultPort),
		MaxUsersPerRoom: defaultMaxUsersPerRoom,
		AllowedOrigins:  parseAllowedOrigins(getEnv("ALLOWED_ORIGINS", defaultAllowedOrigin)),
		DBPath:          getEnv("DB_PATH", defaultDBPath),
		RoomTTL:         defaultRoomTTL,
	}

	if rawUsers := os.Getenv("MAX_USERS_PER_ROOM"); rawUsers != "" {
		if v, err := strconv.Atoi(rawUsers); err == nil && v > 0 {
			cfg.MaxUsersPerRoom = v
		}
	}

	if rawTTL := os.Getenv("ROOM_TTL"); rawTTL != "" {
		if v, err := time.ParseDuration(rawTTL); err == nil && v > 0 {
			cfg.RoomTTL = v
		}
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseAllowedOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	var origins []string
	for _, origin := range parts {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		origins = []string{defaultAllowedOrigin}
	}
	return origins
}
