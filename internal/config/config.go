package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the deployment surface: a YAML file overlaid by environment
// variables, every knob defaulted. Durations are plain seconds, matching the
// environment variable convention.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Realtime Realtime `yaml:"realtime"`
}

// Realtime carries the live-engine ceilings and defaults.
type Realtime struct {
	MaxRooms            int `yaml:"max_rooms"`
	MaxPlayersPerRoom   int `yaml:"max_players_per_room"`
	MaxConnectionsPerIP int `yaml:"max_connections_per_ip"`

	RateLimitWindow      int `yaml:"rate_limit_window"` // seconds
	MaxRequestsPerWindow int `yaml:"max_requests_per_window"`

	CleanupInterval   int `yaml:"cleanup_interval"`    // seconds
	HeartbeatInterval int `yaml:"heartbeat_interval"`  // seconds
	SessionMaxAge     int `yaml:"session_max_age"`     // seconds
	PlayerGracePeriod int `yaml:"player_grace_period"` // seconds

	DefaultQuestionTime int     `yaml:"default_question_time"` // seconds
	BasePoints          int     `yaml:"base_points"`
	TimeBonusMultiplier float64 `yaml:"time_bonus_multiplier"`
	LeaderboardSize     int     `yaml:"leaderboard_size"`
	RoomCodeLength      int     `yaml:"room_code_length"`

	MaxMemoryMB     int `yaml:"max_memory_mb"`
	WarningMemoryMB int `yaml:"warning_memory_mb"`
}

// Default returns the stock configuration.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Realtime = Realtime{
		MaxRooms:             100,
		MaxPlayersPerRoom:    50,
		MaxConnectionsPerIP:  100,
		RateLimitWindow:      60,
		MaxRequestsPerWindow: 30,
		CleanupInterval:      300,
		HeartbeatInterval:    30,
		SessionMaxAge:        7200,
		PlayerGracePeriod:    60,
		DefaultQuestionTime:  30,
		BasePoints:           100,
		TimeBonusMultiplier:  2.0,
		LeaderboardSize:      10,
		RoomCodeLength:       8,
		MaxMemoryMB:          1000,
		WarningMemoryMB:      750,
	}
	return cfg
}

// Load builds the effective configuration: defaults, then the YAML file at
// path if it exists, then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		case !os.IsNotExist(err):
			return cfg, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)

	rt := &c.Realtime
	rt.MaxRooms = getEnvInt("MAX_ROOMS", rt.MaxRooms)
	rt.MaxPlayersPerRoom = getEnvInt("MAX_PLAYERS_PER_ROOM", rt.MaxPlayersPerRoom)
	rt.MaxConnectionsPerIP = getEnvInt("MAX_CONNECTIONS_PER_IP", rt.MaxConnectionsPerIP)
	rt.RateLimitWindow = getEnvInt("RATE_LIMIT_WINDOW", rt.RateLimitWindow)
	rt.MaxRequestsPerWindow = getEnvInt("MAX_REQUESTS_PER_WINDOW", rt.MaxRequestsPerWindow)
	rt.CleanupInterval = getEnvInt("CLEANUP_INTERVAL", rt.CleanupInterval)
	rt.HeartbeatInterval = getEnvInt("HEARTBEAT_INTERVAL", rt.HeartbeatInterval)
	rt.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", rt.SessionMaxAge)
	rt.PlayerGracePeriod = getEnvInt("PLAYER_GRACE_PERIOD", rt.PlayerGracePeriod)
	rt.DefaultQuestionTime = getEnvInt("DEFAULT_QUESTION_TIME", rt.DefaultQuestionTime)
	rt.BasePoints = getEnvInt("DEFAULT_BASE_POINTS", rt.BasePoints)
	rt.TimeBonusMultiplier = getEnvFloat("DEFAULT_TIME_BONUS_MULT", rt.TimeBonusMultiplier)
	rt.LeaderboardSize = getEnvInt("LEADERBOARD_SIZE", rt.LeaderboardSize)
	rt.RoomCodeLength = getEnvInt("ROOM_CODE_LENGTH", rt.RoomCodeLength)
	rt.MaxMemoryMB = getEnvInt("MAX_MEMORY_MB", rt.MaxMemoryMB)
	rt.WarningMemoryMB = getEnvInt("WARNING_MEMORY_MB", rt.WarningMemoryMB)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
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
