package app

import (
	"os"
	"sync/atomic"

	"github.com/shirou/gopsutil/v3/process"
)

// metrics are process-lifetime counters, updated lock-free from every path.
type metrics struct {
	totalConnections   atomic.Int64
	messagesSent       atomic.Int64
	errors             atomic.Int64
	disconnections     atomic.Int64
	questionsProcessed atomic.Int64
	answersProcessed   atomic.Int64
}

// MetricsSnapshot is the wire view of the engine counters.
type MetricsSnapshot struct {
	TotalConnections   int64 `json:"total_connections"`
	MessagesSent       int64 `json:"messages_sent"`
	Errors             int64 `json:"errors"`
	Disconnections     int64 `json:"disconnections"`
	QuestionsProcessed int64 `json:"questions_processed"`
	AnswersProcessed   int64 `json:"answers_processed"`
}

func (m *metrics) snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TotalConnections:   m.totalConnections.Load(),
		MessagesSent:       m.messagesSent.Load(),
		Errors:             m.errors.Load(),
		Disconnections:     m.disconnections.Load(),
		QuestionsProcessed: m.questionsProcessed.Load(),
		AnswersProcessed:   m.answersProcessed.Load(),
	}
}

// RoomSummary is one row of the /stats room listing.
type RoomSummary struct {
	RoomCode    string  `json:"room_code"`
	IsActive    bool    `json:"is_active"`
	PlayerCount int     `json:"player_count"`
	HasQuestion bool    `json:"has_question"`
	CreatedAt   float64 `json:"created_at"`
}

// StatsSnapshot aggregates live-session statistics for the query API.
type StatsSnapshot struct {
	TotalSessions         int             `json:"total_sessions"`
	ActiveSessions        int             `json:"active_sessions"`
	TotalConnectedPlayers int             `json:"total_connected_players"`
	Rooms                 []RoomSummary   `json:"rooms"`
	Metrics               MetricsSnapshot `json:"metrics"`
}

// RoomInfo is the public snapshot of one room for validation queries.
type RoomInfo struct {
	RoomCode           string  `json:"room_code"`
	IsActive           bool    `json:"is_active"`
	PlayerCount        int     `json:"player_count"`
	HasCurrentQuestion bool    `json:"has_current_question"`
	CreatedAt          float64 `json:"created_at"`
}

// HealthLimits echoes the configured ceilings in health reports.
type HealthLimits struct {
	MaxRooms            int `json:"max_rooms"`
	MaxPlayersPerRoom   int `json:"max_players_per_room"`
	MaxConnectionsPerIP int `json:"max_connections_per_ip"`
}

// HealthSnapshot summarizes process health for monitoring.
type HealthSnapshot struct {
	Status        string          `json:"status"`
	ActiveRooms   int             `json:"active_rooms"`
	TotalPlayers  int             `json:"total_players"`
	MemoryUsageMB float64         `json:"memory_usage_mb"`
	Metrics       MetricsSnapshot `json:"metrics"`
	Limits        HealthLimits    `json:"limits"`
	Message       string          `json:"message,omitempty"`
}

const (
	HealthStatusHealthy = "healthy"
	HealthStatusWarning = "warning"
	HealthStatusError   = "error"
)

// processMemoryMB reads the process resident set size in megabytes.
func processMemoryMB() (float64, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	info, err := proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return float64(info.RSS) / 1024 / 1024, nil
}
