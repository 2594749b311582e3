package app

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"quizlive/internal/domain"
)

// Conn is one bidirectional channel to a connected party. Implementations
// must be safe for concurrent Send calls.
type Conn interface {
	Send(data []byte) error
	Close(code int, reason string) error
}

// Close codes mirrored from the WebSocket protocol so the engine can pick a
// reason without depending on any transport package.
const (
	CloseNormal          = 1000
	ClosePolicyViolation = 1008
)

// RoomRegistry owns the set of live rooms keyed by room code.
type RoomRegistry interface {
	Create(code string, room *Room)
	Get(code string) (*Room, bool)
	Delete(code string)
	Exists(code string) bool
	Count() int
	All() []*Room
}

// RateLimiter admits or rejects connection attempts per source address.
type RateLimiter interface {
	Allow(ctx context.Context, addr string) bool
	Sweep(ctx context.Context)
}

// Config carries every engine ceiling and default. Zero values take
// DefaultConfig's, except the sweep intervals, where zero disables the loop.
type Config struct {
	MaxRooms            int
	MaxPlayersPerRoom   int
	MaxConnectionsPerIP int
	RoomCodeLength      int

	DefaultQuestionTime int // seconds
	BasePoints          int
	TimeBonusMultiplier float64
	LeaderboardSize     int
	AnswerUpdateBatch   int

	GracePeriod       time.Duration
	CleanupInterval   time.Duration
	HeartbeatInterval time.Duration
	SessionMaxAge     time.Duration

	HostSendRetries   int
	PlayerSendRetries int

	MemoryLimitMB float64
	MemoryWarnMB  float64
}

// DefaultConfig returns the stock deployment ceilings.
func DefaultConfig() Config {
	return Config{
		MaxRooms:            100,
		MaxPlayersPerRoom:   50,
		MaxConnectionsPerIP: 100,
		RoomCodeLength:      8,
		DefaultQuestionTime: 30,
		BasePoints:          100,
		TimeBonusMultiplier: 2,
		LeaderboardSize:     10,
		AnswerUpdateBatch:   5,
		GracePeriod:         60 * time.Second,
		CleanupInterval:     5 * time.Minute,
		HeartbeatInterval:   30 * time.Second,
		SessionMaxAge:       2 * time.Hour,
		HostSendRetries:     2,
		PlayerSendRetries:   1,
		MemoryLimitMB:       1000,
		MemoryWarnMB:        750,
	}
}

type registeredConn struct {
	conn Conn
	addr string
}

// Engine is the connection manager: it owns every live channel handle,
// orchestrates the connect/disconnect lifecycle, dispatches messages, and
// runs the cleanup and heartbeat sweeps. Room aggregates are owned by the
// registry; the engine holds only non-owning channel references.
type Engine struct {
	cfg     Config
	rooms   RoomRegistry
	limiter RateLimiter
	ids     *IdentityGenerator
	logger  *slog.Logger
	now     func() time.Time

	// retryUnit overrides the backoff unit for delivery retries; zero means
	// the per-path default. Set only by tests.
	retryUnit time.Duration

	mu        sync.Mutex
	stopped   bool
	hosts     map[string]registeredConn            // room code -> host channel
	players   map[string]map[string]registeredConn // room code -> participant id -> channel
	addrConns map[string]int                       // source address -> live channels

	metrics metrics
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewEngine constructs the engine and starts its background sweeps. Call
// Stop on shutdown.
func NewEngine(cfg Config, rooms RoomRegistry, limiter RateLimiter, logger *slog.Logger) *Engine {
	return newEngineWithClock(cfg, rooms, limiter, logger, time.Now)
}

// NewEngineWithClock is test-only for deterministic timestamps.
func NewEngineWithClock(cfg Config, rooms RoomRegistry, limiter RateLimiter, logger *slog.Logger, now func() time.Time) *Engine {
	return newEngineWithClock(cfg, rooms, limiter, logger, now)
}

func newEngineWithClock(cfg Config, rooms RoomRegistry, limiter RateLimiter, logger *slog.Logger, now func() time.Time) *Engine {
	def := DefaultConfig()
	if cfg.MaxRooms <= 0 {
		cfg.MaxRooms = def.MaxRooms
	}
	if cfg.MaxPlayersPerRoom <= 0 {
		cfg.MaxPlayersPerRoom = def.MaxPlayersPerRoom
	}
	if cfg.MaxConnectionsPerIP <= 0 {
		cfg.MaxConnectionsPerIP = def.MaxConnectionsPerIP
	}
	if cfg.RoomCodeLength <= 0 {
		cfg.RoomCodeLength = def.RoomCodeLength
	}
	if cfg.DefaultQuestionTime <= 0 {
		cfg.DefaultQuestionTime = def.DefaultQuestionTime
	}
	if cfg.BasePoints <= 0 {
		cfg.BasePoints = def.BasePoints
	}
	if cfg.TimeBonusMultiplier <= 0 {
		cfg.TimeBonusMultiplier = def.TimeBonusMultiplier
	}
	if cfg.AnswerUpdateBatch <= 0 {
		cfg.AnswerUpdateBatch = def.AnswerUpdateBatch
	}
	if cfg.LeaderboardSize <= 0 {
		cfg.LeaderboardSize = def.LeaderboardSize
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = def.GracePeriod
	}
	if cfg.SessionMaxAge <= 0 {
		cfg.SessionMaxAge = def.SessionMaxAge
	}
	if cfg.HostSendRetries <= 0 {
		cfg.HostSendRetries = def.HostSendRetries
	}
	if cfg.PlayerSendRetries <= 0 {
		cfg.PlayerSendRetries = def.PlayerSendRetries
	}
	if cfg.MemoryLimitMB <= 0 {
		cfg.MemoryLimitMB = def.MemoryLimitMB
	}
	if cfg.MemoryWarnMB <= 0 {
		cfg.MemoryWarnMB = def.MemoryWarnMB
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		cfg:       cfg,
		rooms:     rooms,
		limiter:   limiter,
		ids:       NewIdentityGenerator(cfg.RoomCodeLength),
		logger:    logger,
		now:       now,
		hosts:     make(map[string]registeredConn),
		players:   make(map[string]map[string]registeredConn),
		addrConns: make(map[string]int),
		stopCh:    make(chan struct{}),
	}

	if e.cfg.CleanupInterval > 0 {
		e.wg.Add(1)
		go e.cleanupLoop()
	}
	if e.cfg.HeartbeatInterval > 0 {
		e.wg.Add(1)
		go e.heartbeatLoop()
	}
	return e
}

// Stop halts the background sweeps and waits for in-flight work. Safe to
// call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()
	close(e.stopCh)
	e.wg.Wait()
}

// spawn runs fn on a tracked goroutine, unless the engine is already
// stopping: Stop flips the flag before waiting, so the WaitGroup never grows
// after the wait begins.
func (e *Engine) spawn(fn func()) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

// RoomOwnedByOther reports whether a room code is already claimed by a
// different host identity.
func (e *Engine) RoomOwnedByOther(roomCode, hostID string) bool {
	room, ok := e.rooms.Get(roomCode)
	return ok && room.HostID() != hostID
}

// ConnectHost admits a host channel and creates its room. On rejection the
// channel is closed with a reason and a matching sentinel error is returned;
// no session state survives a rejection.
func (e *Engine) ConnectHost(conn Conn, hostID, addr string) (string, error) {
	if !e.limiter.Allow(context.Background(), addr) {
		e.reject(conn, "Rate limit exceeded")
		return "", domain.ErrRateLimited
	}
	if !e.addrAdmit(addr) {
		e.reject(conn, "Too many connections from your address")
		return "", domain.ErrTooManyConnections
	}
	if e.rooms.Count() >= e.cfg.MaxRooms {
		e.addrRelease(addr)
		e.reject(conn, "Maximum number of rooms reached")
		return "", domain.ErrRoomCapacity
	}

	code, err := e.ids.RoomCode(e.rooms.Exists)
	if err != nil {
		e.addrRelease(addr)
		e.reject(conn, "Failed to generate room code")
		e.logger.Error("room code generation failed", "err", err)
		return "", err
	}

	room := newRoom(code, hostID, domain.RoomConfig{
		QuestionTimeLimit:   e.cfg.DefaultQuestionTime,
		BasePoints:          e.cfg.BasePoints,
		TimeBonusMultiplier: e.cfg.TimeBonusMultiplier,
	}, e.now)
	e.rooms.Create(code, room)

	e.mu.Lock()
	e.hosts[code] = registeredConn{conn: conn, addr: addr}
	e.players[code] = make(map[string]registeredConn)
	e.mu.Unlock()
	e.metrics.totalConnections.Add(1)

	e.sendToHost(code, domain.NewRoomCreated(code))
	e.logger.Info("host created room", "room_code", code, "host_id", hostID)
	return code, nil
}

// ConnectPlayer admits a player channel into an open room. Broadcasts the
// join to the other players and the new count to the host.
func (e *Engine) ConnectPlayer(conn Conn, roomCode, displayName, addr string) (string, error) {
	name := strings.TrimSpace(displayName)
	if n := utf8.RuneCountInString(name); n < 1 || n > 20 {
		e.reject(conn, "Username must be 1-20 characters")
		return "", domain.ErrInvalidName
	}

	room, ok := e.rooms.Get(roomCode)
	if !ok || !room.IsOpen() {
		e.reject(conn, "Room doesn't exist or is no longer active")
		return "", domain.ErrRoomNotFound
	}
	if !e.limiter.Allow(context.Background(), addr) {
		e.reject(conn, "Rate limit exceeded")
		return "", domain.ErrRateLimited
	}
	if !e.addrAdmit(addr) {
		e.reject(conn, "Too many connections from your address")
		return "", domain.ErrTooManyConnections
	}
	if room.ConnectedCount() >= e.cfg.MaxPlayersPerRoom {
		e.addrRelease(addr)
		e.reject(conn, "Room is full")
		return "", domain.ErrRoomFull
	}

	id, err := e.ids.ParticipantID(roomCode, name, room.hasParticipant)
	if err != nil {
		e.addrRelease(addr)
		e.reject(conn, "Failed to generate player ID")
		e.logger.Error("participant id generation failed", "room_code", roomCode, "err", err)
		return "", err
	}

	room.addParticipant(&domain.Participant{ID: id, DisplayName: name, Connected: true})

	e.mu.Lock()
	if _, ok := e.players[roomCode]; !ok {
		e.players[roomCode] = make(map[string]registeredConn)
	}
	e.players[roomCode][id] = registeredConn{conn: conn, addr: addr}
	e.mu.Unlock()
	e.metrics.totalConnections.Add(1)

	count := room.ConnectedCount()
	e.broadcastToPlayers(roomCode, domain.NewPlayerJoined(name, count), id)
	e.sendToHost(roomCode, domain.NewPlayerCount(count))

	e.logger.Info("player joined room", "room_code", roomCode, "player_id", id,
		"players", count, "max", e.cfg.MaxPlayersPerRoom)
	return id, nil
}

// DisconnectHost closes the room: players are notified, their channels are
// force-closed, and the room leaves the registry.
func (e *Engine) DisconnectHost(roomCode string) {
	e.closeRoom(roomCode, "Host disconnected")
}

// closeRoom is the single teardown path shared by host disconnects, explicit
// close_room messages, delivery failures, and the cleanup sweep.
func (e *Engine) closeRoom(roomCode, reason string) {
	room, ok := e.rooms.Get(roomCode)
	if !ok || !room.close() {
		return
	}

	e.broadcastToPlayers(roomCode, domain.NewRoomClosed(reason), "")

	e.mu.Lock()
	host, hadHost := e.hosts[roomCode]
	delete(e.hosts, roomCode)
	playerConns := e.players[roomCode]
	delete(e.players, roomCode)
	if hadHost {
		e.addrReleaseLocked(host.addr)
	}
	for _, rc := range playerConns {
		e.addrReleaseLocked(rc.addr)
	}
	e.mu.Unlock()

	for _, rc := range playerConns {
		_ = rc.conn.Close(CloseNormal, "Room closed")
	}

	e.rooms.Delete(roomCode)
	e.metrics.disconnections.Add(1)
	e.logger.Info("room closed", "room_code", roomCode, "reason", reason)
}

// DisconnectPlayer releases a player channel, keeps the participant record
// for the grace period, and tells the host about the new count.
func (e *Engine) DisconnectPlayer(roomCode, participantID string) {
	room, ok := e.rooms.Get(roomCode)
	if !ok {
		return
	}
	if !room.markDisconnected(participantID) {
		return
	}

	e.mu.Lock()
	if conns, ok := e.players[roomCode]; ok {
		if rc, ok := conns[participantID]; ok {
			e.addrReleaseLocked(rc.addr)
			delete(conns, participantID)
		}
	}
	e.mu.Unlock()

	e.metrics.disconnections.Add(1)
	e.sendToHost(roomCode, domain.NewPlayerCount(room.ConnectedCount()))
	e.logger.Info("player disconnected", "room_code", roomCode, "player_id", participantID)

	e.spawn(func() { e.delayedParticipantRemoval(roomCode, participantID) })
}

// delayedParticipantRemoval drops the participant record once the grace
// period passes with no reconnection. Ids are never reused, so a returning
// player under the same display name is a fresh participant.
func (e *Engine) delayedParticipantRemoval(roomCode, participantID string) {
	select {
	case <-time.After(e.cfg.GracePeriod):
	case <-e.stopCh:
		return
	}

	room, ok := e.rooms.Get(roomCode)
	if !ok {
		return
	}
	if room.removeIfStillDisconnected(participantID) {
		e.sendToHost(roomCode, domain.NewPlayerCount(room.ConnectedCount()))
		e.logger.Info("removed disconnected player", "room_code", roomCode, "player_id", participantID)
	}
}

// addrAdmit counts a prospective channel against the per-address ceiling.
func (e *Engine) addrAdmit(addr string) bool {
	if addr == "" {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.addrConns[addr] >= e.cfg.MaxConnectionsPerIP {
		return false
	}
	e.addrConns[addr]++
	return true
}

func (e *Engine) addrRelease(addr string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.addrReleaseLocked(addr)
}

func (e *Engine) addrReleaseLocked(addr string) {
	if addr == "" {
		return
	}
	if e.addrConns[addr] <= 1 {
		delete(e.addrConns, addr)
	} else {
		e.addrConns[addr]--
	}
}

// reject closes a channel before any session state exists for it.
func (e *Engine) reject(conn Conn, reason string) {
	e.metrics.errors.Add(1)
	_ = conn.Close(ClosePolicyViolation, reason)
}

// RoomInfo returns the public snapshot of one open room.
func (e *Engine) RoomInfo(roomCode string) (RoomInfo, bool) {
	room, ok := e.rooms.Get(roomCode)
	if !ok {
		return RoomInfo{}, false
	}
	return RoomInfo{
		RoomCode:           roomCode,
		IsActive:           room.IsOpen(),
		PlayerCount:        room.ConnectedCount(),
		HasCurrentQuestion: room.HasQuestion(),
		CreatedAt:          domain.Epoch(room.CreatedAt()),
	}, true
}

// Leaderboard returns the full end-of-room roster for one room: every
// connected participant by cumulative score, unlike the truncated per-question
// top-N the host receives.
func (e *Engine) Leaderboard(roomCode string) ([]domain.LeaderboardEntry, bool) {
	room, ok := e.rooms.Get(roomCode)
	if !ok {
		return nil, false
	}
	return room.FullLeaderboard(), true
}

// Stats aggregates live statistics across every room.
func (e *Engine) Stats() StatsSnapshot {
	rooms := e.rooms.All()
	stats := StatsSnapshot{
		TotalSessions: len(rooms),
		Rooms:         make([]RoomSummary, 0, len(rooms)),
		Metrics:       e.metrics.snapshot(),
	}
	for _, room := range rooms {
		open := room.IsOpen()
		count := room.ConnectedCount()
		if open {
			stats.ActiveSessions++
		}
		stats.TotalConnectedPlayers += count
		stats.Rooms = append(stats.Rooms, RoomSummary{
			RoomCode:    room.Code(),
			IsActive:    open,
			PlayerCount: count,
			HasQuestion: room.HasQuestion(),
			CreatedAt:   domain.Epoch(room.CreatedAt()),
		})
	}
	return stats
}

// Health derives the engine's health status from process memory and room
// occupancy against the configured ceilings.
func (e *Engine) Health() HealthSnapshot {
	snapshot := HealthSnapshot{
		Status:      HealthStatusHealthy,
		ActiveRooms: e.rooms.Count(),
		Metrics:     e.metrics.snapshot(),
		Limits: HealthLimits{
			MaxRooms:            e.cfg.MaxRooms,
			MaxPlayersPerRoom:   e.cfg.MaxPlayersPerRoom,
			MaxConnectionsPerIP: e.cfg.MaxConnectionsPerIP,
		},
	}
	for _, room := range e.rooms.All() {
		snapshot.TotalPlayers += room.ConnectedCount()
	}

	memMB, err := processMemoryMB()
	if err != nil {
		snapshot.Status = HealthStatusError
		snapshot.Message = err.Error()
		return snapshot
	}
	snapshot.MemoryUsageMB = math.Round(memMB*100) / 100

	if memMB >= e.cfg.MemoryWarnMB || snapshot.ActiveRooms >= e.cfg.MaxRooms {
		snapshot.Status = HealthStatusWarning
	}
	return snapshot
}
