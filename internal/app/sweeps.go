package app

import (
	"context"
	"time"

	"quizlive/internal/domain"
)

// cleanupLoop periodically removes stale rooms and drained rate-limit
// entries. Failures are logged and the loop continues on its next tick.
func (e *Engine) cleanupLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.runSweep(e.cleanupSweep)
		case <-e.stopCh:
			return
		}
	}
}

// heartbeatLoop probes every registered channel on a fixed interval. A
// failed send is the sole liveness signal; there is no pong tracking.
func (e *Engine) heartbeatLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.runSweep(e.heartbeatSweep)
		case <-e.stopCh:
			return
		}
	}
}

// runSweep keeps a panicking sweep from killing its loop; one bad pass must
// not stop rooms from being cleaned on the next interval.
func (e *Engine) runSweep(sweep func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("background sweep panicked", "panic", r)
		}
	}()
	sweep()
}

func (e *Engine) cleanupSweep() {
	removed := e.cleanupStaleRooms()
	e.limiter.Sweep(context.Background())
	e.logMetrics(removed)
}

// CleanupNow runs the stale-room scan immediately and reports how many
// rooms were removed. Used by the maintenance endpoint and tests.
func (e *Engine) CleanupNow() int {
	return e.cleanupStaleRooms()
}

// cleanupStaleRooms tears down rooms that are closed, too old, or have no
// connected participants, through the same path as a host disconnect.
func (e *Engine) cleanupStaleRooms() int {
	removed := 0
	for _, room := range e.rooms.All() {
		stale := !room.IsOpen() ||
			room.Age() > e.cfg.SessionMaxAge ||
			room.ConnectedCount() == 0
		if !stale {
			continue
		}
		e.closeRoom(room.Code(), "Room closed")
		e.rooms.Delete(room.Code())
		removed++
		e.logger.Info("cleaned up stale room", "room_code", room.Code())
	}
	return removed
}

func (e *Engine) logMetrics(removedRooms int) {
	snapshot := e.metrics.snapshot()
	totalPlayers := 0
	for _, room := range e.rooms.All() {
		totalPlayers += room.ConnectedCount()
	}
	e.logger.Info("engine metrics",
		"rooms", e.rooms.Count(),
		"players", totalPlayers,
		"removed_rooms", removedRooms,
		"messages_sent", snapshot.MessagesSent,
		"errors", snapshot.Errors,
	)
}

// heartbeatSweep sends a liveness probe to every channel and runs the
// disconnect path for each one whose send fails.
func (e *Engine) heartbeatSweep() {
	data, err := domain.Encode(domain.NewHeartbeat())
	if err != nil {
		return
	}

	e.mu.Lock()
	hostConns := make(map[string]Conn, len(e.hosts))
	for code, rc := range e.hosts {
		hostConns[code] = rc.conn
	}
	playerConns := make(map[string]map[string]Conn, len(e.players))
	for code, conns := range e.players {
		playerConns[code] = make(map[string]Conn, len(conns))
		for id, rc := range conns {
			playerConns[code][id] = rc.conn
		}
	}
	e.mu.Unlock()

	var deadHosts []string
	for code, conn := range hostConns {
		if err := conn.Send(data); err != nil {
			e.logger.Warn("host heartbeat failed", "room_code", code, "err", err)
			deadHosts = append(deadHosts, code)
		} else {
			e.metrics.messagesSent.Add(1)
		}
	}

	type deadPlayer struct{ code, id string }
	var deadPlayers []deadPlayer
	for code, conns := range playerConns {
		for id, conn := range conns {
			if err := conn.Send(data); err != nil {
				e.logger.Warn("player heartbeat failed",
					"room_code", code, "player_id", id, "err", err)
				deadPlayers = append(deadPlayers, deadPlayer{code, id})
			} else {
				e.metrics.messagesSent.Add(1)
			}
		}
	}

	for _, code := range deadHosts {
		e.DisconnectHost(code)
	}
	for _, dp := range deadPlayers {
		e.DisconnectPlayer(dp.code, dp.id)
	}
}
