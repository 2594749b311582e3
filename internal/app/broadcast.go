package app

import (
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"quizlive/internal/domain"
)

const (
	hostRetryBackoff   = 100 * time.Millisecond
	playerRetryBackoff = 50 * time.Millisecond
)

// sendToHost delivers one message to a room's host channel with bounded
// retries and linear backoff. An irrecoverable failure is an implicit host
// disconnect and tears the room down.
func (e *Engine) sendToHost(roomCode string, msg any) bool {
	data, err := domain.Encode(msg)
	if err != nil {
		e.logger.Error("encode failed", "room_code", roomCode, "err", err)
		return false
	}

	e.mu.Lock()
	host, ok := e.hosts[roomCode]
	e.mu.Unlock()
	if !ok {
		return false
	}

	attempts := e.cfg.HostSendRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if err := host.conn.Send(data); err == nil {
			e.metrics.messagesSent.Add(1)
			return true
		} else if attempt+1 < attempts {
			e.logger.Warn("host send failed, retrying",
				"room_code", roomCode, "attempt", attempt+1, "err", err)
			time.Sleep(e.retryDelay(hostRetryBackoff, attempt))
		} else {
			e.logger.Error("host unreachable, closing room",
				"room_code", roomCode, "attempts", attempts, "err", err)
		}
	}

	e.metrics.errors.Add(1)
	e.closeRoom(roomCode, "Host disconnected")
	return false
}

// broadcastToPlayers fans one message out to every connected player channel
// of a room, one send goroutine per recipient, and waits for all of them.
// Failed channels are folded into the player disconnect path afterwards.
// Returns the number of successful deliveries.
func (e *Engine) broadcastToPlayers(roomCode string, msg any, excludeID string) int {
	data, err := domain.Encode(msg)
	if err != nil {
		e.logger.Error("encode failed", "room_code", roomCode, "err", err)
		return 0
	}

	e.mu.Lock()
	conns := make(map[string]Conn, len(e.players[roomCode]))
	for id, rc := range e.players[roomCode] {
		if id == excludeID {
			continue
		}
		conns[id] = rc.conn
	}
	e.mu.Unlock()

	var (
		g         errgroup.Group
		mu        sync.Mutex
		delivered int
		failed    []string
	)
	for id, conn := range conns {
		id, conn := id, conn
		g.Go(func() error {
			ok := e.sendWithRetry(conn, data, e.cfg.PlayerSendRetries, playerRetryBackoff)
			mu.Lock()
			if ok {
				delivered++
			} else {
				failed = append(failed, id)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, id := range failed {
		e.logger.Warn("player unreachable during broadcast",
			"room_code", roomCode, "player_id", id)
		e.DisconnectPlayer(roomCode, id)
	}

	e.metrics.messagesSent.Add(int64(delivered))
	return delivered
}

func (e *Engine) sendWithRetry(conn Conn, data []byte, retries int, backoff time.Duration) bool {
	for attempt := 0; attempt <= retries; attempt++ {
		if err := conn.Send(data); err == nil {
			return true
		}
		if attempt < retries {
			time.Sleep(e.retryDelay(backoff, attempt))
		}
	}
	return false
}

// retryDelay grows linearly with the attempt number. Tests shrink it via
// retryUnit to keep failure paths fast.
func (e *Engine) retryDelay(base time.Duration, attempt int) time.Duration {
	unit := base
	if e.retryUnit > 0 {
		unit = e.retryUnit
	}
	return unit * time.Duration(attempt+1)
}

// sendErrorToHost reports a per-message failure without the retry machinery;
// a dead host is caught by the heartbeat instead.
func (e *Engine) sendErrorToHost(roomCode, message string) {
	e.mu.Lock()
	host, ok := e.hosts[roomCode]
	e.mu.Unlock()
	if !ok {
		return
	}
	e.sendErrorTo(host.conn, message)
}

func (e *Engine) sendErrorToPlayer(roomCode, participantID, message string) {
	e.mu.Lock()
	var conn Conn
	if conns, ok := e.players[roomCode]; ok {
		if rc, ok := conns[participantID]; ok {
			conn = rc.conn
		}
	}
	e.mu.Unlock()
	if conn == nil {
		return
	}
	e.sendErrorTo(conn, message)
}

func (e *Engine) sendErrorTo(conn Conn, message string) {
	data, err := domain.Encode(domain.NewErrorMessage(message))
	if err != nil {
		return
	}
	if err := conn.Send(data); err == nil {
		e.metrics.messagesSent.Add(1)
	}
}
