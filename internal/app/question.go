package app

import (
	"time"

	"quizlive/internal/domain"
)

// HandleHostMessage dispatches one inbound host message. Malformed payloads
// get an error reply; unknown types are logged and ignored.
func (e *Engine) HandleHostMessage(roomCode string, data []byte) {
	typ, err := domain.DecodeType(data)
	if err != nil {
		e.metrics.errors.Add(1)
		e.sendErrorToHost(roomCode, "Invalid message format")
		return
	}
	switch typ {
	case domain.MessageNewQuestion:
		e.handleNewQuestion(roomCode, data)
	case domain.MessageCloseRoom:
		e.closeRoom(roomCode, "Host closed the room")
	default:
		e.logger.Warn("ignoring unknown host message", "room_code", roomCode, "type", typ)
	}
}

// HandlePlayerMessage dispatches one inbound player message.
func (e *Engine) HandlePlayerMessage(roomCode, participantID string, data []byte) {
	typ, err := domain.DecodeType(data)
	if err != nil {
		e.metrics.errors.Add(1)
		e.sendErrorToPlayer(roomCode, participantID, "Invalid message format")
		return
	}
	switch typ {
	case domain.MessageAnswer:
		e.handleAnswer(roomCode, participantID, data)
	default:
		e.logger.Warn("ignoring unknown player message",
			"room_code", roomCode, "player_id", participantID, "type", typ)
	}
}

// handleNewQuestion drives the Idle->Active transition: install the
// question, broadcast it without the correct index, and start the countdown.
func (e *Engine) handleNewQuestion(roomCode string, data []byte) {
	room, ok := e.rooms.Get(roomCode)
	if !ok || !room.IsOpen() {
		return
	}

	msg, err := domain.DecodeNewQuestion(data)
	if err != nil {
		e.metrics.errors.Add(1)
		e.sendErrorToHost(roomCode, "Invalid question: "+err.Error())
		return
	}

	limit := msg.TimeLimit
	if limit <= 0 {
		limit = room.Config().QuestionTimeLimit
	}
	question := &domain.Question{
		Text:         msg.Question,
		Options:      msg.Options,
		CorrectIndex: msg.CorrectAnswer,
		TimeLimit:    limit,
		StartedAt:    domain.Epoch(e.now()),
		Answers:      make(map[string]domain.Answer),
	}

	seq := room.beginQuestion(question)
	reached := e.broadcastToPlayers(roomCode, domain.NewQuestionBroadcast(question), "")
	e.metrics.questionsProcessed.Add(1)

	e.spawn(func() { e.countdown(roomCode, seq, time.Duration(limit)*time.Second) })

	e.logger.Info("question started", "room_code", roomCode,
		"time_limit", limit, "reached", reached)
}

// countdown races the question timer against engine shutdown. The sequence
// number makes a stale expiry (question already ended, or replaced) a no-op.
func (e *Engine) countdown(roomCode string, seq int, limit time.Duration) {
	select {
	case <-time.After(limit):
		e.endQuestion(roomCode, seq)
	case <-e.stopCh:
	}
}

// handleAnswer records a submission and drives the throttled host updates
// plus the early Active->Idle transition when everyone has answered.
func (e *Engine) handleAnswer(roomCode, participantID string, data []byte) {
	room, ok := e.rooms.Get(roomCode)
	if !ok {
		return
	}

	msg, err := domain.DecodeAnswer(data)
	if err != nil {
		e.metrics.errors.Add(1)
		e.sendErrorToPlayer(roomCode, participantID, "Invalid answer payload")
		return
	}

	out := room.recordAnswer(participantID, msg.Option, domain.Epoch(e.now()))
	if !out.recorded {
		// No active question, or a duplicate submission.
		return
	}
	e.metrics.answersProcessed.Add(1)

	// First answer, every Nth, and the last one; anything more would flood
	// the host in large rooms.
	if out.answered == 1 || out.answered%e.cfg.AnswerUpdateBatch == 0 || out.answered >= out.total {
		e.sendToHost(roomCode, domain.NewAnswerCount(out.answered, out.total))
	}

	if out.allAnswered {
		e.endQuestion(roomCode, out.seq)
	}
}

// endQuestion performs the Active->Idle transition exactly once per
// question: score, reveal the correct index to players, summarize for the
// host.
func (e *Engine) endQuestion(roomCode string, seq int) {
	room, ok := e.rooms.Get(roomCode)
	if !ok {
		return
	}
	outcome, ok := room.finishQuestion(seq)
	if !ok {
		return
	}

	e.sendToHost(roomCode, domain.NewResults(
		TopN(outcome.results, e.cfg.LeaderboardSize),
		outcome.totalAnswers,
		outcome.correctAnswers,
	))
	e.broadcastToPlayers(roomCode, domain.NewQuestionEnded(outcome.correct), "")

	e.logger.Info("question ended", "room_code", roomCode,
		"correct", outcome.correctAnswers, "total", outcome.totalAnswers)
}
