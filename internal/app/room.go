package app

import (
	"sync"
	"time"

	"quizlive/internal/domain"
)

// Room is the aggregate root of one live quiz instance. All state mutation
// happens under the room's own mutex inside a single method call; callers
// broadcast only after the mutating call has returned.
type Room struct {
	code      string
	hostID    string
	config    domain.RoomConfig
	createdAt time.Time
	now       func() time.Time

	mu           sync.Mutex
	open         bool
	participants map[string]*domain.Participant
	question     *domain.Question
	questionSeq  int
}

func newRoom(code, hostID string, cfg domain.RoomConfig, now func() time.Time) *Room {
	return &Room{
		code:         code,
		hostID:       hostID,
		config:       cfg,
		createdAt:    now(),
		now:          now,
		open:         true,
		participants: make(map[string]*domain.Participant),
	}
}

// NewRoomWithClock is test-only for deterministic timestamps.
func NewRoomWithClock(code, hostID string, cfg domain.RoomConfig, now func() time.Time) *Room {
	return newRoom(code, hostID, cfg, now)
}

func (r *Room) Code() string              { return r.code }
func (r *Room) HostID() string            { return r.hostID }
func (r *Room) CreatedAt() time.Time      { return r.createdAt }
func (r *Room) Config() domain.RoomConfig { return r.config }

// IsOpen reports whether the room still accepts messages.
func (r *Room) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

// close marks the room terminal. Returns false if it was already closed,
// making the teardown path idempotent.
func (r *Room) close() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open {
		return false
	}
	r.open = false
	return true
}

// Age reports how long the room has existed.
func (r *Room) Age() time.Duration {
	return r.now().Sub(r.createdAt)
}

func (r *Room) addParticipant(p *domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[p.ID] = p
}

func (r *Room) hasParticipant(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.participants[id]
	return ok
}

// markDisconnected flips a participant's liveness flag. The record itself
// survives until the grace period expires.
func (r *Room) markDisconnected(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok {
		return false
	}
	p.Connected = false
	return true
}

// removeIfStillDisconnected drops a participant record after the grace
// period, unless the flag was flipped back in the meantime.
func (r *Room) removeIfStillDisconnected(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok || p.Connected {
		return false
	}
	delete(r.participants, id)
	return true
}

// ConnectedCount counts participants with a live channel.
func (r *Room) ConnectedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectedLocked()
}

func (r *Room) connectedLocked() int {
	n := 0
	for _, p := range r.participants {
		if p.Connected {
			n++
		}
	}
	return n
}

// HasQuestion reports whether a question is currently active.
func (r *Room) HasQuestion() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.question != nil
}

// beginQuestion installs a new active question, clears every connected
// participant's transient answer state, and returns the question's sequence
// number used to guard the countdown against stale expiry.
func (r *Room) beginQuestion(q *domain.Question) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.participants {
		if p.Connected {
			p.LastAnswer = nil
			p.LastAnswerTime = 0
		}
	}
	r.question = q
	r.questionSeq++
	return r.questionSeq
}

type answerOutcome struct {
	recorded    bool
	answered    int
	total       int
	allAnswered bool
	seq         int
}

// recordAnswer stores a participant's first submission for the active
// question; duplicates and answers from unknown participants are no-ops.
func (r *Room) recordAnswer(participantID string, option int, at float64) answerOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open || r.question == nil {
		return answerOutcome{}
	}
	p, ok := r.participants[participantID]
	if !ok {
		return answerOutcome{}
	}
	if _, dup := r.question.Answers[participantID]; dup {
		return answerOutcome{}
	}

	r.question.Answers[participantID] = domain.Answer{Option: option, AnsweredAt: at}
	opt := option
	p.LastAnswer = &opt
	p.LastAnswerTime = at

	answered := r.question.AnswerCount()
	total := r.connectedLocked()
	return answerOutcome{
		recorded:    true,
		answered:    answered,
		total:       total,
		allAnswered: total > 0 && answered >= total,
		seq:         r.questionSeq,
	}
}

type questionOutcome struct {
	correct        int
	results        []domain.QuestionResult
	totalAnswers   int
	correctAnswers int
}

// finishQuestion ends the active question exactly once, whether the caller is
// the countdown or the all-answered path: a stale sequence number or an
// already-absent question makes it a no-op. Score deltas are applied before
// the room lock is released, so every later broadcast sees the new totals.
func (r *Room) finishQuestion(seq int) (questionOutcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.question == nil || r.questionSeq != seq {
		return questionOutcome{}, false
	}
	q := r.question
	r.question = nil

	results, deltas, correct := ScoreQuestion(q, r.participants, r.config)
	for id, delta := range deltas {
		if p, ok := r.participants[id]; ok {
			p.Score += delta
		}
	}
	return questionOutcome{
		correct:        q.CorrectIndex,
		results:        results,
		totalAnswers:   q.AnswerCount(),
		correctAnswers: correct,
	}, true
}

// FullLeaderboard returns every connected participant ordered by cumulative
// score, for end-of-room display. Distinct from the per-question top-N.
func (r *Room) FullLeaderboard() []domain.LeaderboardEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return FullLeaderboard(r.participants)
}
