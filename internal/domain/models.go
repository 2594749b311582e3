package domain

// RoomConfig holds the per-room scoring knobs, fixed at room creation.
type RoomConfig struct {
	QuestionTimeLimit   int // seconds
	BasePoints          int
	TimeBonusMultiplier float64
}

// Participant is one joined player. The record outlives its connection for a
// grace period so a flaky client does not lose its score immediately.
type Participant struct {
	ID             string
	DisplayName    string
	Score          int
	Connected      bool
	LastAnswer     *int
	LastAnswerTime float64
}

// Answer is one recorded submission; at most one per participant per question.
type Answer struct {
	Option     int
	AnsweredAt float64 // epoch seconds, server-observed
}

// Question is the single in-flight question of a room.
type Question struct {
	Text         string
	Options      []string
	CorrectIndex int
	TimeLimit    int // seconds
	StartedAt    float64
	Answers      map[string]Answer
}

// AnswerCount returns how many participants have answered so far.
func (q *Question) AnswerCount() int {
	return len(q.Answers)
}

// QuestionResult is one ranked row of a question's outcome, sent to the host.
type QuestionResult struct {
	Name          string  `json:"name"`
	Score         int     `json:"score"`
	Time          float64 `json:"time"`
	Correct       bool    `json:"correct"`
	QuestionScore int     `json:"question_score"`
}

// LeaderboardEntry is one row of the full end-of-room leaderboard.
type LeaderboardEntry struct {
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Connected bool   `json:"connected"`
}
