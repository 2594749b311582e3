package app

import (
	"testing"

	"quizlive/internal/domain"
)

func scoringFixture() (*domain.Question, map[string]*domain.Participant, domain.RoomConfig) {
	q := &domain.Question{
		Text:         "capital of France?",
		Options:      []string{"Paris", "Lyon"},
		CorrectIndex: 0,
		TimeLimit:    30,
		StartedAt:    1000,
		Answers: map[string]domain.Answer{
			"p1": {Option: 0, AnsweredAt: 1005},   // correct, 5s
			"p2": {Option: 0, AnsweredAt: 1010.5}, // correct, 19.5s remaining
			"p3": {Option: 1, AnsweredAt: 1002},   // wrong
		},
	}
	participants := map[string]*domain.Participant{
		"p1": {ID: "p1", DisplayName: "ann", Connected: true},
		"p2": {ID: "p2", DisplayName: "ben", Connected: true, Score: 50},
		"p3": {ID: "p3", DisplayName: "cal", Connected: true},
		"p4": {ID: "p4", DisplayName: "dee", Connected: true},
	}
	cfg := domain.RoomConfig{QuestionTimeLimit: 30, BasePoints: 100, TimeBonusMultiplier: 2}
	return q, participants, cfg
}

func TestScoreQuestion(t *testing.T) {
	q, participants, cfg := scoringFixture()

	results, deltas, correct := ScoreQuestion(q, participants, cfg)

	if correct != 2 {
		t.Fatalf("expected 2 correct answers, got %d", correct)
	}
	// ann: 100 + floor(25 * 2) = 150. ben: 50 prior + 100 + floor(19.5 * 2) = 189.
	if deltas["p1"] != 150 {
		t.Fatalf("p1 delta = %d, want 150", deltas["p1"])
	}
	if deltas["p2"] != 139 {
		t.Fatalf("p2 delta = %d, want 139", deltas["p2"])
	}
	if _, ok := deltas["p3"]; ok {
		t.Fatalf("wrong answer earned a delta")
	}

	if len(results) != 3 {
		t.Fatalf("expected 3 results (non-answerers excluded), got %d", len(results))
	}
	if results[0].Name != "ben" || results[0].Score != 189 {
		t.Fatalf("unexpected leader: %+v", results[0])
	}
	if results[1].Name != "ann" || results[1].Score != 150 {
		t.Fatalf("unexpected second place: %+v", results[1])
	}
	if results[2].Name != "cal" || results[2].Correct || results[2].QuestionScore != 0 {
		t.Fatalf("unexpected last place: %+v", results[2])
	}
	if results[0].Time != 10.5 {
		t.Fatalf("time not rounded to centiseconds: %v", results[0].Time)
	}

	// Pure: participant scores untouched until the caller applies deltas.
	if participants["p1"].Score != 0 || participants["p2"].Score != 50 {
		t.Fatalf("ScoreQuestion mutated participant scores")
	}
}

func TestScoreQuestionTieBreakOnTime(t *testing.T) {
	q := &domain.Question{
		CorrectIndex: 0,
		TimeLimit:    10,
		StartedAt:    0,
		Answers: map[string]domain.Answer{
			"fast": {Option: 1, AnsweredAt: 1},
			"slow": {Option: 1, AnsweredAt: 9},
		},
	}
	participants := map[string]*domain.Participant{
		"fast": {ID: "fast", DisplayName: "fast", Connected: true},
		"slow": {ID: "slow", DisplayName: "slow", Connected: true},
	}
	cfg := domain.RoomConfig{BasePoints: 100, TimeBonusMultiplier: 2}

	results, _, _ := ScoreQuestion(q, participants, cfg)
	if results[0].Name != "fast" {
		t.Fatalf("equal scores must rank by time taken, got %+v", results)
	}
}

func TestScoreQuestionNoTimeBonusAfterLimit(t *testing.T) {
	q := &domain.Question{
		CorrectIndex: 0,
		TimeLimit:    5,
		StartedAt:    0,
		Answers:      map[string]domain.Answer{"p1": {Option: 0, AnsweredAt: 9}},
	}
	participants := map[string]*domain.Participant{
		"p1": {ID: "p1", DisplayName: "ann", Connected: true},
	}
	cfg := domain.RoomConfig{BasePoints: 100, TimeBonusMultiplier: 2}

	_, deltas, _ := ScoreQuestion(q, participants, cfg)
	if deltas["p1"] != 100 {
		t.Fatalf("late correct answer should earn base points only, got %d", deltas["p1"])
	}
}

func TestTopN(t *testing.T) {
	results := []domain.QuestionResult{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	if got := TopN(results, 2); len(got) != 2 || got[1].Name != "b" {
		t.Fatalf("TopN(2) = %+v", got)
	}
	if got := TopN(results, 10); len(got) != 3 {
		t.Fatalf("TopN beyond length must return everything, got %d", len(got))
	}
	if got := TopN(results, 0); len(got) != 3 {
		t.Fatalf("TopN(0) must not truncate, got %d", len(got))
	}
}

func TestFullLeaderboardExcludesDisconnected(t *testing.T) {
	participants := map[string]*domain.Participant{
		"p1": {DisplayName: "ann", Score: 10, Connected: true},
		"p2": {DisplayName: "ben", Score: 30, Connected: true},
		"p3": {DisplayName: "cal", Score: 99, Connected: false},
	}
	entries := FullLeaderboard(participants)
	if len(entries) != 2 {
		t.Fatalf("expected 2 connected entries, got %d", len(entries))
	}
	if entries[0].Name != "ben" || entries[1].Name != "ann" {
		t.Fatalf("unexpected order: %+v", entries)
	}
}
