package app

import (
	"math"
	"sort"

	"quizlive/internal/domain"
)

// ScoreQuestion computes the outcome of an ended question from its recorded
// answers. It is a pure function: cumulative scores in the returned results
// already include each player's delta, but the deltas map is left for the
// caller to apply.
//
// A correct answer earns basePoints plus floor(timeRemaining * multiplier);
// an incorrect or missing answer earns nothing. Results contain only
// participants with a recorded answer, ranked by cumulative score descending
// with time taken as tie-break.
func ScoreQuestion(q *domain.Question, participants map[string]*domain.Participant, cfg domain.RoomConfig) (results []domain.QuestionResult, deltas map[string]int, correctAnswers int) {
	deltas = make(map[string]int, len(q.Answers))
	results = make([]domain.QuestionResult, 0, len(q.Answers))

	for id, answer := range q.Answers {
		p, ok := participants[id]
		if !ok {
			continue
		}

		isCorrect := answer.Option == q.CorrectIndex
		timeTaken := answer.AnsweredAt - q.StartedAt

		questionScore := 0
		if isCorrect {
			correctAnswers++
			timeRemaining := math.Max(0, float64(q.TimeLimit)-timeTaken)
			bonus := int(timeRemaining * cfg.TimeBonusMultiplier)
			questionScore = cfg.BasePoints + bonus
			deltas[id] = questionScore
		}

		results = append(results, domain.QuestionResult{
			Name:          p.DisplayName,
			Score:         p.Score + deltas[id],
			Time:          math.Round(timeTaken*100) / 100,
			Correct:       isCorrect,
			QuestionScore: questionScore,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Time < results[j].Time
	})
	return results, deltas, correctAnswers
}

// TopN truncates ranked results to the host-facing leaderboard size.
func TopN(results []domain.QuestionResult, n int) []domain.QuestionResult {
	if n <= 0 || len(results) <= n {
		return results
	}
	return results[:n]
}

// FullLeaderboard builds the end-of-room roster: every connected participant
// sorted by cumulative score descending.
func FullLeaderboard(participants map[string]*domain.Participant) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(participants))
	for _, p := range participants {
		if !p.Connected {
			continue
		}
		entries = append(entries, domain.LeaderboardEntry{
			Name:      p.DisplayName,
			Score:     p.Score,
			Connected: p.Connected,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries
}
