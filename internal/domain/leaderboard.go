package domain

import (
	"sort"
	"time"
)

// LeaderboardEntry is a ranked, snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl,omitempty"`
	Score       int    `json:"score"`
}

// Leaderboard captures the ordered scoreboard for a quiz.
type Leaderboard struct {
	QuizID    string             `json:"quizId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// Rank orders participants by score descending, breaking ties by join time
// ascending and finally by email so equal records always sort the same way.
// Ranks are 1-based positions in that order; they are derived on every call
// and never stored, so the ranking cannot drift from the scores it reflects.
func Rank(participants []Participant) []LeaderboardEntry {
	ordered := make([]Participant, len(participants))
	copy(ordered, participants)

	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		if !ordered[i].JoinedAt.Equal(ordered[j].JoinedAt) {
			return ordered[i].JoinedAt.Before(ordered[j].JoinedAt)
		}
		return ordered[i].Email < ordered[j].Email
	})

	entries := make([]LeaderboardEntry, len(ordered))
	for i, p := range ordered {
		entries[i] = LeaderboardEntry{
			Rank:        i + 1,
			Email:       p.Email,
			DisplayName: p.DisplayName,
			PhotoURL:    p.PhotoURL,
			Score:       p.Score,
		}
	}
	return entries
}

// TopN returns the first n entries of the leaderboard (all of them if n is
// larger than the board, everything for n <= 0).
func (lb Leaderboard) TopN(n int) []LeaderboardEntry {
	if n <= 0 || n >= len(lb.Entries) {
		return lb.Entries
	}
	return lb.Entries[:n]
}

// RankOf looks up the 1-based rank of email, or 0 if the identity has not
// joined. Used to show an out-of-view participant their own standing.
func (lb Leaderboard) RankOf(email string) int {
	for _, e := range lb.Entries {
		if e.Email == email {
			return e.Rank
		}
	}
	return 0
}
