package domain

import "time"

// OptionCount is the fixed number of answer options per question.
const OptionCount = 4

// Bounds for Quiz.SecondsPerQuestion.
const (
	MinSecondsPerQuestion = 5
	MaxSecondsPerQuestion = 120
)

// NoQuestion is the CurrentQuestion value while no question is active.
const NoQuestion = -1

// Quiz is the live quiz document shared between the organizer and participants.
type Quiz struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	JoinCode           string     `json:"joinCode"`
	SecondsPerQuestion int        `json:"secondsPerQuestion"`
	Status             Status     `json:"status"`
	CurrentQuestion    int        `json:"currentQuestion"`
	QuestionStartedAt  *time.Time `json:"questionStartedAt,omitempty"`
	TotalQuestions     int        `json:"totalQuestions"`
	Creator            string     `json:"creator"`
	SharedWith         []string   `json:"sharedWith,omitempty"`
	Restricted         bool       `json:"restricted"`
	AllowedEmails      []string   `json:"allowedEmails,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
}

// QuestionDuration returns the per-question answer window.
func (q Quiz) QuestionDuration() time.Duration {
	return time.Duration(q.SecondsPerQuestion) * time.Second
}

// SharedWithEmail reports whether the quiz has been shared with email.
func (q Quiz) SharedWithEmail(email string) bool {
	for _, e := range q.SharedWith {
		if e == email {
			return true
		}
	}
	return false
}

// AllowsEmail reports whether email may join under the quiz's restriction settings.
func (q Quiz) AllowsEmail(email string) bool {
	if !q.Restricted {
		return true
	}
	for _, e := range q.AllowedEmails {
		if e == email {
			return true
		}
	}
	return false
}

// QuizPatch is a merge patch for a quiz document; nil fields are left untouched.
// QuestionStartedAt uses a double pointer so the patch can distinguish "leave
// alone" (nil) from "clear the timestamp" (pointer to nil).
type QuizPatch struct {
	Title              *string
	SecondsPerQuestion *int
	Status             *Status
	CurrentQuestion    *int
	QuestionStartedAt  **time.Time
	TotalQuestions     *int
	SharedWith         *[]string
	Restricted         *bool
	AllowedEmails      *[]string
}

// Apply merges the patch into quiz.
func (p QuizPatch) Apply(quiz *Quiz) {
	if p.Title != nil {
		quiz.Title = *p.Title
	}
	if p.SecondsPerQuestion != nil {
		quiz.SecondsPerQuestion = *p.SecondsPerQuestion
	}
	if p.Status != nil {
		quiz.Status = *p.Status
	}
	if p.CurrentQuestion != nil {
		quiz.CurrentQuestion = *p.CurrentQuestion
	}
	if p.QuestionStartedAt != nil {
		quiz.QuestionStartedAt = *p.QuestionStartedAt
	}
	if p.TotalQuestions != nil {
		quiz.TotalQuestions = *p.TotalQuestions
	}
	if p.SharedWith != nil {
		quiz.SharedWith = *p.SharedWith
	}
	if p.Restricted != nil {
		quiz.Restricted = *p.Restricted
	}
	if p.AllowedEmails != nil {
		quiz.AllowedEmails = *p.AllowedEmails
	}
}

// Question models an MCQ question with exactly four options and one correct index.
// Questions are immutable once the owning quiz leaves draft.
type Question struct {
	QuizID   string   `json:"quizId"`
	Position int      `json:"position"`
	Text     string   `json:"text"`
	Options  []string `json:"options"`
	Correct  int      `json:"correct"`
}

// AnswerRecord is one entry of a participant's answer log.
type AnswerRecord struct {
	Option      int       `json:"option"`
	SubmittedAt time.Time `json:"submittedAt"`
	Awarded     int       `json:"awarded"`
}

// Participant represents a joined identity and its accumulated score.
// There is exactly one record per (quiz, email) pair; re-joining refreshes
// the profile fields instead of creating a duplicate.
type Participant struct {
	Email       string               `json:"email"`
	DisplayName string               `json:"displayName"`
	PhotoURL    string               `json:"photoUrl,omitempty"`
	Score       int                  `json:"score"`
	JoinedAt    time.Time            `json:"joinedAt"`
	Answers     map[int]AnswerRecord `json:"answers,omitempty"`
}

// HasAnswered reports whether the participant already has a log entry for position.
func (p Participant) HasAnswered(position int) bool {
	_, ok := p.Answers[position]
	return ok
}

// AnswerSubmission models the scoring signal from a participant client.
type AnswerSubmission struct {
	Question    int
	Option      int
	SubmittedAt time.Time
}

// AnswerResult summarizes the outcome of a submission for a single participant.
type AnswerResult struct {
	Question   int  `json:"question"`
	Correct    bool `json:"correct"`
	Awarded    int  `json:"awarded"`
	TotalScore int  `json:"totalScore"`
}
