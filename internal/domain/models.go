package domain

import "time"

// Status is the lifecycle state of a quiz. Transitions are monotonic:
// scheduled -> live -> finished, never reversed.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusLive      Status = "live"
	StatusFinished  Status = "finished"
)

// Question is one timed multiple-choice question. Immutable once its quiz is live.
type Question struct {
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	Marks        int      `json:"marks"`
	TimeLimitSec int      `json:"timeLimit"`
}

// TimeLimit returns the answer window as a duration.
func (q Question) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitSec) * time.Second
}

// View projects the question into its client-safe form; the correct option
// index is never included.
func (q Question) View(index int) QuestionView {
	return QuestionView{
		Index:     index,
		Text:      q.Text,
		Options:   q.Options,
		TimeLimit: q.TimeLimitSec,
		Marks:     q.Marks,
	}
}

// QuestionView is what participants see when a question is broadcast.
type QuestionView struct {
	Index     int      `json:"index"`
	Text      string   `json:"questionText"`
	Options   []string `json:"options"`
	TimeLimit int      `json:"timeLimit"`
	Marks     int      `json:"marks"`
}

// Quiz is a scheduled live quiz: an ordered question sequence plus lifecycle state.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	StartTime time.Time  `json:"startTime"`
	CreatedAt time.Time  `json:"createdAt"`
	Status    Status     `json:"status"`
	Questions []Question `json:"questions"`
}

// ScoreEntry is the accumulated score of one participant in one quiz.
type ScoreEntry struct {
	UserID      string `json:"participantId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
}

// AnswerResult is the private feedback sent to a submitting participant.
type AnswerResult struct {
	Correct            bool `json:"correct"`
	CorrectOptionIndex int  `json:"correctOptionIndex"`
}
