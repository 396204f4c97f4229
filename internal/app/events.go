package app

// Event types carried on the fan-out channel.
const (
	EventSessionStart = "session_start"
	EventNewQuestion  = "new_question"
	EventAnswerResult = "answer_result"
	EventSessionEnd   = "session_end"
	EventLeaderboard  = "leaderboard_update"
	EventNoActiveQuiz = "no_active_quiz"
	EventQuizEnded    = "quiz_ended"
)

// SessionStartPayload announces that a quiz session has gone live.
type SessionStartPayload struct {
	QuizID string `json:"quizId"`
	Title  string `json:"title"`
}

// SessionEndPayload carries the end-of-session message.
type SessionEndPayload struct {
	Message string `json:"message"`
}
