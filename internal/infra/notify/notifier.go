package notify

import (
	"context"
	"log"
)

// LogNotifier is the default reward delivery channel: it records the handoff
// in the process log. Swap in a real collaborator (mail, push, chat) behind
// the same interface in production.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Deliver(_ context.Context, userID, quizTitle, token string) error {
	log.Printf("reward for %s (quiz %q): %s", userID, quizTitle, token)
	return nil
}
