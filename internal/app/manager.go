package app

import (
	"context"
	"sync"
	"time"

	"livequiz-service/internal/domain"
)

// QuizRepository is the durable store consulted by the core: quiz definitions,
// status transitions, and score entries.
type QuizRepository interface {
	// FindDue returns quizzes still scheduled whose start time has passed.
	FindDue(ctx context.Context, now time.Time) ([]domain.Quiz, error)
	Get(ctx context.Context, quizID string) (domain.Quiz, error)
	// TransitionStatus conditionally flips a quiz's status and reports whether
	// this caller won the transition.
	TransitionStatus(ctx context.Context, quizID string, from, to domain.Status) (bool, error)
	// AddScore atomically creates or increments the score entry for
	// (quiz, participant).
	AddScore(ctx context.Context, quizID, userID, displayName string, delta int) error
	Scores(ctx context.Context, quizID string) ([]domain.ScoreEntry, error)
}

// Broadcaster is the fan-out channel delivering events to connected
// participants of a quiz.
type Broadcaster interface {
	BroadcastAll(quizID, eventType string, payload any)
	SendTo(quizID, userID, eventType string, payload any)
}

// Notifier delivers a reward to one participant. Retries are the caller's
// concern; the core only logs failures.
type Notifier interface {
	Deliver(ctx context.Context, userID, quizTitle, token string) error
}

// RewardIssuer mints a verifiable reward token bound to a participant and the
// quiz's creation time.
type RewardIssuer interface {
	Issue(userID, quizID string, quizCreatedAt time.Time) (string, error)
}

// Liveness marks which quizzes have a running session (best effort, e.g. a
// Redis key other instances can observe).
type Liveness interface {
	Mark(ctx context.Context, quizID string) error
	Clear(ctx context.Context, quizID string) error
}

// ManagerOptions carries the optional collaborators of a SessionManager.
// Zero values fall back to sane defaults.
type ManagerOptions struct {
	Clock    Clock
	Config   SessionConfig
	Rewards  RewardIssuer
	Notifier Notifier
	Liveness Liveness
}

// SessionManager owns the live sessions of this process, keyed by quiz ID.
type SessionManager struct {
	repo     QuizRepository
	fanout   Broadcaster
	clock    Clock
	cfg      SessionConfig
	rewards  RewardIssuer
	notifier Notifier
	liveness Liveness

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionManager(repo QuizRepository, fanout Broadcaster, opts ManagerOptions) *SessionManager {
	clock := opts.Clock
	if clock == nil {
		clock = RealClock()
	}
	cfg := opts.Config
	defaults := DefaultSessionConfig()
	if cfg.QuestionGrace == 0 {
		cfg.QuestionGrace = defaults.QuestionGrace
	}
	if cfg.LeaderboardGrace == 0 {
		cfg.LeaderboardGrace = defaults.LeaderboardGrace
	}
	if cfg.Winners == 0 {
		cfg.Winners = defaults.Winners
	}
	return &SessionManager{
		repo:     repo,
		fanout:   fanout,
		clock:    clock,
		cfg:      cfg,
		rewards:  opts.Rewards,
		notifier: opts.Notifier,
		liveness: opts.Liveness,
		sessions: make(map[string]*Session),
	}
}

// StartSession starts the runtime for a quiz. Idempotent: a quiz already
// running in this process, or already transitioned away from scheduled, is a
// no-op.
func (m *SessionManager) StartSession(ctx context.Context, quiz domain.Quiz) error {
	m.mu.Lock()
	if _, ok := m.sessions[quiz.ID]; ok {
		m.mu.Unlock()
		return nil
	}
	session := newSession(quiz, m.repo, m.fanout, m.clock, m.cfg, m.rewards, m.notifier, m.closeSession)
	m.sessions[quiz.ID] = session
	m.mu.Unlock()

	started, err := session.Start(ctx)
	if err != nil || !started {
		m.mu.Lock()
		delete(m.sessions, quiz.ID)
		m.mu.Unlock()
		return err
	}
	if m.liveness != nil {
		_ = m.liveness.Mark(ctx, quiz.ID)
	}
	return nil
}

// Get returns the running session for a quiz, if any.
func (m *SessionManager) Get(quizID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[quizID]
	return session, ok
}

// Submit routes an answer to the quiz's running session.
func (m *SessionManager) Submit(ctx context.Context, quizID, userID, displayName string, questionIndex, selectedOption int) (domain.AnswerResult, error) {
	session, ok := m.Get(quizID)
	if !ok {
		return domain.AnswerResult{}, domain.ErrQuizNotLive
	}
	return session.Submit(ctx, userID, displayName, questionIndex, selectedOption)
}

// AttachState answers "where is this quiz right now" for a newly attached
// connection: exactly one of new_question, quiz_ended, or no_active_quiz.
func (m *SessionManager) AttachState(ctx context.Context, quizID string) (string, any) {
	if session, ok := m.Get(quizID); ok && session.Started() {
		if view, ok := session.CurrentQuestion(); ok {
			return EventNewQuestion, view
		}
		return EventQuizEnded, SessionEndPayload{Message: "This quiz has already ended."}
	}

	quiz, err := m.repo.Get(ctx, quizID)
	if err != nil {
		return EventNoActiveQuiz, SessionEndPayload{Message: "No quiz is currently active."}
	}
	switch quiz.Status {
	case domain.StatusFinished, domain.StatusLive:
		// Live without a runtime here means the session outlived this
		// process's state; the timeline cannot be resumed.
		return EventQuizEnded, SessionEndPayload{Message: "This quiz has already ended."}
	default:
		return EventNoActiveQuiz, SessionEndPayload{Message: "No quiz is currently active."}
	}
}

func (m *SessionManager) closeSession(quizID string) {
	m.mu.Lock()
	delete(m.sessions, quizID)
	m.mu.Unlock()
	if m.liveness != nil {
		_ = m.liveness.Clear(context.Background(), quizID)
	}
}
