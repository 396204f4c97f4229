package app

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"livequiz-service/internal/domain"
)

// SessionConfig holds the timing knobs of a live session.
type SessionConfig struct {
	// QuestionGrace pads each question's window during late-join
	// reconstruction, covering broadcast and answer-settling latency.
	QuestionGrace time.Duration
	// LeaderboardGrace is the delay between session end and leaderboard
	// computation, allowing last-moment answers to be recorded.
	LeaderboardGrace time.Duration
	// Winners is how many top scorers receive a reward token.
	Winners int
}

// DefaultSessionConfig mirrors the production timings.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		QuestionGrace:    500 * time.Millisecond,
		LeaderboardGrace: 30 * time.Second,
		Winners:          3,
	}
}

// Session owns the question-advance timeline of one live quiz. All timing
// state is per instance; nothing is shared across sessions except the
// repository. There is never more than one pending timer per session.
type Session struct {
	quiz     domain.Quiz
	repo     QuizRepository
	fanout   Broadcaster
	clock    Clock
	cfg      SessionConfig
	rewards  RewardIssuer
	notifier Notifier
	onClose  func(quizID string)

	mu           sync.Mutex
	currentIndex int
	startedAt    time.Time
	sentAt       time.Time
	timer        Timer
	finished     bool
	answered     map[string]map[int]bool // userID -> question index already submitted
}

func newSession(quiz domain.Quiz, repo QuizRepository, fanout Broadcaster, clock Clock, cfg SessionConfig, rewards RewardIssuer, notifier Notifier, onClose func(string)) *Session {
	return &Session{
		quiz:     quiz,
		repo:     repo,
		fanout:   fanout,
		clock:    clock,
		cfg:      cfg,
		rewards:  rewards,
		notifier: notifier,
		onClose:  onClose,
		answered: make(map[string]map[int]bool),
	}
}

// Start reloads the quiz, wins (or loses) the scheduled->live transition, and
// kicks off the question chain. Losing the transition is a no-op, which makes
// overlapping scheduler sweeps safe. Reports whether this call went live.
func (s *Session) Start(ctx context.Context) (bool, error) {
	fresh, err := s.repo.Get(ctx, s.quiz.ID)
	if err != nil {
		return false, err
	}
	if fresh.Status != domain.StatusScheduled {
		return false, nil
	}

	won, err := s.repo.TransitionStatus(ctx, s.quiz.ID, domain.StatusScheduled, domain.StatusLive)
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}

	s.mu.Lock()
	s.quiz = fresh
	s.startedAt = s.clock.Now()
	s.mu.Unlock()

	s.fanout.BroadcastAll(s.quiz.ID, EventSessionStart, SessionStartPayload{
		QuizID: s.quiz.ID,
		Title:  s.quiz.Title,
	})
	s.advance()
	return true, nil
}

// advance emits the next question and arms the single timer that re-invokes
// it after the question's time limit. When the sequence is exhausted the
// session transitions to finished.
func (s *Session) advance() {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	if s.currentIndex >= len(s.quiz.Questions) {
		s.mu.Unlock()
		s.finish()
		return
	}

	question := s.quiz.Questions[s.currentIndex]
	view := question.View(s.currentIndex)
	s.sentAt = s.clock.Now()
	s.currentIndex++
	s.timer = s.clock.AfterFunc(question.TimeLimit(), s.advance)
	s.mu.Unlock()

	s.fanout.BroadcastAll(s.quiz.ID, EventNewQuestion, view)
}

func (s *Session) finish() {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.timer = nil
	s.mu.Unlock()

	if _, err := s.repo.TransitionStatus(context.Background(), s.quiz.ID, domain.StatusLive, domain.StatusFinished); err != nil {
		log.Printf("session %s: persist finished status: %v", s.quiz.ID, err)
	}

	s.fanout.BroadcastAll(s.quiz.ID, EventSessionEnd, SessionEndPayload{
		Message: "The quiz has ended. Leaderboard coming up shortly.",
	})
	s.clock.AfterFunc(s.cfg.LeaderboardGrace, s.publishResults)
}

// publishResults runs after the grace period: broadcast the ordered
// leaderboard, then issue reward tokens to the top scorers. A delivery failure
// for one recipient never blocks the others.
func (s *Session) publishResults() {
	ctx := context.Background()
	entries, err := s.repo.Scores(ctx, s.quiz.ID)
	if err != nil {
		log.Printf("session %s: load scores: %v", s.quiz.ID, err)
	}
	if entries == nil {
		// Clients expect an array even when nobody scored.
		entries = []domain.ScoreEntry{}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	s.fanout.BroadcastAll(s.quiz.ID, EventLeaderboard, entries)

	if s.rewards != nil && s.notifier != nil {
		winners := entries
		if len(winners) > s.cfg.Winners {
			winners = winners[:s.cfg.Winners]
		}
		for _, w := range winners {
			token, err := s.rewards.Issue(w.UserID, s.quiz.ID, s.quiz.CreatedAt)
			if err != nil {
				log.Printf("session %s: issue reward for %s: %v", s.quiz.ID, w.UserID, err)
				continue
			}
			if err := s.notifier.Deliver(ctx, w.UserID, s.quiz.Title, token); err != nil {
				log.Printf("session %s: deliver reward to %s: %v", s.quiz.ID, w.UserID, err)
			}
		}
	}

	if s.onClose != nil {
		s.onClose(s.quiz.ID)
	}
}

// Submit records an answer. Only answers for the still-current question can
// score, and each participant scores at most once per question; every
// submission still gets correct/incorrect feedback.
func (s *Session) Submit(ctx context.Context, userID, displayName string, questionIndex, selectedOption int) (domain.AnswerResult, error) {
	s.mu.Lock()
	if s.finished || s.startedAt.IsZero() {
		s.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrQuizNotLive
	}
	if questionIndex < 0 || questionIndex >= len(s.quiz.Questions) {
		s.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrQuestionNotFound
	}

	question := s.quiz.Questions[questionIndex]
	if selectedOption < 0 || selectedOption >= len(question.Options) {
		s.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrOptionNotFound
	}

	result := domain.AnswerResult{
		Correct:            selectedOption == question.CorrectIndex,
		CorrectOptionIndex: question.CorrectIndex,
	}

	award := 0
	current := questionIndex == s.currentIndex-1
	if current && !s.answered[userID][questionIndex] {
		if s.answered[userID] == nil {
			s.answered[userID] = make(map[int]bool)
		}
		s.answered[userID][questionIndex] = true
		if result.Correct {
			award = Score(question.Marks, s.clock.Now().Sub(s.sentAt), question.TimeLimit())
		}
	}
	s.mu.Unlock()

	if award > 0 {
		if err := s.repo.AddScore(ctx, s.quiz.ID, userID, displayName, award); err != nil {
			log.Printf("session %s: record score for %s: %v", s.quiz.ID, userID, err)
		}
	}
	return result, nil
}

// Started reports whether the session has gone live.
func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.startedAt.IsZero()
}

// CurrentQuestion reconstructs where the session is for a late-joining
// connection without replaying history: walk the question windows
// (timeLimit + grace each) and pick the one containing the elapsed time.
// ok is false when the session has logically ended, including the case where
// elapsed time has outrun the windows but the terminal transition has not
// fired yet.
func (s *Session) CurrentQuestion() (domain.QuestionView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.startedAt.IsZero() || s.finished {
		return domain.QuestionView{}, false
	}

	elapsed := s.clock.Now().Sub(s.startedAt)
	var cumulative time.Duration
	for i, question := range s.quiz.Questions {
		cumulative += question.TimeLimit() + s.cfg.QuestionGrace
		if elapsed < cumulative {
			return question.View(i), true
		}
	}
	return domain.QuestionView{}, false
}
