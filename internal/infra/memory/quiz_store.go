package memory

import (
	"context"
	"sync"
	"time"

	"livequiz-service/internal/domain"
)

// QuizStore is an in-memory implementation of app.QuizRepository, used in
// tests and when the server runs without Postgres.
type QuizStore struct {
	mu      sync.Mutex
	quizzes map[string]*domain.Quiz
	scores  map[string][]*domain.ScoreEntry // quizID -> entries in first-scored order
}

func NewQuizStore(quizzes ...domain.Quiz) *QuizStore {
	s := &QuizStore{
		quizzes: make(map[string]*domain.Quiz),
		scores:  make(map[string][]*domain.ScoreEntry),
	}
	for i := range quizzes {
		q := quizzes[i]
		if q.Status == "" {
			q.Status = domain.StatusScheduled
		}
		s.quizzes[q.ID] = &q
	}
	return s
}

func (s *QuizStore) FindDue(_ context.Context, now time.Time) ([]domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []domain.Quiz
	for _, q := range s.quizzes {
		if q.Status == domain.StatusScheduled && !q.StartTime.After(now) {
			due = append(due, *q)
		}
	}
	return due, nil
}

func (s *QuizStore) Get(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return *q, nil
}

func (s *QuizStore) TransitionStatus(_ context.Context, quizID string, from, to domain.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quizzes[quizID]
	if !ok {
		return false, domain.ErrQuizNotFound
	}
	if q.Status != from {
		return false, nil
	}
	q.Status = to
	return true, nil
}

func (s *QuizStore) AddScore(_ context.Context, quizID, userID, displayName string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[quizID]; !ok {
		return domain.ErrQuizNotFound
	}
	for _, entry := range s.scores[quizID] {
		if entry.UserID == userID {
			entry.Score += delta
			if displayName != "" {
				entry.DisplayName = displayName
			}
			return nil
		}
	}
	s.scores[quizID] = append(s.scores[quizID], &domain.ScoreEntry{
		UserID:      userID,
		DisplayName: displayName,
		Score:       delta,
	})
	return nil
}

func (s *QuizStore) Scores(_ context.Context, quizID string) ([]domain.ScoreEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]domain.ScoreEntry, 0, len(s.scores[quizID]))
	for _, entry := range s.scores[quizID] {
		entries = append(entries, *entry)
	}
	return entries, nil
}
