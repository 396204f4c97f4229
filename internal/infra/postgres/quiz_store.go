package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"livequiz-service/internal/domain"
)

// QuizStore implements app.QuizRepository on Postgres. Quiz definitions live
// as JSONB next to the status/start_time columns the scheduler filters on;
// score rows are upserted with an atomic increment.
type QuizStore struct {
	pool *pgxpool.Pool
}

func NewQuizStore(pool *pgxpool.Pool) *QuizStore {
	return &QuizStore{pool: pool}
}

func (s *QuizStore) FindDue(ctx context.Context, now time.Time) ([]domain.Quiz, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, start_time, created_at, status, questions
		 FROM quizzes WHERE status=$1 AND start_time<=$2`,
		domain.StatusScheduled, now)
	if err != nil {
		return nil, fmt.Errorf("find due quizzes: %w", err)
	}
	defer rows.Close()

	var due []domain.Quiz
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, quiz)
	}
	return due, rows.Err()
}

func (s *QuizStore) Get(ctx context.Context, quizID string) (domain.Quiz, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, title, start_time, created_at, status, questions
		 FROM quizzes WHERE id=$1`, quizID)
	quiz, err := scanQuiz(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, err
}

func (s *QuizStore) TransitionStatus(ctx context.Context, quizID string, from, to domain.Status) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE quizzes SET status=$3 WHERE id=$1 AND status=$2`,
		quizID, from, to)
	if err != nil {
		return false, fmt.Errorf("transition quiz %s: %w", quizID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *QuizStore) AddScore(ctx context.Context, quizID, userID, displayName string, delta int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO quiz_scores (quiz_id, user_id, display_name, score)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (quiz_id, user_id)
		 DO UPDATE SET score = quiz_scores.score + EXCLUDED.score,
		               display_name = EXCLUDED.display_name`,
		quizID, userID, displayName, delta)
	if err != nil {
		return fmt.Errorf("add score: %w", err)
	}
	return nil
}

func (s *QuizStore) Scores(ctx context.Context, quizID string) ([]domain.ScoreEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, display_name, score FROM quiz_scores
		 WHERE quiz_id=$1 ORDER BY created_at`, quizID)
	if err != nil {
		return nil, fmt.Errorf("load scores: %w", err)
	}
	defer rows.Close()

	var entries []domain.ScoreEntry
	for rows.Next() {
		var entry domain.ScoreEntry
		if err := rows.Scan(&entry.UserID, &entry.DisplayName, &entry.Score); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanQuiz(row pgx.Row) (domain.Quiz, error) {
	var quiz domain.Quiz
	var questions []byte
	if err := row.Scan(&quiz.ID, &quiz.Title, &quiz.StartTime, &quiz.CreatedAt, &quiz.Status, &questions); err != nil {
		return domain.Quiz{}, err
	}
	if err := json.Unmarshal(questions, &quiz.Questions); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal questions: %w", err)
	}
	return quiz, nil
}
