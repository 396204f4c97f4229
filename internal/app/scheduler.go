package app

import (
	"context"
	"log"
	"sync"
	"time"

	"livequiz-service/internal/domain"
)

// Scheduler periodically sweeps the repository for quizzes whose scheduled
// start time has passed and triggers their sessions. A sweep failure is
// logged and retried on the next tick; one quiz failing to start never blocks
// the rest of the batch.
type Scheduler struct {
	repo     QuizRepository
	manager  *SessionManager
	clock    Clock
	interval time.Duration
}

func NewScheduler(repo QuizRepository, manager *SessionManager, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Scheduler{
		repo:     repo,
		manager:  manager,
		clock:    manager.clock,
		interval: interval,
	}
}

// Run sweeps until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep starts every due quiz concurrently and waits for the batch.
func (s *Scheduler) sweep(ctx context.Context) {
	due, err := s.repo.FindDue(ctx, s.clock.Now())
	if err != nil {
		log.Printf("scheduler: find due quizzes: %v", err)
		return
	}

	var wg sync.WaitGroup
	for _, quiz := range due {
		wg.Add(1)
		go func(q domain.Quiz) {
			defer wg.Done()
			if err := s.manager.StartSession(ctx, q); err != nil {
				log.Printf("scheduler: start quiz %s: %v", q.ID, err)
			}
		}(quiz)
	}
	wg.Wait()
}
