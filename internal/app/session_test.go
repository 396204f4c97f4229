package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
	"livequiz-service/internal/infra/memory"
	"livequiz-service/internal/reward"
)

// fakeClock drives session timers with virtual time.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *fakeClock
	at    time.Time
	f     func()
	done  bool
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) app.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, timer)
	return timer
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// Advance moves virtual time forward, firing due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		var next *fakeTimer
		for _, timer := range c.timers {
			if timer.done || timer.at.After(target) {
				continue
			}
			if next == nil || timer.at.Before(next.at) {
				next = timer
			}
		}
		if next == nil {
			break
		}
		next.done = true
		c.now = next.at
		f := next.f
		c.mu.Unlock()
		f()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

type recordedEvent struct {
	quizID    string
	userID    string
	eventType string
	payload   any
}

type fakeFanout struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeFanout) BroadcastAll(quizID, eventType string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{quizID: quizID, eventType: eventType, payload: payload})
}

func (f *fakeFanout) SendTo(quizID, userID, eventType string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{quizID: quizID, userID: userID, eventType: eventType, payload: payload})
}

func (f *fakeFanout) count(eventType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ev := range f.events {
		if ev.eventType == eventType {
			n++
		}
	}
	return n
}

func (f *fakeFanout) last(eventType string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].eventType == eventType {
			return f.events[i].payload, true
		}
	}
	return nil, false
}

type fakeNotifier struct {
	mu        sync.Mutex
	failFor   map[string]bool
	delivered []string
	tokens    map[string]string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{failFor: make(map[string]bool), tokens: make(map[string]string)}
}

func (n *fakeNotifier) Deliver(_ context.Context, userID, _ string, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failFor[userID] {
		return errors.New("delivery refused")
	}
	n.delivered = append(n.delivered, userID)
	n.tokens[userID] = token
	return nil
}

func twoQuestionQuiz(start time.Time) domain.Quiz {
	return domain.Quiz{
		ID:        "quiz-1",
		Title:     "Capitals",
		StartTime: start,
		CreatedAt: start.Add(-time.Hour),
		Status:    domain.StatusScheduled,
		Questions: []domain.Question{
			{Text: "Q1", Options: []string{"a", "b", "c"}, CorrectIndex: 1, Marks: 10, TimeLimitSec: 20},
			{Text: "Q2", Options: []string{"a", "b", "c"}, CorrectIndex: 2, Marks: 10, TimeLimitSec: 30},
		},
	}
}

type fixture struct {
	clock    *fakeClock
	store    *memory.QuizStore
	fanout   *fakeFanout
	notifier *fakeNotifier
	issuer   *reward.Issuer
	manager  *app.SessionManager
	quiz     domain.Quiz
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	start := time.Date(2025, 8, 11, 18, 0, 0, 0, time.UTC)
	quiz := twoQuestionQuiz(start)
	clock := newFakeClock(start)
	store := memory.NewQuizStore(quiz)
	fanout := &fakeFanout{}
	notifier := newFakeNotifier()
	issuer := reward.NewIssuer("test-secret")
	manager := app.NewSessionManager(store, fanout, app.ManagerOptions{
		Clock: clock,
		Config: app.SessionConfig{
			QuestionGrace:    500 * time.Millisecond,
			LeaderboardGrace: 30 * time.Second,
			Winners:          3,
		},
		Rewards:  issuer,
		Notifier: notifier,
	})
	return &fixture{clock: clock, store: store, fanout: fanout, notifier: notifier, issuer: issuer, manager: manager, quiz: quiz}
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if err := f.manager.StartSession(context.Background(), f.quiz); err != nil {
		t.Fatalf("start session: %v", err)
	}
}

func TestSessionTimelineAndScoring(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.start(t)

	if got := f.fanout.count(app.EventSessionStart); got != 1 {
		t.Fatalf("expected 1 session_start, got %d", got)
	}
	payload, ok := f.fanout.last(app.EventNewQuestion)
	if !ok {
		t.Fatalf("expected first question broadcast")
	}
	if view := payload.(domain.QuestionView); view.Index != 0 {
		t.Fatalf("expected question 0, got %d", view.Index)
	}

	// Correct answer 5s into a 20s question: 5 + round-share of speed bonus = 9.
	f.clock.Advance(5 * time.Second)
	result, err := f.manager.Submit(ctx, "quiz-1", "u1", "Alice", 0, 1)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Correct || result.CorrectOptionIndex != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	assertScore(t, f.store, "u1", 9)

	// Second question broadcasts when the first timer fires at +20s.
	f.clock.Advance(15 * time.Second)
	payload, _ = f.fanout.last(app.EventNewQuestion)
	if view := payload.(domain.QuestionView); view.Index != 1 {
		t.Fatalf("expected question 1 current, got %d", view.Index)
	}

	// Correct answer 10s into a 30s question adds 8 points.
	f.clock.Advance(10 * time.Second)
	if _, err := f.manager.Submit(ctx, "quiz-1", "u1", "Alice", 1, 2); err != nil {
		t.Fatalf("submit q2: %v", err)
	}
	assertScore(t, f.store, "u1", 17)

	// The last timer at +50s finishes the session.
	f.clock.Advance(20 * time.Second)
	if got := f.fanout.count(app.EventSessionEnd); got != 1 {
		t.Fatalf("expected session_end, got %d", got)
	}
	quiz, _ := f.store.Get(ctx, "quiz-1")
	if quiz.Status != domain.StatusFinished {
		t.Fatalf("expected finished status, got %s", quiz.Status)
	}

	// Leaderboard publishes after the grace period, with rewards for the top.
	f.clock.Advance(30 * time.Second)
	payload, ok = f.fanout.last(app.EventLeaderboard)
	if !ok {
		t.Fatalf("expected leaderboard broadcast")
	}
	entries := payload.([]domain.ScoreEntry)
	if len(entries) != 1 || entries[0].UserID != "u1" || entries[0].Score != 17 {
		t.Fatalf("unexpected leaderboard %+v", entries)
	}

	if len(f.notifier.delivered) != 1 || f.notifier.delivered[0] != "u1" {
		t.Fatalf("expected reward delivered to u1, got %v", f.notifier.delivered)
	}
	claims, err := f.issuer.Verify(f.notifier.tokens["u1"])
	if err != nil {
		t.Fatalf("verify reward token: %v", err)
	}
	if claims.UserID != "u1" || claims.QuizID != "quiz-1" || claims.QuizCreatedAt != f.quiz.CreatedAt.Unix() {
		t.Fatalf("unexpected claims %+v", claims)
	}

	// Session is gone; attaching now reports the quiz ended.
	eventType, _ := f.manager.AttachState(ctx, "quiz-1")
	if eventType != app.EventQuizEnded {
		t.Fatalf("expected quiz_ended after close, got %s", eventType)
	}
}

func TestDoubleStartIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.start(t)

	if got := f.fanout.count(app.EventSessionStart); got != 1 {
		t.Fatalf("expected exactly one session_start, got %d", got)
	}
	if got := f.fanout.count(app.EventNewQuestion); got != 1 {
		t.Fatalf("expected exactly one question broadcast, got %d", got)
	}
}

func TestLateJoinReconstruction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.start(t)

	// 25s in: Q1's window is [0s, 20.5s), Q2's is [20.5s, 50.5s).
	f.clock.Advance(25 * time.Second)
	session, ok := f.manager.Get("quiz-1")
	if !ok {
		t.Fatalf("expected running session")
	}
	view, ok := session.CurrentQuestion()
	if !ok || view.Index != 1 {
		t.Fatalf("expected reconstruction to land on question 1, got %+v ok=%v", view, ok)
	}

	// Determinism: a second reconstruction at the same instant agrees.
	again, _ := session.CurrentQuestion()
	if again.Index != view.Index {
		t.Fatalf("reconstruction disagreed: %d vs %d", again.Index, view.Index)
	}

	eventType, payload := f.manager.AttachState(ctx, "quiz-1")
	if eventType != app.EventNewQuestion {
		t.Fatalf("expected new_question on attach, got %s", eventType)
	}
	if payload.(domain.QuestionView).Index != 1 {
		t.Fatalf("attach state returned wrong question: %+v", payload)
	}
}

func TestAttachStateWithoutRuntime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Still scheduled: nothing live.
	eventType, _ := f.manager.AttachState(ctx, "quiz-1")
	if eventType != app.EventNoActiveQuiz {
		t.Fatalf("expected no_active_quiz, got %s", eventType)
	}

	// Unknown quiz behaves the same.
	eventType, _ = f.manager.AttachState(ctx, "quiz-404")
	if eventType != app.EventNoActiveQuiz {
		t.Fatalf("expected no_active_quiz for unknown quiz, got %s", eventType)
	}

	// A quiz marked live with no runtime here cannot be resumed.
	if _, err := f.store.TransitionStatus(ctx, "quiz-1", domain.StatusScheduled, domain.StatusLive); err != nil {
		t.Fatalf("transition: %v", err)
	}
	eventType, _ = f.manager.AttachState(ctx, "quiz-1")
	if eventType != app.EventQuizEnded {
		t.Fatalf("expected quiz_ended for orphaned live quiz, got %s", eventType)
	}
}

func TestStaleAndDuplicateAnswersDoNotScore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.start(t)

	// Move to question 1; question 0 is no longer current.
	f.clock.Advance(20 * time.Second)

	result, err := f.manager.Submit(ctx, "quiz-1", "u1", "Alice", 0, 1)
	if err != nil {
		t.Fatalf("stale submit: %v", err)
	}
	if !result.Correct {
		t.Fatalf("stale answers still get feedback, got %+v", result)
	}
	assertScore(t, f.store, "u1", 0)

	// First answer on the current question counts once.
	f.clock.Advance(10 * time.Second)
	if _, err := f.manager.Submit(ctx, "quiz-1", "u1", "Alice", 1, 2); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.manager.Submit(ctx, "quiz-1", "u1", "Alice", 1, 2); err != nil {
		t.Fatalf("duplicate submit: %v", err)
	}
	assertScore(t, f.store, "u1", 8)

	// Out-of-range submissions are rejected without scoring.
	if _, err := f.manager.Submit(ctx, "quiz-1", "u1", "Alice", 9, 0); err != domain.ErrQuestionNotFound {
		t.Fatalf("expected question error, got %v", err)
	}
	if _, err := f.manager.Submit(ctx, "quiz-1", "u1", "Alice", 1, 9); err != domain.ErrOptionNotFound {
		t.Fatalf("expected option error, got %v", err)
	}
	if _, err := f.manager.Submit(ctx, "quiz-404", "u1", "Alice", 0, 0); err != domain.ErrQuizNotLive {
		t.Fatalf("expected not-live error, got %v", err)
	}
}

func TestRewardDeliveryFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.notifier.failFor["u1"] = true
	f.start(t)

	if _, err := f.manager.Submit(ctx, "quiz-1", "u1", "Alice", 0, 1); err != nil {
		t.Fatalf("submit u1: %v", err)
	}
	f.clock.Advance(5 * time.Second)
	if _, err := f.manager.Submit(ctx, "quiz-1", "u2", "Bob", 0, 1); err != nil {
		t.Fatalf("submit u2: %v", err)
	}

	// Run out the session and the grace period.
	f.clock.Advance(80 * time.Second)

	payload, ok := f.fanout.last(app.EventLeaderboard)
	if !ok {
		t.Fatalf("expected leaderboard")
	}
	entries := payload.([]domain.ScoreEntry)
	if len(entries) != 2 || entries[0].UserID != "u1" {
		t.Fatalf("expected u1 leading, got %+v", entries)
	}

	// u1's delivery failed but u2 still received a reward.
	if len(f.notifier.delivered) != 1 || f.notifier.delivered[0] != "u2" {
		t.Fatalf("expected delivery to u2 only, got %v", f.notifier.delivered)
	}
}

func TestLeaderboardWithNoScoresIsEmptyArray(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	// Both questions elapse without a single answer.
	f.clock.Advance(51 * time.Second)
	f.clock.Advance(30 * time.Second)

	payload, ok := f.fanout.last(app.EventLeaderboard)
	if !ok {
		t.Fatalf("expected leaderboard broadcast")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal leaderboard: %v", err)
	}
	if string(raw) != "[]" {
		t.Fatalf("expected empty array, got %s", raw)
	}
}

func assertScore(t *testing.T, store *memory.QuizStore, userID string, want int) {
	t.Helper()
	entries, err := store.Scores(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("scores: %v", err)
	}
	got := 0
	for _, entry := range entries {
		if entry.UserID == userID {
			got = entry.Score
		}
	}
	if got != want {
		t.Fatalf("expected score %d for %s, got %d", want, userID, got)
	}
}
