package app

import (
	"testing"
	"time"
)

func TestManagerConfigDefaultsPerField(t *testing.T) {
	m := NewSessionManager(nil, nullFanout{}, ManagerOptions{
		Config: SessionConfig{Winners: 1},
	})
	if m.cfg.Winners != 1 {
		t.Fatalf("expected winners 1, got %d", m.cfg.Winners)
	}
	if m.cfg.QuestionGrace != 500*time.Millisecond {
		t.Fatalf("expected question grace defaulted, got %v", m.cfg.QuestionGrace)
	}
	if m.cfg.LeaderboardGrace != 30*time.Second {
		t.Fatalf("expected leaderboard grace defaulted, got %v", m.cfg.LeaderboardGrace)
	}

	m = NewSessionManager(nil, nullFanout{}, ManagerOptions{})
	if m.cfg != DefaultSessionConfig() {
		t.Fatalf("expected full defaults, got %+v", m.cfg)
	}
}
