package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lvdashuaibi/pollhub/internal/model"
	"go.uber.org/zap"
)

func newPollEnv(t *testing.T) (*PollService, *memPollStore) {
	t.Helper()
	polls := newMemPollStore()
	return NewPollService(polls, zap.NewNop()), polls
}

func TestCreatePoll(t *testing.T) {
	svc, _ := newPollEnv(t)

	poll, err := svc.Create(context.Background(), 7, "alice", CreatePollInput{
		Title:     "  最喜欢的语言  ",
		Options:   []string{"Python", "", "JavaScript"},
		ExpiresAt: "2026-12-31T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if poll.ID == 0 || !poll.IsActive {
		t.Errorf("poll = %+v", poll)
	}
	if poll.Title != "最喜欢的语言" {
		t.Errorf("title = %q, want trimmed", poll.Title)
	}
	// 空白选项剔除后剩两个
	if len(poll.Options) != 2 {
		t.Fatalf("options = %d, want 2", len(poll.Options))
	}
	if poll.ExpiresAt == nil || !poll.ExpiresAt.Equal(time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expires_at = %v", poll.ExpiresAt)
	}
}

func TestCreatePollValidation(t *testing.T) {
	svc, _ := newPollEnv(t)

	cases := []struct {
		name  string
		input CreatePollInput
	}{
		{"empty title", CreatePollInput{Options: []string{"a", "b"}}},
		{"one option", CreatePollInput{Title: "t", Options: []string{"a"}}},
		{"blank options collapse", CreatePollInput{Title: "t", Options: []string{"a", "  ", ""}}},
		{"too many options", CreatePollInput{Title: "t", Options: []string{
			"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11"}}},
		{"bad expiry", CreatePollInput{Title: "t", Options: []string{"a", "b"}, ExpiresAt: "明天"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), 7, "alice", tc.input)
			if !errors.Is(err, model.ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestClosePollCreatorOnly(t *testing.T) {
	svc, polls := newPollEnv(t)
	polls.polls[1] = activePoll(1, 99, false)

	if err := svc.Close(context.Background(), 1, 7); !errors.Is(err, model.ErrForbidden) {
		t.Errorf("non-creator err = %v, want ErrForbidden", err)
	}
	if err := svc.Close(context.Background(), 1, 99); err != nil {
		t.Fatalf("creator Close: %v", err)
	}
	if polls.polls[1].IsActive {
		t.Error("poll still active after close")
	}
}

func TestDeletePollCreatorOnly(t *testing.T) {
	svc, polls := newPollEnv(t)
	polls.polls[1] = activePoll(1, 99, false)

	if err := svc.Delete(context.Background(), 1, 7); !errors.Is(err, model.ErrForbidden) {
		t.Errorf("non-creator err = %v, want ErrForbidden", err)
	}
	if err := svc.Delete(context.Background(), 1, 99); err != nil {
		t.Fatalf("creator Delete: %v", err)
	}
	if _, ok := polls.polls[1]; ok {
		t.Error("poll still present after delete")
	}
}

func TestDeleteUnknownPoll(t *testing.T) {
	svc, _ := newPollEnv(t)
	if err := svc.Delete(context.Background(), 42, 7); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
