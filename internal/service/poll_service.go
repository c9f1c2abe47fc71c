package service

import (
	"context"
	"fmt"
	"time"

	"github.com/lvdashuaibi/pollhub/internal/model"
	"github.com/lvdashuaibi/pollhub/internal/validator"
	"go.uber.org/zap"
)

const (
	minOptions = 2
	maxOptions = 10
	maxPerPage = 50
)

// PollStore Poll存储
type PollStore interface {
	CreatePoll(ctx context.Context, poll *model.Poll) error
	GetPoll(ctx context.Context, pollID int64) (*model.Poll, error)
	ListActivePolls(ctx context.Context, page, perPage int) ([]*model.Poll, int, error)
	ClosePoll(ctx context.Context, pollID int64) error
	DeletePoll(ctx context.Context, pollID int64) error
}

// CreatePollInput 创建Poll的输入
type CreatePollInput struct {
	Title              string
	Description        string
	Options            []string
	ExpiresAt          string // RFC3339，可为空
	AllowMultipleVotes bool
	IsAnonymous        bool
}

type PollService struct {
	polls  PollStore
	logger *zap.Logger
}

func NewPollService(polls PollStore, logger *zap.Logger) *PollService {
	return &PollService{polls: polls, logger: logger}
}

// Create 创建Poll，选项一并创建且之后不可变
func (s *PollService) Create(ctx context.Context, creatorID int64, creatorUsername string, input CreatePollInput) (*model.Poll, error) {
	title := validator.SanitizeInput(input.Title, 200)
	if title == "" {
		return nil, fmt.Errorf("标题不能为空: %w", model.ErrInvalidInput)
	}

	var options []*model.Option
	for idx, text := range input.Options {
		text = validator.SanitizeInput(text, 200)
		if text == "" {
			continue
		}
		options = append(options, &model.Option{Text: text, Position: idx})
	}
	if len(options) < minOptions {
		return nil, fmt.Errorf("至少需要%d个选项: %w", minOptions, model.ErrInvalidInput)
	}
	if len(options) > maxOptions {
		return nil, fmt.Errorf("最多允许%d个选项: %w", maxOptions, model.ErrInvalidInput)
	}

	poll := &model.Poll{
		Title:              title,
		Description:        validator.SanitizeInput(input.Description, 1000),
		CreatorID:          creatorID,
		CreatorUsername:    creatorUsername,
		IsActive:           true,
		AllowMultipleVotes: input.AllowMultipleVotes,
		IsAnonymous:        input.IsAnonymous,
		Options:            options,
	}

	if input.ExpiresAt != "" {
		expiresAt, err := time.Parse(time.RFC3339, input.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("过期时间格式无效: %w", model.ErrInvalidInput)
		}
		poll.ExpiresAt = &expiresAt
	}

	if err := s.polls.CreatePoll(ctx, poll); err != nil {
		return nil, err
	}
	poll.CreatedAt = time.Now()

	s.logger.Info("Poll创建成功",
		zap.Int64("poll_id", poll.ID),
		zap.Int64("creator_id", creatorID),
		zap.Int("options", len(options)))
	return poll, nil
}

// Get 查询单个Poll
func (s *PollService) Get(ctx context.Context, pollID int64) (*model.Poll, error) {
	return s.polls.GetPoll(ctx, pollID)
}

// List 分页查询进行中的Poll
func (s *PollService) List(ctx context.Context, page, perPage int) ([]*model.Poll, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return s.polls.ListActivePolls(ctx, page, perPage)
}

// Close 关闭Poll，仅创建者可操作
func (s *PollService) Close(ctx context.Context, pollID, requesterID int64) error {
	poll, err := s.polls.GetPoll(ctx, pollID)
	if err != nil {
		return err
	}
	if poll.CreatorID != requesterID {
		return model.ErrForbidden
	}
	return s.polls.ClosePoll(ctx, pollID)
}

// Delete 删除Poll，仅创建者可操作，选项级联删除
func (s *PollService) Delete(ctx context.Context, pollID, requesterID int64) error {
	poll, err := s.polls.GetPoll(ctx, pollID)
	if err != nil {
		return err
	}
	if poll.CreatorID != requesterID {
		return model.ErrForbidden
	}
	return s.polls.DeletePoll(ctx, pollID)
}
