package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lvdashuaibi/pollhub/internal/dedup"
	"github.com/lvdashuaibi/pollhub/internal/model"
	"go.uber.org/zap"
)

// VoteStore 投票日志存储
type VoteStore interface {
	InsertVote(ctx context.Context, vote *model.Vote) error
	GetUserVoteOnPoll(ctx context.Context, pollID, userID int64) (*model.Vote, error)
	ListUserVotes(ctx context.Context, userID int64, page, perPage int) ([]*model.Vote, int, error)
}

// PollGetter 投票准入只需要读Poll
type PollGetter interface {
	GetPoll(ctx context.Context, pollID int64) (*model.Poll, error)
}

// EventPublisher 投票事件发布
type EventPublisher interface {
	SendVoteEvent(ctx context.Context, event *model.VoteEvent) error
}

// ResultsInvalidator 结果缓存失效，事件发送失败时的兜底路径
type ResultsInvalidator interface {
	InvalidateResults(ctx context.Context, pollID int64) error
}

type VoteService struct {
	polls      PollGetter
	votes      VoteStore
	checker    dedup.Checker
	marks      dedup.MarkStore
	publisher  EventPublisher
	results    ResultsInvalidator
	anonWindow time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

func NewVoteService(
	polls PollGetter,
	votes VoteStore,
	checker dedup.Checker,
	marks dedup.MarkStore,
	publisher EventPublisher,
	results ResultsInvalidator,
	anonWindow time.Duration,
	logger *zap.Logger,
) *VoteService {
	return &VoteService{
		polls:      polls,
		votes:      votes,
		checker:    checker,
		marks:      marks,
		publisher:  publisher,
		results:    results,
		anonWindow: anonWindow,
		logger:     logger,
		now:        time.Now,
	}
}

// voterKey 按去重策略推导(poll, 投票人)的唯一键：
// 认证用户固定为u:<user_id>；匿名投票按IP加时间窗口分桶；
// 允许多次投票的Poll生成随机key，使数据库唯一约束不生效
func (s *VoteService) voterKey(poll *model.Poll, voter model.Voter, votedAt time.Time) string {
	if poll.AllowMultipleVotes {
		return uuid.NewString()
	}
	if !voter.Anonymous() {
		return fmt.Sprintf("u:%d", *voter.UserID)
	}
	bucket := votedAt.Unix() / int64(s.anonWindow.Seconds())
	return fmt.Sprintf("ip:%s:%d", voter.IP, bucket)
}

// SubmitVote 投票准入。前置条件按序检查：Poll存在且进行中未过期，
// 选项属于该Poll，投票人未投过票。落库在先、写缓存标记在后，保证
// 崩溃时权威存储不落后于缓存。数据库唯一约束是并发下的最终防线。
func (s *VoteService) SubmitVote(ctx context.Context, pollID, optionID int64, voter model.Voter) (*model.VoteReceipt, error) {
	now := s.now()

	poll, err := s.polls.GetPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}

	if !poll.IsActive || poll.Expired(now) {
		return nil, model.ErrPollClosed
	}

	var option *model.Option
	for _, opt := range poll.Options {
		if opt.ID == optionID {
			option = opt
			break
		}
	}
	if option == nil {
		return nil, model.ErrInvalidOption
	}

	voterKey := s.voterKey(poll, voter, now)

	if !poll.AllowMultipleVotes {
		voted, err := s.checker.AlreadyVoted(ctx, pollID, voterKey)
		if err != nil {
			return nil, err
		}
		if voted {
			return nil, model.ErrDuplicateVote
		}
	}

	vote := &model.Vote{
		PollID:    pollID,
		OptionID:  optionID,
		UserID:    voter.UserID,
		Username:  voter.Username,
		IPAddress: voter.IP,
		VotedAt:   now,
		VoterKey:  voterKey,
	}

	// 并发同键插入时唯一约束拒绝第二条，和预检路径同样返回DuplicateVote
	if err := s.votes.InsertVote(ctx, vote); err != nil {
		return nil, err
	}

	// 标记写入失败不影响投票结果，下次检查会回落到数据库
	if err := s.marks.SetVoteMark(ctx, pollID, voterKey); err != nil {
		s.logger.Warn("写入已投票标记失败", zap.Int64("poll_id", pollID), zap.Error(err))
	}

	event := &model.VoteEvent{
		PollID:   pollID,
		OptionID: optionID,
		UserID:   voter.UserID,
		Username: voter.Username,
		VotedAt:  now,
	}
	if err := s.publisher.SendVoteEvent(ctx, event); err != nil {
		s.logger.Warn("发送投票事件失败，直接失效结果缓存", zap.Int64("poll_id", pollID), zap.Error(err))
		// 事件没发出去就地失效缓存，保证结果staleness不超过TTL
		if err := s.results.InvalidateResults(ctx, pollID); err != nil {
			s.logger.Warn("失效结果缓存失败", zap.Int64("poll_id", pollID), zap.Error(err))
		}
	}

	return &model.VoteReceipt{
		PollID:   pollID,
		OptionID: optionID,
		VotedAt:  vote.VotedAt,
	}, nil
}

// CheckVote 查询用户是否在某个Poll上投过票
func (s *VoteService) CheckVote(ctx context.Context, pollID, userID int64) (*model.Vote, bool, error) {
	vote, err := s.votes.GetUserVoteOnPoll(ctx, pollID, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return vote, true, nil
}

// UserVotes 分页查询用户的投票历史
func (s *VoteService) UserVotes(ctx context.Context, userID int64, page, perPage int) ([]*model.Vote, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return s.votes.ListUserVotes(ctx, userID, page, perPage)
}
