package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/lvdashuaibi/pollhub/internal/lock"
	"github.com/lvdashuaibi/pollhub/internal/model"
	"go.uber.org/zap"
)

const (
	trendingLimit  = 10
	rebuildLockTTL = 2 * time.Second
	anonymousVoter = "anonymous"
)

// ResultsStore 结果聚合需要的投票日志查询
type ResultsStore interface {
	CountVotesByOption(ctx context.Context, pollID int64) (map[int64]int, error)
	ListVotesForPoll(ctx context.Context, pollID int64) ([]*model.Vote, error)
	Trending(ctx context.Context, since time.Time, limit int) ([]*model.TrendingPoll, error)
	Stats(ctx context.Context) (*model.OverallStats, error)
}

// ResultsCache 结果缓存
type ResultsCache interface {
	GetResults(ctx context.Context, pollID int64) (*model.PollResults, bool, error)
	SetResults(ctx context.Context, results *model.PollResults) error
	InvalidateResults(ctx context.Context, pollID int64) error
}

type ResultsService struct {
	polls        PollGetter
	store        ResultsStore
	cache        ResultsCache
	rebuildLock  lock.Lock
	logger       *zap.Logger
	retryBackoff time.Duration
	now          func() time.Time
}

func NewResultsService(polls PollGetter, store ResultsStore, cache ResultsCache, rebuildLock lock.Lock, logger *zap.Logger) *ResultsService {
	return &ResultsService{
		polls:        polls,
		store:        store,
		cache:        cache,
		rebuildLock:  rebuildLock,
		logger:       logger,
		retryBackoff: 100 * time.Millisecond,
		now:          time.Now,
	}
}

// retryRead 幂等读在依赖瞬时失败时最多重试一次。投票写入从不自动重试
func (s *ResultsService) retryRead(fn func() error) error {
	err := fn()
	if err != nil && errors.Is(err, model.ErrServiceUnavailable) {
		time.Sleep(s.retryBackoff)
		err = fn()
	}
	return err
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// GetResults 查询Poll的聚合结果。缓存优先，未命中时按选项分组统计、
// 算百分比、排序后回填缓存。排序为票数倒序、平票按option_id升序，
// 保证响应顺序确定
func (s *ResultsService) GetResults(ctx context.Context, pollID int64) (*model.PollResults, error) {
	if cached, found, err := s.cache.GetResults(ctx, pollID); err != nil {
		// 缓存不可用降级为直查数据库
		s.logger.Warn("读取结果缓存失败", zap.Int64("poll_id", pollID), zap.Error(err))
	} else if found {
		return cached, nil
	}

	var poll *model.Poll
	if err := s.retryRead(func() error {
		var err error
		poll, err = s.polls.GetPoll(ctx, pollID)
		return err
	}); err != nil {
		return nil, err
	}

	// 多实例下避免同一个Poll的缓存重建蜂拥，拿不到锁照常重建
	lockName := fmt.Sprintf("results:rebuild:%d", pollID)
	if s.rebuildLock != nil {
		if acquired, err := s.rebuildLock.AcquireLock(lockName, rebuildLockTTL); err == nil && acquired {
			defer s.rebuildLock.ReleaseLock(lockName)
		}
	}

	var counts map[int64]int
	if err := s.retryRead(func() error {
		var err error
		counts, err = s.store.CountVotesByOption(ctx, pollID)
		return err
	}); err != nil {
		return nil, err
	}

	total := 0
	for _, count := range counts {
		total += count
	}

	results := make([]*model.OptionResult, 0, len(poll.Options))
	for _, opt := range poll.Options {
		count := counts[opt.ID]
		percentage := 0.0
		if total > 0 {
			percentage = round2(float64(count) / float64(total) * 100)
		}
		results = append(results, &model.OptionResult{
			OptionID:   opt.ID,
			Votes:      count,
			Percentage: percentage,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Votes != results[j].Votes {
			return results[i].Votes > results[j].Votes
		}
		return results[i].OptionID < results[j].OptionID
	})

	pollResults := &model.PollResults{
		PollID:     pollID,
		TotalVotes: total,
		Results:    results,
	}

	if err := s.cache.SetResults(ctx, pollResults); err != nil {
		s.logger.Warn("写入结果缓存失败", zap.Int64("poll_id", pollID), zap.Error(err))
	}
	return pollResults, nil
}

// GetDetailedResults 带投票人身份的明细结果，仅创建者可见。
// 涉及投票人身份，绝不与公开结果共用缓存，直接不缓存
func (s *ResultsService) GetDetailedResults(ctx context.Context, pollID, requesterID int64) (*model.DetailedResults, error) {
	poll, err := s.polls.GetPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if poll.CreatorID != requesterID {
		return nil, model.ErrForbidden
	}

	var votes []*model.Vote
	if err := s.retryRead(func() error {
		var err error
		votes, err = s.store.ListVotesForPoll(ctx, pollID)
		return err
	}); err != nil {
		return nil, err
	}

	counts := make(map[int64]int)
	voters := make(map[int64][]*model.VoterRecord)
	for _, vote := range votes {
		counts[vote.OptionID]++
		name := vote.Username
		if name == "" {
			name = anonymousVoter
		}
		voters[vote.OptionID] = append(voters[vote.OptionID], &model.VoterRecord{
			Username: name,
			VotedAt:  vote.VotedAt,
		})
	}

	total := len(votes)
	results := make([]*model.DetailedOptionResult, 0, len(poll.Options))
	for _, opt := range poll.Options {
		count := counts[opt.ID]
		percentage := 0.0
		if total > 0 {
			percentage = round2(float64(count) / float64(total) * 100)
		}
		results = append(results, &model.DetailedOptionResult{
			OptionID:   opt.ID,
			Votes:      count,
			Percentage: percentage,
			Voters:     voters[opt.ID],
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Votes != results[j].Votes {
			return results[i].Votes > results[j].Votes
		}
		return results[i].OptionID < results[j].OptionID
	})

	return &model.DetailedResults{
		PollID:     pollID,
		TotalVotes: total,
		Results:    results,
	}, nil
}

// ExportCSV 导出投票明细CSV，仅创建者可用。每票一行，时间升序
func (s *ResultsService) ExportCSV(ctx context.Context, pollID, requesterID int64, w io.Writer) error {
	poll, err := s.polls.GetPoll(ctx, pollID)
	if err != nil {
		return err
	}
	if poll.CreatorID != requesterID {
		return model.ErrForbidden
	}

	votes, err := s.store.ListVotesForPoll(ctx, pollID)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Option ID", "Username", "Voted At"}); err != nil {
		return fmt.Errorf("写CSV表头失败: %w", err)
	}
	for _, vote := range votes {
		name := vote.Username
		if name == "" {
			name = anonymousVoter
		}
		record := []string{
			strconv.FormatInt(vote.OptionID, 10),
			name,
			vote.VotedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("写CSV记录失败: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// Trending 时间窗口内的热门Poll，票数倒序，平票按poll_id升序
func (s *ResultsService) Trending(ctx context.Context, window time.Duration) ([]*model.TrendingPoll, error) {
	since := s.now().Add(-window)

	var trending []*model.TrendingPoll
	if err := s.retryRead(func() error {
		var err error
		trending, err = s.store.Trending(ctx, since, trendingLimit)
		return err
	}); err != nil {
		return nil, err
	}
	return trending, nil
}

// Stats 全站统计
func (s *ResultsService) Stats(ctx context.Context) (*model.OverallStats, error) {
	var stats *model.OverallStats
	if err := s.retryRead(func() error {
		var err error
		stats, err = s.store.Stats(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	return stats, nil
}

// ProcessVoteEvent 消费投票事件，主动失效对应Poll的结果缓存
func (s *ResultsService) ProcessVoteEvent(event *model.VoteEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.cache.InvalidateResults(ctx, event.PollID); err != nil {
		return fmt.Errorf("处理投票事件失效缓存失败: %w", err)
	}
	return nil
}
