// Package dedup 实现两级防重复投票检查：缓存快速路径在前，
// 数据库权威路径兜底。缓存只是优化，不可用时直接降级到数据库。
package dedup

import (
	"context"

	"go.uber.org/zap"
)

// Checker 判断投票人是否已在某个Poll上投过票
type Checker interface {
	AlreadyVoted(ctx context.Context, pollID int64, voterKey string) (bool, error)
}

// MarkStore 缓存侧的已投票标记存取
type MarkStore interface {
	HasVoteMark(ctx context.Context, pollID int64, voterKey string) (bool, error)
	SetVoteMark(ctx context.Context, pollID int64, voterKey string) error
}

// VoteLog 权威投票日志查询
type VoteLog interface {
	HasVoted(ctx context.Context, pollID int64, voterKey string) (bool, error)
}

// CacheChecker 基于缓存标记的快速检查
type CacheChecker struct {
	marks MarkStore
}

func NewCacheChecker(marks MarkStore) *CacheChecker {
	return &CacheChecker{marks: marks}
}

func (c *CacheChecker) AlreadyVoted(ctx context.Context, pollID int64, voterKey string) (bool, error) {
	return c.marks.HasVoteMark(ctx, pollID, voterKey)
}

// StoreChecker 基于投票日志的权威检查
type StoreChecker struct {
	log VoteLog
}

func NewStoreChecker(log VoteLog) *StoreChecker {
	return &StoreChecker{log: log}
}

func (c *StoreChecker) AlreadyVoted(ctx context.Context, pollID int64, voterKey string) (bool, error) {
	return c.log.HasVoted(ctx, pollID, voterKey)
}

// Tiered 按顺序组合多级检查。前一级命中即短路拒绝；前一级出错或
// 未命中则继续后一级。只有最后一级（权威级）的错误才向上返回。
type Tiered struct {
	checkers []Checker
	logger   *zap.Logger
}

func NewTiered(logger *zap.Logger, checkers ...Checker) *Tiered {
	return &Tiered{checkers: checkers, logger: logger}
}

func (t *Tiered) AlreadyVoted(ctx context.Context, pollID int64, voterKey string) (bool, error) {
	for i, checker := range t.checkers {
		voted, err := checker.AlreadyVoted(ctx, pollID, voterKey)
		if err != nil {
			if i == len(t.checkers)-1 {
				return false, err
			}
			// 非权威级不可用时降级到下一级
			t.logger.Warn("防重检查降级到下一级",
				zap.Int64("poll_id", pollID),
				zap.Int("tier", i),
				zap.Error(err))
			continue
		}
		if voted {
			return true, nil
		}
		// 缓存可能被淘汰或重启后为空，未命中不能作数
	}
	return false, nil
}
