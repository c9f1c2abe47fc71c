package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lvdashuaibi/pollhub/config"
	"github.com/lvdashuaibi/pollhub/internal/model"
)

const (
	// Redis键前缀
	DedupKeyPrefix   = "vote:dedup:"
	ResultsKeyPrefix = "results:"
)

type RedisRepository struct {
	client     *redis.Client
	dedupTTL   time.Duration
	resultsTTL time.Duration
}

func NewRedisRepository() (*RedisRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.AppConfig.Redis.DataAddress,
		Password:     config.AppConfig.Redis.Password,
		DB:           config.AppConfig.Redis.DB,
		PoolSize:     config.AppConfig.Redis.PoolSize,
		MaxRetries:   config.AppConfig.Redis.MaxRetries,
		DialTimeout:  config.AppConfig.Redis.Timeout,
		ReadTimeout:  config.AppConfig.Redis.Timeout,
		WriteTimeout: config.AppConfig.Redis.Timeout,
	})

	// 测试连接
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("Redis连接测试失败: %w", err)
	}

	return &RedisRepository{
		client:     client,
		dedupTTL:   config.AppConfig.Cache.DedupTTL,
		resultsTTL: config.AppConfig.Cache.ResultsTTL,
	}, nil
}

func dedupKey(pollID int64, voterKey string) string {
	return fmt.Sprintf("%s%d:%s", DedupKeyPrefix, pollID, voterKey)
}

func resultsKey(pollID int64) string {
	return fmt.Sprintf("%s%d", ResultsKeyPrefix, pollID)
}

// HasVoteMark 查询已投票标记，未命中不代表没投过，需回查数据库
func (r *RedisRepository) HasVoteMark(ctx context.Context, pollID int64, voterKey string) (bool, error) {
	n, err := r.client.Exists(ctx, dedupKey(pollID, voterKey)).Result()
	if err != nil {
		return false, fmt.Errorf("查询已投票标记失败: %w", err)
	}
	return n > 0, nil
}

// SetVoteMark 写入已投票标记，必须在投票落库之后调用
func (r *RedisRepository) SetVoteMark(ctx context.Context, pollID int64, voterKey string) error {
	if err := r.client.Set(ctx, dedupKey(pollID, voterKey), "1", r.dedupTTL).Err(); err != nil {
		return fmt.Errorf("写入已投票标记失败: %w", err)
	}
	return nil
}

// GetResults 从缓存读取结果
func (r *RedisRepository) GetResults(ctx context.Context, pollID int64) (*model.PollResults, bool, error) {
	data, err := r.client.Get(ctx, resultsKey(pollID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil // 缓存未命中
		}
		return nil, false, fmt.Errorf("读取结果缓存失败: %w", err)
	}

	var results model.PollResults
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		return nil, false, fmt.Errorf("解析结果缓存失败: %w", err)
	}
	return &results, true, nil
}

// SetResults 写入结果缓存，有效期固定，保证过期staleness有上界
func (r *RedisRepository) SetResults(ctx context.Context, results *model.PollResults) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("序列化结果失败: %w", err)
	}

	if err := r.client.Set(ctx, resultsKey(results.PollID), data, r.resultsTTL).Err(); err != nil {
		return fmt.Errorf("写入结果缓存失败: %w", err)
	}
	return nil
}

// InvalidateResults 删除结果缓存
func (r *RedisRepository) InvalidateResults(ctx context.Context, pollID int64) error {
	if err := r.client.Del(ctx, resultsKey(pollID)).Err(); err != nil {
		return fmt.Errorf("删除结果缓存失败: %w", err)
	}
	return nil
}

// Close 关闭Redis连接
func (r *RedisRepository) Close() error {
	return r.client.Close()
}
