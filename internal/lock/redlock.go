package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/lvdashuaibi/pollhub/config"
	"go.uber.org/zap"
)

const releaseScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// RedLock 基于多个独立Redis节点的分布式锁，用作结果缓存重建的
// single-flight保护，属于尽力而为的优化，不参与正确性保证
type RedLock struct {
	clients     []*redis.Client
	ctx         context.Context
	mu          sync.Mutex
	locks       map[string]string // key是锁名，value是token值
	retries     int
	clusterSize int
	logger      *zap.Logger
}

// NewRedLock 创建新的分布式锁客户端
func NewRedLock(logger *zap.Logger) (*RedLock, error) {
	ctx := context.Background()

	var clients []*redis.Client
	for _, addr := range config.AppConfig.Redis.LockAddresses {
		client := redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     config.AppConfig.Redis.Password,
			DB:           config.AppConfig.Redis.DB,
			PoolSize:     config.AppConfig.Redis.PoolSize,
			MaxRetries:   config.AppConfig.Redis.MaxRetries,
			DialTimeout:  config.AppConfig.Redis.Timeout,
			ReadTimeout:  config.AppConfig.Redis.Timeout,
			WriteTimeout: config.AppConfig.Redis.Timeout,
		})

		// 测试连接
		if err := client.Ping(ctx).Err(); err != nil {
			for _, c := range clients {
				c.Close()
			}
			return nil, fmt.Errorf("Redis锁节点 %s 连接测试失败: %w", addr, err)
		}

		clients = append(clients, client)
	}

	return &RedLock{
		clients:     clients,
		ctx:         ctx,
		locks:       make(map[string]string),
		retries:     config.AppConfig.Redis.LockRetryCount,
		clusterSize: len(clients),
		logger:      logger,
	}, nil
}

// AcquireLock 获取分布式锁，多数节点SetNX成功才算持有
func (r *RedLock) AcquireLock(lockName string, timeout time.Duration) (bool, error) {
	token := uuid.NewString()

	for attempt := 0; attempt < r.retries; attempt++ {
		success := 0
		start := time.Now()

		for _, client := range r.clients {
			ok, err := client.SetNX(r.ctx, lockName, token, timeout).Result()
			if err != nil {
				r.logger.Warn("获取锁失败", zap.String("lock", lockName), zap.Error(err))
				continue
			}
			if ok {
				success++
			}
		}

		validityTime := timeout - time.Since(start)
		if success >= (r.clusterSize/2+1) && validityTime > 0 {
			r.mu.Lock()
			r.locks[lockName] = token
			r.mu.Unlock()
			return true, nil
		}

		// 获取失败，释放所有节点上的锁
		r.unlockAll(lockName, token)
		time.Sleep(time.Millisecond * 100)
	}

	return false, nil
}

// ReleaseLock 释放分布式锁
func (r *RedLock) ReleaseLock(lockName string) error {
	r.mu.Lock()
	token, exists := r.locks[lockName]
	delete(r.locks, lockName)
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("锁 %s 不存在或未持有", lockName)
	}

	r.unlockAll(lockName, token)
	return nil
}

// unlockAll 在所有节点上释放锁，Lua脚本保证只释放自己持有的锁
func (r *RedLock) unlockAll(lockName, token string) {
	for _, client := range r.clients {
		if _, err := client.Eval(r.ctx, releaseScript, []string{lockName}, token).Result(); err != nil {
			r.logger.Warn("释放锁失败", zap.String("lock", lockName), zap.Error(err))
		}
	}
}

// Close 关闭所有Redis客户端
func (r *RedLock) Close() error {
	for _, client := range r.clients {
		client.Close()
	}
	return nil
}
