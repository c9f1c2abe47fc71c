package lock

import (
	"time"
)

// Lock 分布式锁接口
type Lock interface {
	// AcquireLock 获取分布式锁
	// 返回值：bool表示是否成功获取锁，error表示获取过程中的错误
	AcquireLock(lockName string, timeout time.Duration) (bool, error)

	// ReleaseLock 释放分布式锁
	ReleaseLock(lockName string) error

	// Close 关闭分布式锁客户端
	Close() error
}
