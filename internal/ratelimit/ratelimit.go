// Package ratelimit 提供按(客户端IP, 路由类别)的固定窗口限流。
// 计数器是进程内状态，只做前置防护，不承担投票防重的正确性。
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

// Limiter 固定窗口计数限流器，时钟可注入便于测试
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*window
	duration time.Duration
	now      func() time.Time
}

func NewLimiter(duration time.Duration) *Limiter {
	return &Limiter{
		windows:  make(map[string]*window),
		duration: duration,
		now:      time.Now,
	}
}

// NewLimiterWithClock 注入时钟的构造函数，测试用
func NewLimiterWithClock(duration time.Duration, now func() time.Time) *Limiter {
	l := NewLimiter(duration)
	l.now = now
	return l
}

// Allow 判断(ip, class)在当前窗口内是否还有配额，窗口过期则重置计数
func (l *Limiter) Allow(ip, class string, limit int) bool {
	key := fmt.Sprintf("%s|%s", ip, class)
	current := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || current.Sub(w.start) >= l.duration {
		l.windows[key] = &window{start: current, count: 1}
		return true
	}

	if w.count >= limit {
		return false
	}
	w.count++
	return true
}

// Reset 清空所有计数器，测试用
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows = make(map[string]*window)
}
