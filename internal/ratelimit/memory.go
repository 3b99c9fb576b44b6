package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// keyLimiter はキーごとのレートリミッターとブロック期限を保持する。
type keyLimiter struct {
	limiter      *rate.Limiter
	blockedUntil time.Time
	lastAccess   time.Time
}

// MemoryLimiter はプロセス内で完結するLimiter実装。
// 単一インスタンス構成や開発環境向け。
type MemoryLimiter struct {
	mu       sync.Mutex
	limiters map[string]*keyLimiter
	now      func() time.Time

	cleanupInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
}

// NewMemoryLimiter は新しいMemoryLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewMemoryLimiter(cleanupInterval time.Duration) *MemoryLimiter {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	l := &MemoryLimiter{
		limiters:        make(map[string]*keyLimiter),
		now:             time.Now,
		cleanupInterval: cleanupInterval,
		stopCh:          make(chan struct{}),
	}

	go l.cleanupLoop()

	return l
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (l *MemoryLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Consume はポイントを1消費する。
func (l *MemoryLimiter) Consume(_ context.Context, policy Policy, key string) (Result, error) {
	now := l.now()
	k := storageKey(policy, key)
	every := policy.Duration / time.Duration(policy.Points)

	l.mu.Lock()
	defer l.mu.Unlock()

	kl, ok := l.limiters[k]
	if !ok {
		kl = &keyLimiter{limiter: rate.NewLimiter(rate.Every(every), policy.Points)}
		l.limiters[k] = kl
	}
	kl.lastAccess = now

	if now.Before(kl.blockedUntil) {
		wait := kl.blockedUntil.Sub(now)
		return Result{Allowed: false, Limit: policy.Points, RetryAfter: wait, ResetAfter: wait}, nil
	}

	reservation := kl.limiter.ReserveN(now, 1)
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)

		result := Result{Allowed: false, Limit: policy.Points, RetryAfter: delay, ResetAfter: delay}
		if policy.BlockDuration > 0 {
			kl.blockedUntil = now.Add(policy.BlockDuration)
			result.RetryAfter = policy.BlockDuration
			result.ResetAfter = policy.BlockDuration
		}
		return result, nil
	}

	tokens := kl.limiter.TokensAt(now)
	remaining := int(tokens)
	if remaining < 0 {
		remaining = 0
	}
	missing := float64(policy.Points) - tokens

	return Result{
		Allowed:    true,
		Limit:      policy.Points,
		Remaining:  remaining,
		ResetAfter: time.Duration(missing * float64(every)),
	}, nil
}

// Len は現在管理されているエントリ数を返す。テストおよびメトリクス用。
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (l *MemoryLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup(l.now())
		case <-l.stopCh:
			return
		}
	}
}

// cleanup はブロック中でなく、最終アクセスから24時間を超えたエントリを削除する。
// 24時間は最長のウィンドウ・ブロック期間を上回る。
func (l *MemoryLimiter) cleanup(now time.Time) {
	const idle = 24 * time.Hour

	l.mu.Lock()
	defer l.mu.Unlock()
	for k, kl := range l.limiters {
		if now.Before(kl.blockedUntil) {
			continue
		}
		if now.Sub(kl.lastAccess) > idle {
			delete(l.limiters, k)
		}
	}
}
