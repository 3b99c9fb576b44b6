package ai

import (
	"context"
	"fmt"
	"time"
)

// statusClass はAI APIのHTTPステータスコードの分類。
type statusClass int

const (
	// statusOK は成功（200）。
	statusOK statusClass = iota
	// statusRetry は再試行で回復しうるステータス（429/5xx）。
	statusRetry
	// statusFail は再試行しても結果が変わらないステータス。
	statusFail
)

const (
	// defaultInitialBackoff は指数バックオフの初回遅延。
	defaultInitialBackoff = 500 * time.Millisecond
	// maxBackoff は指数バックオフの最大遅延。
	maxBackoff = 4 * time.Second
)

// classifyStatus はHTTPステータスコードを分類する。
func classifyStatus(statusCode int) statusClass {
	switch {
	case statusCode == 200:
		return statusOK
	case statusCode == 429:
		return statusRetry
	case statusCode >= 500:
		return statusRetry
	default:
		return statusFail
	}
}

// calculateBackoff は再試行回数に基づいて指数バックオフ遅延を計算する。
// retries=0でinitial、以降2倍ずつ増加し、maxBackoffで頭打ちになる。
func calculateBackoff(initial time.Duration, retries int) time.Duration {
	delay := initial
	for i := 0; i < retries; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// retryableError は再試行で回復しうる失敗を表す。
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }

func (e *retryableError) Unwrap() error { return e.err }

// sleepContext はdだけ待つ。ctxが先に終了した場合はctxのエラーを返す。
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// statusError はステータスコードとAPIのエラーメッセージからエラーを組み立てる。
// 再試行対象のステータスはretryableErrorで包む。
func statusError(statusCode int, message string) error {
	var err error
	if message != "" {
		err = fmt.Errorf("ai: status %d: %s", statusCode, message)
	} else {
		err = fmt.Errorf("ai: unexpected status %d", statusCode)
	}
	if classifyStatus(statusCode) == statusRetry {
		return &retryableError{err: err}
	}
	return err
}
