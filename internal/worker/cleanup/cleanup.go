// Package cleanup は期限切れトークンの定期削除ジョブを提供する。
// パスワードリセットとメール確認のトークンのうち、有効期限を過ぎたものを
// usersテーブルから消去する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// TokenStore は期限切れトークンを消去するリポジトリのインターフェース。
type TokenStore interface {
	ClearExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// CleanupJob は期限切れトークンの削除ジョブ。冪等であり、何度実行してもよい。
type CleanupJob struct {
	store  TokenStore
	logger *slog.Logger
	now    func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(store TokenStore, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Run は期限切れトークンを1回削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()

	cleared, err := j.store.ClearExpiredTokens(ctx, start.UTC())
	if err != nil {
		j.logger.Error("トークンクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("トークンクリーンアップの実行に失敗: %w", err)
	}

	j.logger.Info("トークンクリーンアップジョブが完了しました",
		slog.Int64("cleared_count", cleared),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)
	return nil
}

// Start はinterval間隔でRunを繰り返す。起動直後にも1回実行する。
// コンテキストがキャンセルされるまで戻らない。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("トークンクリーンアップを開始しました",
		slog.Duration("interval", interval),
	)

	// 失敗はRun内でログ済み
	_ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("トークンクリーンアップを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
