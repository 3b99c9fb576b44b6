// Package ratelimit はポリシー単位のレート制限を提供する。
package ratelimit

import (
	"context"
	"time"
)

// Policy はレート制限ポリシーを表す。
// Duration内にPoints回まで許可し、超過時はBlockDurationの間すべて拒否する。
type Policy struct {
	Name          string
	Points        int
	Duration      time.Duration
	BlockDuration time.Duration
	KeyPrefix     string
}

// 定義済みポリシー
var (
	// Auth はログイン・登録向け。15分に5回、超過で1時間ブロック。
	Auth = Policy{
		Name:          "auth",
		Points:        5,
		Duration:      15 * time.Minute,
		BlockDuration: time.Hour,
		KeyPrefix:     "rl_auth",
	}
	// API は一般API向け。5分に100回。
	API = Policy{
		Name:      "api",
		Points:    100,
		Duration:  5 * time.Minute,
		KeyPrefix: "rl_api",
	}
	// PasswordReset はパスワードリセット向け。1時間に3回、超過で24時間ブロック。
	PasswordReset = Policy{
		Name:          "passwordReset",
		Points:        3,
		Duration:      time.Hour,
		BlockDuration: 24 * time.Hour,
		KeyPrefix:     "rl_pwreset",
	}
)

// Result はポイント消費の結果を表す。
type Result struct {
	Allowed bool
	// Limit はポリシーの許可回数。
	Limit int
	// Remaining は残りポイント数。
	Remaining int
	// RetryAfter は拒否時に次に許可されるまでの時間。
	RetryAfter time.Duration
	// ResetAfter はポイントが全回復するまでの時間。
	ResetAfter time.Duration
}

// Limiter はレート制限の判定を行う。
// keyは識別子（ユーザーIDまたはIP）とルートの組。
type Limiter interface {
	Consume(ctx context.Context, policy Policy, key string) (Result, error)
}

// storageKey はポリシーのプレフィックス付きキーを返す。
func storageKey(policy Policy, key string) string {
	return policy.KeyPrefix + ":" + key
}

// blockKey はブロック状態を保持するキーを返す。
func blockKey(policy Policy, key string) string {
	return policy.KeyPrefix + ":block:" + key
}
