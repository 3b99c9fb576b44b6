package cache

import (
	"context"
	"time"
)

// Store はキャッシュの保存先を抽象化する。
// Getは未登録・期限切れの場合にfound=falseを返す。
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}
