package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// MemoryStore はプロセス内LRUを使用したStore実装。
// Redisを使わない開発環境や単一インスタンス構成向け。
type MemoryStore struct {
	entries *lru.Cache
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStore は最大size件を保持するMemoryStoreを生成する。
func NewMemoryStore(size int) (*MemoryStore, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}
	return &MemoryStore{entries: c, now: time.Now}, nil
}

// Get はキーの値を取得する。期限切れのエントリは削除してミスとする。
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	e := v.(memoryEntry)
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		s.entries.Remove(key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set はキーに値をTTL付きで保存する。ttlが0以下なら期限なし。
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries.Add(key, e)
	return nil
}

// Delete はキーを削除する。
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		s.entries.Remove(k)
	}
	return nil
}

// Ping は常に成功する。
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
