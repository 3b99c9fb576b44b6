package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/yhal/internal/metrics"
)

// Entry はキャッシュされたHTTPレスポンスを表す。
// ヒット時はBodyをそのまま返し、検証や副作用は再実行しない。
type Entry struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`

	// RetryAt は失敗時の再試行待ちエントリの場合のみ設定される。
	RetryAt *time.Time `json:"retryAt,omitempty"`
}

// IsRetry は再試行待ちエントリかどうかを返す。
func (e *Entry) IsRetry() bool {
	return e.RetryAt != nil
}

// Cache はStoreの上にメトリクス記録、エラー吸収、同一キーの並行ミス集約を提供する。
// Storeの障害はキャッシュミスとして扱い、リクエストは失敗させない。
type Cache struct {
	store    Store
	recorder metrics.Recorder
	logger   *slog.Logger
	group    singleflight.Group
	now      func() time.Time
}

// New はCacheを生成する。
func New(store Store, recorder metrics.Recorder, logger *slog.Logger) *Cache {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:    store,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Lookup はキーのエントリを取得する。
func (c *Cache) Lookup(ctx context.Context, key string) (*Entry, bool) {
	ns := namespaceOf(key)

	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.recorder.RecordCacheLookup(ns, metrics.CacheError)
		c.logger.Warn("cache lookup failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if !found {
		c.recorder.RecordCacheLookup(ns, metrics.CacheMiss)
		return nil, false
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.recorder.RecordCacheLookup(ns, metrics.CacheError)
		c.logger.Warn("cache entry corrupted",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, false
	}

	c.recorder.RecordCacheLookup(ns, metrics.CacheHit)
	return &e, true
}

// Save はエントリをTTL付きで保存する。失敗はログのみ。
func (c *Cache) Save(ctx context.Context, key string, e *Entry, ttl time.Duration) {
	raw, err := json.Marshal(e)
	if err != nil {
		c.logger.Error("failed to encode cache entry",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		c.logger.Warn("cache save failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// SaveRetry は処理失敗を示す再試行待ちエントリを保存する。
// 有効期限内の同一リクエストには再計算せずこのエントリを返す。
func (c *Cache) SaveRetry(ctx context.Context, key string, e *Entry, ttl time.Duration) {
	retryAt := c.now().Add(ttl).UTC()
	e.RetryAt = &retryAt
	c.Save(ctx, key, e, ttl)
}

// RetryAfter は再試行待ちエントリの残り時間を返す。
func (c *Cache) RetryAfter(e *Entry) time.Duration {
	if e.RetryAt == nil {
		return 0
	}
	d := e.RetryAt.Sub(c.now())
	if d < 0 {
		return 0
	}
	return d
}

// Invalidate はキーを削除する。失敗はログのみ。
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if err := c.store.Delete(ctx, keys...); err != nil {
		c.logger.Warn("cache invalidate failed",
			slog.Any("keys", keys),
			slog.String("error", err.Error()),
		)
	}
}

// Ping は保存先の疎通を確認する。
func (c *Cache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

// Resolve はキャッシュを参照し、ミスの場合はcomputeの結果を保存して返す。
// 同一プロセス内で同じキーのミスが重なった場合、computeは1回だけ実行される。
// 2xx以外の結果とエラーは保存しない。hitはキャッシュから返したかどうか。
func (c *Cache) Resolve(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) (*Entry, error)) (*Entry, bool, error) {
	if e, ok := c.Lookup(ctx, key); ok {
		return e, true, nil
	}

	run := func(ctx context.Context) (*Entry, error) {
		e, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if e.Status >= 200 && e.Status < 300 {
			c.Save(ctx, key, e, ttl)
		}
		return e, nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		return run(ctx)
	})
	if err != nil {
		// 共有した実行が先行リクエストの切断で中断された場合は自前で実行し直す
		if shared && errors.Is(err, context.Canceled) && ctx.Err() == nil {
			e, err := run(ctx)
			return e, false, err
		}
		return nil, false, err
	}

	return v.(*Entry), false, nil
}
