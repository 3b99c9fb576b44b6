package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/yhal/internal/metrics"
	"github.com/hitoshi/yhal/internal/model"
	"github.com/hitoshi/yhal/internal/ratelimit"
)

// RateLimitMiddleware はポリシーごとのレート制限ミドルウェアを生成する。
type RateLimitMiddleware struct {
	limiter  ratelimit.Limiter
	recorder metrics.Recorder
	now      func() time.Time
}

// NewRateLimitMiddleware は新しいRateLimitMiddlewareを生成する。
func NewRateLimitMiddleware(limiter ratelimit.Limiter, recorder metrics.Recorder) *RateLimitMiddleware {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &RateLimitMiddleware{
		limiter:  limiter,
		recorder: recorder,
		now:      time.Now,
	}
}

// Limit はpolicyを適用するミドルウェアを返す。
// キーは識別子（認証済みならユーザーID、それ以外は送信元IP）とルートの組。
// 認証ミドルウェアより内側に置くこと。
// 保存先の障害時はリクエストを通す。
func (m *RateLimitMiddleware) Limit(policy ratelimit.Policy) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitIdentity(r) + "_" + routeOf(r)

			res, err := m.limiter.Consume(r.Context(), policy, key)
			if err != nil {
				slog.Warn("rate limiter unavailable, allowing request",
					slog.String("policy", policy.Name),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

			if !res.Allowed {
				m.recorder.RecordRateLimitRejection(policy.Name)
				slog.Warn("rate limit exceeded",
					slog.String("policy", policy.Name),
					slog.String("key", key),
				)
				WriteError(w, r, model.NewRateLimitedError(res.RetryAfter, res.Remaining, m.now().Add(res.ResetAfter)))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitIdentity は認証済みならユーザーID、それ以外は送信元IPを返す。
func rateLimitIdentity(r *http.Request) string {
	if userID, ok := UserIDFromContext(r.Context()); ok {
		return strconv.FormatInt(userID, 10)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// routeOf はルートパターンを返す。パスパラメータの値でキーが分散しないようにする。
func routeOf(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
