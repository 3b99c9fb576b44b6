package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/yhal/internal/middleware"
	"github.com/hitoshi/yhal/internal/model"
)

// statusCheckTimeout は依存サービス1件あたりの疎通確認の上限時間。
const statusCheckTimeout = 2 * time.Second

// サービスの状態
const (
	stateHealthy   = "healthy"
	stateUnhealthy = "unhealthy"
	stateDegraded  = "degraded"
)

// PingFunc は依存サービスの疎通を確認する関数。
type PingFunc func(ctx context.Context) error

// StatusChecker は依存サービスの状態をまとめて確認する。
type StatusChecker struct {
	checks map[string]PingFunc
}

// NewStatusChecker はサービス名と確認関数の組からStatusCheckerを生成する。
func NewStatusChecker(checks map[string]PingFunc) *StatusChecker {
	return &StatusChecker{checks: checks}
}

// Check は全サービスを並行に確認し、サービスごとの状態と全体の状態を返す。
func (c *StatusChecker) Check(ctx context.Context) (map[string]string, string) {
	services := map[string]string{"api": stateHealthy}
	overall := stateHealthy

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for name, ping := range c.checks {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(ctx, statusCheckTimeout)
			defer cancel()

			state := stateHealthy
			if err := ping(ctx); err != nil {
				slog.WarnContext(ctx, "dependency health check failed",
					slog.String("service", name),
					slog.String("error", err.Error()),
				)
				state = stateUnhealthy
			}

			mu.Lock()
			defer mu.Unlock()
			services[name] = state
			if state != stateHealthy {
				overall = stateDegraded
			}
			return nil
		})
	}
	g.Wait()

	return services, overall
}

// UtilityHandler はヘルスチェックと参照データのHTTPハンドラー。
type UtilityHandler struct {
	checker *StatusChecker
}

// NewUtilityHandler はUtilityHandlerを生成する。
func NewUtilityHandler(checker *StatusChecker) *UtilityHandler {
	return &UtilityHandler{checker: checker}
}

// Ping はプロセスの生存を返す。
// GET /ping
func (h *UtilityHandler) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    stateHealthy,
		"timestamp": nowUTC(),
	})
}

// Health はコンテナのヘルスチェック用。依存サービスは確認しない。
// GET /health
func (h *UtilityHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Regions は選択可能な地域の一覧を返す。
// GET /api/v1/utils/regions
func (h *UtilityHandler) Regions(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, "African regions retrieved successfully", map[string]any{
		"regions": model.Regions,
		"total":   len(model.Regions),
	})
}

// Status はRedisとデータベースの状態を返す。
// GET /api/v1/utils/status
func (h *UtilityHandler) Status(w http.ResponseWriter, r *http.Request) {
	services, overall := h.checker.Check(r.Context())
	writeSuccess(w, http.StatusOK, "System is "+overall, map[string]any{
		"services": services,
		"overall":  overall,
	})
}

// NotFound は未定義ルートへのアクセスに404を返す。
func (h *UtilityHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	middleware.WriteError(w, r, model.NewRouteNotFoundError(r.URL.Path))
}
