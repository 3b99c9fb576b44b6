package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/yhal/internal/cache"
	"github.com/hitoshi/yhal/internal/metrics"
	"github.com/hitoshi/yhal/internal/middleware"
	"github.com/hitoshi/yhal/internal/ratelimit"
)

// jsonBodyLimit はJSONリクエストボディの上限。
const jsonBodyLimit = 10 << 10

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger         *slog.Logger
	Recorder       metrics.Recorder
	TokenValidator middleware.TokenValidator
	RateLimiter    *middleware.RateLimitMiddleware
	FrontendURL    string
	Development    bool

	// キャッシュ
	Cache     *cache.Cache
	CacheTTLs CacheTTLs

	// 認証
	AuthService AuthServiceInterface

	// 食品
	FoodService    FoodServiceInterface
	UploadMaxBytes int64

	// 栄養
	NutritionService NutritionServiceInterface

	// ユーティリティ
	StatusChecker  *StatusChecker
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → Logging → Metrics → SecurityHeaders → CORS
//
// 認証とレート制限はルートごとに適用する。レート制限は認証の内側に置き、
// 認証済みリクエストはユーザーID単位で数える。
func NewRouter(deps *RouterDeps) http.Handler {
	recorder := deps.Recorder
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(recorder))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.FrontendURL))
	r.Use(middleware.NewDebugErrorsMiddleware(deps.Development))

	authHandler := NewAuthHandler(deps.AuthService)
	foodHandler := NewFoodHandler(deps.FoodService, deps.Cache, deps.CacheTTLs, deps.UploadMaxBytes)
	nutritionHandler := NewNutritionHandler(deps.NutritionService, deps.Cache, deps.CacheTTLs)
	utilityHandler := NewUtilityHandler(deps.StatusChecker)

	requireAuth := middleware.NewAuthMiddleware(deps.TokenValidator)
	optionalAuth := middleware.NewOptionalAuthMiddleware(deps.TokenValidator)
	jsonLimit := middleware.NewBodyLimitMiddleware(jsonBodyLimit)
	authLimit := deps.RateLimiter.Limit(ratelimit.Auth)
	resetLimit := deps.RateLimiter.Limit(ratelimit.PasswordReset)
	apiLimit := deps.RateLimiter.Limit(ratelimit.API)

	r.NotFound(utilityHandler.NotFound)

	// --- ヘルスチェック・メトリクス ---
	r.Get("/ping", utilityHandler.Ping)
	r.Get("/health", utilityHandler.Health)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// 認証
		r.Route("/auth", func(r chi.Router) {
			r.Use(jsonLimit)

			r.With(authLimit).Post("/register", authHandler.Register)
			r.With(authLimit).Post("/login", authHandler.Login)
			r.Get("/logout", authHandler.Logout)

			r.With(resetLimit).Post("/forgot-password", authHandler.ForgotPassword)
			r.With(resetLimit).Patch("/reset-password/{token}", authHandler.ResetPassword)

			r.Get("/verify-email/{token}", authHandler.VerifyEmail)
			r.With(authLimit).Post("/resend-verification", authHandler.ResendVerification)
		})

		// 食品
		r.Route("/foods", func(r chi.Router) {
			// 未ログインでも利用できる解析・確認
			r.Group(func(r chi.Router) {
				r.Use(optionalAuth)
				r.With(apiLimit).Post("/analyze", foodHandler.Analyze)
				r.With(jsonLimit, apiLimit).Post("/confirm", foodHandler.Confirm)
				r.With(jsonLimit, apiLimit).Post("/nutrition", nutritionHandler.Calculate)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Use(apiLimit)
				r.Post("/scan", foodHandler.Scan)
				r.Get("/", foodHandler.ListFoods)
				r.Get("/cached", foodHandler.ListFrequent)
				r.Get("/{id}", foodHandler.GetFood)
			})
		})

		// 栄養計算・食事記録
		r.Route("/nutrition", func(r chi.Router) {
			r.Use(jsonLimit)

			r.With(optionalAuth, apiLimit).Post("/", nutritionHandler.Calculate)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Use(apiLimit)
				r.Get("/history", nutritionHandler.History)
				r.Post("/log", nutritionHandler.LogMeal)
				r.Delete("/log/{id}", nutritionHandler.DeleteEntry)
			})
		})

		// ユーティリティ
		r.Route("/utils", func(r chi.Router) {
			r.Get("/regions", utilityHandler.Regions)
			r.Get("/status", utilityHandler.Status)
		})
	})

	return r
}
