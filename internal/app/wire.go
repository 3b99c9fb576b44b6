package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/yhal/internal/ai"
	"github.com/hitoshi/yhal/internal/auth"
	"github.com/hitoshi/yhal/internal/cache"
	"github.com/hitoshi/yhal/internal/config"
	"github.com/hitoshi/yhal/internal/database"
	"github.com/hitoshi/yhal/internal/food"
	"github.com/hitoshi/yhal/internal/handler"
	"github.com/hitoshi/yhal/internal/mail"
	"github.com/hitoshi/yhal/internal/metrics"
	"github.com/hitoshi/yhal/internal/middleware"
	"github.com/hitoshi/yhal/internal/nutrition"
	"github.com/hitoshi/yhal/internal/ratelimit"
	"github.com/hitoshi/yhal/internal/repository"
	"github.com/hitoshi/yhal/internal/security"
	"github.com/hitoshi/yhal/internal/storage"
)

// closers は起動時に確保したリソースを逆順で解放する。
type closers []func() error

func (c *closers) add(fn func() error) {
	*c = append(*c, fn)
}

// Close は登録の逆順にすべて解放し、発生したエラーをまとめて返す。
func (c closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// databaseOptions はConfigからDB接続設定を組み立てる。
func databaseOptions(cfg *config.Config) database.Options {
	return database.Options{
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		User:            cfg.DBUser,
		Password:        cfg.DBPassword,
		Name:            cfg.DBName,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(databaseOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// needsRedis はキャッシュかレート制限のどちらかがRedisを使うかを返す。
func needsRedis(cfg *config.Config) bool {
	return cfg.CacheBackend == "redis" || cfg.RateLimitBackend == "redis"
}

// buildServer はAPIサーバーの全依存関係を構築する。
// 戻り値のclosersはサーバー停止後に呼び出すこと。
func buildServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*handler.RouterDeps, closers, error) {
	var cl closers
	fail := func(err error) (*handler.RouterDeps, closers, error) {
		cl.Close()
		return nil, nil, err
	}

	// 1. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	cl.add(db.Close)
	logger.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewMySQLUserRepo(db)
	foodRepo := repository.NewMySQLFoodRepo(db)
	mealRepo := repository.NewMySQLMealLogRepo(db)

	// 3. Redis（キャッシュ・レート制限で共有）
	var redisClient *redis.Client
	if needsRedis(cfg) {
		redisClient, err = cache.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return fail(err)
		}
		cl.add(redisClient.Close)

		// 起動時に繋がらなくてもリクエスト処理は続行できる
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis is not reachable at startup", slog.String("error", err.Error()))
		}
	}

	// 4. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewCollector(reg)

	// 5. レスポンスキャッシュ
	store, err := newCacheStore(cfg, redisClient)
	if err != nil {
		return fail(err)
	}
	responseCache := cache.New(store, recorder, logger)

	// 6. レート制限
	var limiter ratelimit.Limiter
	if cfg.RateLimitBackend == "redis" {
		limiter = ratelimit.NewRedisLimiter(redisClient)
	} else {
		memLimiter := ratelimit.NewMemoryLimiter(time.Minute)
		cl.add(func() error {
			memLimiter.Stop()
			return nil
		})
		limiter = memLimiter
	}

	// 7. AIクライアント（SSRF防止付きHTTPクライアント）
	guard := security.NewSSRFGuard()
	if err := guard.ValidateURL(cfg.AIBaseURL); err != nil {
		return fail(fmt.Errorf("invalid AI base URL: %w", err))
	}
	aiClient := ai.NewClient(ai.Config{
		APIKey:     cfg.AIAPIKey,
		Model:      cfg.AIModel,
		BaseURL:    cfg.AIBaseURL,
		MaxRetries: cfg.AIMaxRetries,
	}, guard.NewSafeClient(cfg.AITimeout), recorder, logger)
	if !aiClient.Configured() {
		logger.Warn("AI API key is not configured; analysis and nutrition endpoints will fail")
	}

	// 8. 画像ストレージ
	images, err := newImageStore(ctx, cfg)
	if err != nil {
		return fail(err)
	}

	// 9. メール
	sender, err := newMailSender(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	mailer, err := mail.NewMailer(sender, mail.MailerConfig{
		SupportEmail:         cfg.SupportEmail,
		ResetTokenTTL:        cfg.ResetTokenTTL,
		VerificationTokenTTL: cfg.VerificationTokenTTL,
	})
	if err != nil {
		return fail(err)
	}

	// 10. ドメインサービスの初期化
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTExpiresIn, cfg.ResetTokenTTL)
	if err != nil {
		return fail(err)
	}
	authService := auth.NewService(userRepo, auth.NewPasswordService(), tokens, mailer, auth.ServiceConfig{
		FrontendURL:          cfg.FrontendURL,
		ResetTokenTTL:        cfg.ResetTokenTTL,
		VerificationTokenTTL: cfg.VerificationTokenTTL,
	}, logger)

	sanitizer := security.NewTextSanitizer()
	foodService := food.NewService(foodRepo, aiClient, images, sanitizer, food.Config{
		UploadMaxBytes: cfg.UploadMaxBytes,
		AllowWebP:      cfg.UploadAllowWebP,
	}, logger)
	nutritionService := nutrition.NewService(mealRepo, foodRepo, aiClient, sanitizer, logger)

	// 11. 依存サービスの状態確認
	checks := map[string]handler.PingFunc{
		"database": db.PingContext,
		"redis":    responseCache.Ping,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	deps := &handler.RouterDeps{
		Logger:         logger,
		Recorder:       recorder,
		TokenValidator: authService,
		RateLimiter:    middleware.NewRateLimitMiddleware(limiter, recorder),
		FrontendURL:    cfg.FrontendURL,
		Development:    cfg.IsDevelopment(),

		Cache: responseCache,
		CacheTTLs: handler.CacheTTLs{
			Analysis:  cfg.CacheAnalysisTTL,
			Retry:     cfg.CacheRetryTTL,
			Nutrition: cfg.CacheNutritionTTL,
			Confirmed: cfg.CacheConfirmedTTL,
			Food:      cfg.CacheFoodTTL,
		},

		AuthService: authService,

		FoodService:    foodService,
		UploadMaxBytes: cfg.UploadMaxBytes,

		NutritionService: nutritionService,

		StatusChecker:  handler.NewStatusChecker(checks),
		MetricsHandler: metrics.Handler(reg),
	}
	return deps, cl, nil
}

// newCacheStore は設定に応じたキャッシュの保存先を返す。
func newCacheStore(cfg *config.Config, client redis.UniversalClient) (cache.Store, error) {
	if cfg.CacheBackend == "redis" {
		return cache.NewRedisStore(client), nil
	}
	store, err := cache.NewMemoryStore(cfg.CacheMemorySize)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return store, nil
}

// newImageStore は設定に応じた画像の保存先を返す。
func newImageStore(ctx context.Context, cfg *config.Config) (storage.ImageStore, error) {
	switch cfg.StorageBackend {
	case "s3":
		return storage.NewS3Store(ctx, cfg.S3Region, cfg.S3Bucket, cfg.S3PublicURL)
	default:
		return storage.NewLocalStore(cfg.StorageLocalDir)
	}
}

// newMailSender は設定に応じたメール送信手段を返す。
func newMailSender(ctx context.Context, cfg *config.Config, logger *slog.Logger) (mail.Sender, error) {
	switch cfg.MailBackend {
	case "smtp":
		return mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
			FromName: cfg.MailFromName,
		}), nil
	case "ses":
		return mail.NewSESSender(ctx, cfg.SESRegion, cfg.MailFrom, cfg.MailFromName)
	default:
		return mail.NewLogSender(logger), nil
	}
}
