package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/yhal/internal/cache"
	"github.com/hitoshi/yhal/internal/food"
	"github.com/hitoshi/yhal/internal/middleware"
	"github.com/hitoshi/yhal/internal/model"
)

// FoodServiceInterface は食品ハンドラーが必要とするサービスインターフェース。
type FoodServiceInterface interface {
	CheckImage(u food.Upload) (string, error)
	Analyze(ctx context.Context, image []byte, mimeType string) (*model.Prediction, error)
	RecordScan(ctx context.Context, userID int64, pred model.Prediction, image []byte, mimeType string) (*model.Food, error)
	NormalizeConfirm(in food.ConfirmInput) (food.ConfirmInput, error)
	Confirm(ctx context.Context, userID int64, in food.ConfirmInput) (*food.ConfirmResult, error)
	GetFood(ctx context.Context, userID, id int64) (*model.Food, error)
	ListFoods(ctx context.Context, userID int64, page, limit int) ([]*model.Food, model.Pagination, error)
	ListFrequent(ctx context.Context, userID int64, limit int) ([]*model.Food, error)
}

// CacheTTLs は名前空間ごとのキャッシュ有効期間。
type CacheTTLs struct {
	Analysis  time.Duration
	Retry     time.Duration
	Nutrition time.Duration
	Confirmed time.Duration
	Food      time.Duration
}

// DefaultCacheTTLs は既定のキャッシュ有効期間を返す。
func DefaultCacheTTLs() CacheTTLs {
	return CacheTTLs{
		Analysis:  time.Hour,
		Retry:     5 * time.Minute,
		Nutrition: 24 * time.Hour,
		Confirmed: 24 * time.Hour,
		Food:      time.Hour,
	}
}

const (
	msgAnalyzed  = "Please confirm or modify the details"
	msgRetryLate = "Food recognition is temporarily unavailable for this image. Please try again later"
	confirmPath  = "/api/v1/foods/confirm"
)

// FoodHandler は食品画像の解析と食品履歴のHTTPハンドラー。
type FoodHandler struct {
	service        FoodServiceInterface
	cache          *cache.Cache
	ttl            CacheTTLs
	uploadMaxBytes int64
}

// NewFoodHandler はFoodHandlerを生成する。
func NewFoodHandler(service FoodServiceInterface, c *cache.Cache, ttl CacheTTLs, uploadMaxBytes int64) *FoodHandler {
	return &FoodHandler{
		service:        service,
		cache:          c,
		ttl:            ttl,
		uploadMaxBytes: uploadMaxBytes,
	}
}

// Analyze は画像から食品と食材を推定する。
// 同じ画像の再送信はキャッシュから返し、AIを再度呼び出さない。
// POST /api/v1/foods/analyze
func (h *FoodHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	upload, mimeType, err := h.readImage(w, r)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	entry, hit, err := h.resolveAnalysis(r.Context(), userID, upload, mimeType)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeEntry(w, h.cache, entry, hit)
}

// Scan は画像を解析し、画像を保存して食品をスキャン履歴に登録する。
// 解析結果はAnalyzeと同じキャッシュを共有する。
// POST /api/v1/foods/scan
func (h *FoodHandler) Scan(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, r, model.NewUnauthorizedError("Authentication required"))
		return
	}

	upload, mimeType, err := h.readImage(w, r)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	entry, hit, err := h.resolveAnalysis(r.Context(), userID, upload, mimeType)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if entry.IsRetry() {
		writeEntry(w, h.cache, entry, hit)
		return
	}

	var cached struct {
		Data model.Prediction `json:"data"`
	}
	if err := json.Unmarshal(entry.Body, &cached); err != nil {
		middleware.WriteError(w, r, model.NewInternalError(fmt.Errorf("decoding cached analysis: %w", err)))
		return
	}

	saved, err := h.service.RecordScan(r.Context(), userID, cached.Data, upload.Data, mimeType)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	h.cache.Invalidate(r.Context(), cache.FoodKey(userID, saved.ID))

	writeSuccess(w, http.StatusCreated, "Food scan recorded", saved)
}

// Confirm はユーザーが確認・修正した食品情報を確定する。
// ログインユーザーの場合は食品を履歴に保存する。
// POST /api/v1/foods/confirm
func (h *FoodHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	var req food.ConfirmInput
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	in, err := h.service.NormalizeConfirm(req)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	hash, err := cache.RequestHash(http.MethodPost, confirmPath, in, r.URL.Query())
	if err != nil {
		middleware.WriteError(w, r, model.NewInternalError(err))
		return
	}
	key := cache.ConfirmedKey(cache.Identity(userID), hash)

	entry, hit, err := h.cache.Resolve(r.Context(), key, h.ttl.Confirmed, func(ctx context.Context) (*cache.Entry, error) {
		result, err := h.service.Confirm(ctx, userID, in)
		if err != nil {
			return nil, err
		}
		if result.FoodID != nil {
			h.cache.Invalidate(ctx, cache.FoodKey(userID, *result.FoodID))
		}
		return successEntry(http.StatusOK, "Food details confirmed", result)
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeEntry(w, h.cache, entry, hit)
}

// GetFood は食品の詳細を返す。他ユーザーの食品は404になる。
// GET /api/v1/foods/{id}
func (h *FoodHandler) GetFood(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, r, model.NewUnauthorizedError("Authentication required"))
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		middleware.WriteError(w, r, model.NewFoodNotFoundError())
		return
	}

	entry, hit, err := h.cache.Resolve(r.Context(), cache.FoodKey(userID, id), h.ttl.Food, func(ctx context.Context) (*cache.Entry, error) {
		f, err := h.service.GetFood(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		return successEntry(http.StatusOK, "Food retrieved", f)
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeEntry(w, h.cache, entry, hit)
}

// ListFoods はユーザーの食品履歴を最終アクセスの新しい順に返す。
// GET /api/v1/foods?page=&limit=
func (h *FoodHandler) ListFoods(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, r, model.NewUnauthorizedError("Authentication required"))
		return
	}

	foods, pagination, err := h.service.ListFoods(r.Context(), userID, queryInt(r, "page"), queryInt(r, "limit"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Food history", listData[*model.Food]{Items: foods, Pagination: pagination})
}

// ListFrequent はスキャン回数の多い食品を返す。
// GET /api/v1/foods/cached?limit=
func (h *FoodHandler) ListFrequent(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, r, model.NewUnauthorizedError("Authentication required"))
		return
	}

	foods, err := h.service.ListFrequent(r.Context(), userID, queryInt(r, "limit"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Frequently scanned foods", map[string]any{"foods": foods})
}

// readImage はアップロード画像を読み込んで検証する。
func (h *FoodHandler) readImage(w http.ResponseWriter, r *http.Request) (food.Upload, string, error) {
	upload, err := readImageUpload(w, r, h.uploadMaxBytes)
	if err != nil {
		return food.Upload{}, "", err
	}
	mimeType, err := h.service.CheckImage(upload)
	if err != nil {
		return food.Upload{}, "", err
	}
	return upload, mimeType, nil
}

// resolveAnalysis は画像内容のハッシュをキーに解析結果を取得する。
// 解析に失敗した場合は再試行待ちエントリを保存し、有効期限内の同じ画像にはAIを呼ばない。
func (h *FoodHandler) resolveAnalysis(ctx context.Context, userID int64, upload food.Upload, mimeType string) (*cache.Entry, bool, error) {
	key := cache.AnalysisKey(cache.Identity(userID), cache.ContentHash(upload.Data))

	return h.cache.Resolve(ctx, key, h.ttl.Analysis, func(ctx context.Context) (*cache.Entry, error) {
		pred, err := h.service.Analyze(ctx, upload.Data, mimeType)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				h.saveRetry(ctx, key)
			}
			return nil, err
		}
		return successEntry(http.StatusOK, msgAnalyzed, pred)
	})
}

func (h *FoodHandler) saveRetry(ctx context.Context, key string) {
	body, err := json.Marshal(middleware.ErrorResponseBody{
		Status:  middleware.StatusError,
		Code:    model.ErrCodePredictionFailed,
		Message: msgRetryLate,
	})
	if err != nil {
		slog.Error("failed to encode retry entry", slog.String("error", err.Error()))
		return
	}
	h.cache.SaveRetry(ctx, key, &cache.Entry{Status: http.StatusServiceUnavailable, Body: body}, h.ttl.Retry)
}
