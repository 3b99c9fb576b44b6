package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/yhal/internal/cache"
	"github.com/hitoshi/yhal/internal/middleware"
	"github.com/hitoshi/yhal/internal/model"
	"github.com/hitoshi/yhal/internal/nutrition"
)

// NutritionServiceInterface は栄養ハンドラーが必要とするサービスインターフェース。
type NutritionServiceInterface interface {
	NormalizeQuery(q model.NutritionQuery) (model.NutritionQuery, error)
	Calculate(ctx context.Context, q model.NutritionQuery) (*model.NutritionReport, error)
	LogMeal(ctx context.Context, userID int64, in nutrition.LogInput) (*model.MealLogEntry, error)
	History(ctx context.Context, userID int64, page, limit int) ([]*model.MealHistoryEntry, model.Pagination, error)
	DeleteEntry(ctx context.Context, userID, id int64) error
}

// nutritionPath は栄養計算のキャッシュキーに使うパス。
// /api/v1/foods/nutritionと/api/v1/nutritionは同じキーを共有する。
const nutritionPath = "/api/v1/nutrition"

// NutritionHandler は栄養計算と食事記録のHTTPハンドラー。
type NutritionHandler struct {
	service NutritionServiceInterface
	cache   *cache.Cache
	ttl     CacheTTLs
}

// NewNutritionHandler はNutritionHandlerを生成する。
func NewNutritionHandler(service NutritionServiceInterface, c *cache.Cache, ttl CacheTTLs) *NutritionHandler {
	return &NutritionHandler{
		service: service,
		cache:   c,
		ttl:     ttl,
	}
}

// Calculate は食材と地域から栄養価を計算する。結果はユーザーに依存しないため全員で共有する。
// POST /api/v1/nutrition
// POST /api/v1/foods/nutrition
func (h *NutritionHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req model.NutritionQuery
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	q, err := h.service.NormalizeQuery(req)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	hash, err := cache.RequestHash(http.MethodPost, nutritionPath, q, r.URL.Query())
	if err != nil {
		middleware.WriteError(w, r, model.NewInternalError(err))
		return
	}

	entry, hit, err := h.cache.Resolve(r.Context(), cache.NutritionKey(hash), h.ttl.Nutrition, func(ctx context.Context) (*cache.Entry, error) {
		report, err := h.service.Calculate(ctx, q)
		if err != nil {
			return nil, err
		}
		return successEntry(http.StatusOK, "Nutrition information calculated", report)
	})
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeEntry(w, h.cache, entry, hit)
}

// LogMeal は食事記録を追加する。
// POST /api/v1/nutrition/log
func (h *NutritionHandler) LogMeal(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, r, model.NewUnauthorizedError("Authentication required"))
		return
	}

	var req nutrition.LogInput
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	entry, err := h.service.LogMeal(r.Context(), userID, req)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "Meal logged", entry)
}

// History は食事履歴を摂取日時の新しい順に返す。
// GET /api/v1/nutrition/history?page=&limit=
func (h *NutritionHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, r, model.NewUnauthorizedError("Authentication required"))
		return
	}

	history, pagination, err := h.service.History(r.Context(), userID, queryInt(r, "page"), queryInt(r, "limit"))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Meal history", listData[*model.MealHistoryEntry]{Items: history, Pagination: pagination})
}

// DeleteEntry は食事記録を削除する。
// DELETE /api/v1/nutrition/log/{id}
func (h *NutritionHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, r, model.NewUnauthorizedError("Authentication required"))
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		middleware.WriteError(w, r, model.NewMealLogNotFoundError())
		return
	}

	if err := h.service.DeleteEntry(r.Context(), userID, id); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
