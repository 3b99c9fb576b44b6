// Package nutrition は栄養計算と食事記録を提供する。
package nutrition

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/yhal/internal/model"
	"github.com/hitoshi/yhal/internal/repository"
	"github.com/hitoshi/yhal/internal/security"
	"github.com/hitoshi/yhal/internal/validation"
)

// maxFutureSkew は食事日時として受け付ける未来方向の許容幅。
const maxFutureSkew = 24 * time.Hour

// Calculator は食材から栄養価を計算するインターフェース。
type Calculator interface {
	CalculateNutrition(ctx context.Context, q model.NutritionQuery) (*model.Nutrition, error)
}

// LogInput は食事記録の入力値。ConsumedAtを省略すると現在時刻を使う。
type LogInput struct {
	FoodID     int64      `json:"foodId"`
	Notes      string     `json:"notes"`
	ConsumedAt *time.Time `json:"consumedAt,omitempty"`
}

// Service は栄養計算と食事記録のビジネスロジックを提供する。
type Service struct {
	meals      repository.MealLogRepository
	foods      repository.FoodRepository
	calculator Calculator
	sanitizer  security.TextSanitizer
	logger     *slog.Logger
	now        func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	meals repository.MealLogRepository,
	foods repository.FoodRepository,
	calculator Calculator,
	sanitizer security.TextSanitizer,
	logger *slog.Logger,
) *Service {
	return &Service{
		meals:      meals,
		foods:      foods,
		calculator: calculator,
		sanitizer:  sanitizer,
		logger:     logger,
		now:        time.Now,
	}
}

// NormalizeQuery は栄養計算の入力を検証し、文字列を平文化・正規化した値を返す。
// キャッシュキーはこの戻り値から計算する。
func (s *Service) NormalizeQuery(q model.NutritionQuery) (model.NutritionQuery, error) {
	ingredients, err := validation.Ingredients(security.SanitizeIngredients(s.sanitizer, q.Ingredients))
	if err != nil {
		return model.NutritionQuery{}, err
	}
	name, err := validation.FoodName(s.sanitizer.Sanitize(q.FoodName))
	if err != nil {
		return model.NutritionQuery{}, err
	}
	region, err := validation.Region(q.RegionalOrigin)
	if err != nil {
		return model.NutritionQuery{}, err
	}
	if err := validation.Portion(q.Portion); err != nil {
		return model.NutritionQuery{}, err
	}

	portion := *q.Portion
	return model.NutritionQuery{
		FoodName:       name,
		RegionalOrigin: region,
		Ingredients:    ingredients,
		Portion:        &portion,
	}, nil
}

// Calculate は正規化済みの入力で栄養価を計算し、入力とまとめて返す。
func (s *Service) Calculate(ctx context.Context, q model.NutritionQuery) (*model.NutritionReport, error) {
	q, err := s.NormalizeQuery(q)
	if err != nil {
		return nil, err
	}

	n, err := s.calculator.CalculateNutrition(ctx, q)
	if err != nil {
		return nil, err
	}
	return &model.NutritionReport{NutritionQuery: q, Nutrition: *n}, nil
}

// LogMeal は食事を記録する。食品はユーザー自身のものに限る。
func (s *Service) LogMeal(ctx context.Context, userID int64, in LogInput) (*model.MealLogEntry, error) {
	if in.FoodID <= 0 {
		return nil, model.NewValidationError("foodId", "A valid foodId is required")
	}
	notes, err := validation.Notes(s.sanitizer.Sanitize(in.Notes))
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	consumedAt := now
	if in.ConsumedAt != nil && !in.ConsumedAt.IsZero() {
		consumedAt = in.ConsumedAt.UTC()
		if consumedAt.After(now.Add(maxFutureSkew)) {
			return nil, model.NewValidationError("consumedAt", "consumedAt cannot be in the future")
		}
	}

	f, err := s.foods.FindByIDForUser(ctx, userID, in.FoodID)
	if err != nil {
		return nil, model.NewInternalError(fmt.Errorf("finding food: %w", err))
	}
	if f == nil {
		return nil, model.NewFoodNotFoundError()
	}

	entry := &model.MealLogEntry{
		UserID:     userID,
		FoodID:     in.FoodID,
		ConsumedAt: consumedAt,
		Notes:      notes,
		CreatedAt:  now,
	}
	if err := s.meals.Create(ctx, entry); err != nil {
		return nil, model.NewInternalError(fmt.Errorf("creating meal log: %w", err))
	}
	return entry, nil
}

// History は食品情報を結合した食事履歴をページ単位で返す。
func (s *Service) History(ctx context.Context, userID int64, page, limit int) ([]*model.MealHistoryEntry, model.Pagination, error) {
	page, limit = model.NormalizePage(page, limit)

	total, err := s.meals.CountByUser(ctx, userID)
	if err != nil {
		return nil, model.Pagination{}, model.NewInternalError(fmt.Errorf("counting meal log: %w", err))
	}
	entries, err := s.meals.ListHistory(ctx, userID, limit, model.Offset(page, limit))
	if err != nil {
		return nil, model.Pagination{}, model.NewInternalError(fmt.Errorf("listing meal log: %w", err))
	}
	if entries == nil {
		entries = []*model.MealHistoryEntry{}
	}
	return entries, model.BuildPagination(total, page, limit), nil
}

// DeleteEntry はユーザーの食事記録を削除する。
func (s *Service) DeleteEntry(ctx context.Context, userID, id int64) error {
	if id <= 0 {
		return model.NewMealLogNotFoundError()
	}
	ok, err := s.meals.DeleteForUser(ctx, userID, id)
	if err != nil {
		return model.NewInternalError(fmt.Errorf("deleting meal log: %w", err))
	}
	if !ok {
		return model.NewMealLogNotFoundError()
	}
	return nil
}
