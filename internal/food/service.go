// Package food は食品画像の認識、確認、スキャン履歴の管理を提供する。
package food

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/yhal/internal/model"
	"github.com/hitoshi/yhal/internal/repository"
	"github.com/hitoshi/yhal/internal/security"
	"github.com/hitoshi/yhal/internal/storage"
	"github.com/hitoshi/yhal/internal/validation"
)

// DefaultFrequentLimit はよく使う食品一覧の既定件数。
const DefaultFrequentLimit = 10

// Predictor は画像から食品を推定するインターフェース。
type Predictor interface {
	PredictFood(ctx context.Context, image []byte, mimeType string) (*model.Prediction, error)
}

// Config は食品サービスの設定。
type Config struct {
	UploadMaxBytes int64
	AllowWebP      bool
}

// Upload はアップロードされた画像を表す。
type Upload struct {
	Data        []byte
	ContentType string
}

// ConfirmInput はユーザーが確認・修正した食品情報。
type ConfirmInput struct {
	FoodName       string             `json:"foodName"`
	RegionalOrigin string             `json:"regionalOrigin"`
	Ingredients    []model.Ingredient `json:"ingredients"`
	Calories       *float64           `json:"calories,omitempty"`
}

// ConfirmResult は確認結果。ログインユーザーの場合は保存した食品IDを含む。
type ConfirmResult struct {
	model.Prediction
	Calories *float64 `json:"calories,omitempty"`
	FoodID   *int64   `json:"foodId,omitempty"`
}

// Service は食品に関するビジネスロジックを提供する。
type Service struct {
	foods     repository.FoodRepository
	predictor Predictor
	images    storage.ImageStore
	sanitizer security.TextSanitizer
	config    Config
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	foods repository.FoodRepository,
	predictor Predictor,
	images storage.ImageStore,
	sanitizer security.TextSanitizer,
	config Config,
	logger *slog.Logger,
) *Service {
	return &Service{
		foods:     foods,
		predictor: predictor,
		images:    images,
		sanitizer: sanitizer,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// CheckImage はアップロード画像を検証し、正規化したMIMEタイプを返す。
func (s *Service) CheckImage(u Upload) (string, error) {
	head := u.Data
	if len(head) > 512 {
		head = head[:512]
	}
	return validation.ImageFile(u.ContentType, int64(len(u.Data)), s.config.UploadMaxBytes, head, s.config.AllowWebP)
}

// Analyze は検証済みの画像から食品を推定する。
// 結果の文字列はタグを除去し、地域名は可能なら正規化する。
func (s *Service) Analyze(ctx context.Context, image []byte, mimeType string) (*model.Prediction, error) {
	pred, err := s.predictor.PredictFood(ctx, image, mimeType)
	if err != nil {
		return nil, err
	}

	clean := security.SanitizePrediction(s.sanitizer, *pred)
	if region, ok := validation.NormalizeRegion(clean.RegionalOrigin); ok {
		clean.RegionalOrigin = region
	}
	if clean.FoodName == "" || len(clean.Ingredients) == 0 {
		return nil, model.NewPredictionFailedError(fmt.Errorf("prediction empty after sanitizing"))
	}
	return &clean, nil
}

// RecordScan はスキャン画像を保存し、食品をユーザーの履歴に登録する。
// 同名の食品が既にあればスキャン回数を1増やす。
func (s *Service) RecordScan(ctx context.Context, userID int64, pred model.Prediction, image []byte, mimeType string) (*model.Food, error) {
	key := storage.ObjectKey(userID, mimeType)
	ref, err := s.images.Put(ctx, key, image, mimeType)
	if err != nil {
		return nil, model.NewInternalError(fmt.Errorf("storing scan image: %w", err))
	}

	saved, err := s.foods.UpsertScan(ctx, &model.Food{
		UserID:         userID,
		Name:           pred.FoodName,
		RegionalOrigin: pred.RegionalOrigin,
		Ingredients:    pred.Ingredients,
		ImagePath:      ref,
		LastAccessed:   s.now().UTC(),
	})
	if err != nil {
		return nil, model.NewInternalError(fmt.Errorf("recording scan: %w", err))
	}

	s.logger.Info("food scan recorded",
		slog.Int64("user_id", userID),
		slog.Int64("food_id", saved.ID),
		slog.Int("frequency_count", saved.FrequencyCount),
	)
	return saved, nil
}

// NormalizeConfirm は確認入力を検証・正規化した値を返す。
func (s *Service) NormalizeConfirm(in ConfirmInput) (ConfirmInput, error) {
	name, err := validation.FoodName(s.sanitizer.Sanitize(in.FoodName))
	if err != nil {
		return ConfirmInput{}, err
	}
	region, err := validation.Region(in.RegionalOrigin)
	if err != nil {
		return ConfirmInput{}, err
	}
	ingredients, err := validation.Ingredients(security.SanitizeIngredients(s.sanitizer, in.Ingredients))
	if err != nil {
		return ConfirmInput{}, err
	}
	if err := validation.Calories(in.Calories); err != nil {
		return ConfirmInput{}, err
	}
	return ConfirmInput{
		FoodName:       name,
		RegionalOrigin: region,
		Ingredients:    ingredients,
		Calories:       in.Calories,
	}, nil
}

// Confirm はユーザーが確認した食品情報を確定する。
// userIDが0（未ログイン）の場合は保存せず、正規化した値のみ返す。
func (s *Service) Confirm(ctx context.Context, userID int64, in ConfirmInput) (*ConfirmResult, error) {
	in, err := s.NormalizeConfirm(in)
	if err != nil {
		return nil, err
	}

	result := &ConfirmResult{
		Prediction: model.Prediction{
			FoodName:       in.FoodName,
			RegionalOrigin: in.RegionalOrigin,
			Ingredients:    in.Ingredients,
		},
		Calories: in.Calories,
	}
	if userID == 0 {
		return result, nil
	}

	saved, err := s.foods.UpsertScan(ctx, &model.Food{
		UserID:         userID,
		Name:           in.FoodName,
		RegionalOrigin: in.RegionalOrigin,
		Ingredients:    in.Ingredients,
		Calories:       in.Calories,
		LastAccessed:   s.now().UTC(),
	})
	if err != nil {
		return nil, model.NewInternalError(fmt.Errorf("saving confirmed food: %w", err))
	}
	result.FoodID = &saved.ID
	return result, nil
}

// GetFood はユーザーの食品を取得する。他ユーザーの食品は存在しないものとして扱う。
func (s *Service) GetFood(ctx context.Context, userID, id int64) (*model.Food, error) {
	if id <= 0 {
		return nil, model.NewFoodNotFoundError()
	}
	f, err := s.foods.FindByIDForUser(ctx, userID, id)
	if err != nil {
		return nil, model.NewInternalError(fmt.Errorf("finding food: %w", err))
	}
	if f == nil {
		return nil, model.NewFoodNotFoundError()
	}
	return f, nil
}

// ListFoods はユーザーの食品履歴をページ単位で返す。
func (s *Service) ListFoods(ctx context.Context, userID int64, page, limit int) ([]*model.Food, model.Pagination, error) {
	page, limit = model.NormalizePage(page, limit)

	total, err := s.foods.CountByUser(ctx, userID)
	if err != nil {
		return nil, model.Pagination{}, model.NewInternalError(fmt.Errorf("counting foods: %w", err))
	}
	foods, err := s.foods.ListByUser(ctx, userID, limit, model.Offset(page, limit))
	if err != nil {
		return nil, model.Pagination{}, model.NewInternalError(fmt.Errorf("listing foods: %w", err))
	}
	if foods == nil {
		foods = []*model.Food{}
	}
	return foods, model.BuildPagination(total, page, limit), nil
}

// ListFrequent はスキャン回数の多い食品を返す。
func (s *Service) ListFrequent(ctx context.Context, userID int64, limit int) ([]*model.Food, error) {
	if limit <= 0 || limit > model.MaxPerPage {
		limit = DefaultFrequentLimit
	}
	foods, err := s.foods.ListFrequent(ctx, userID, limit)
	if err != nil {
		return nil, model.NewInternalError(fmt.Errorf("listing frequent foods: %w", err))
	}
	if foods == nil {
		foods = []*model.Food{}
	}
	return foods, nil
}
