package model

import "time"

// NutritionQuery は栄養計算の入力を表す。
type NutritionQuery struct {
	FoodName       string       `json:"foodName"`
	RegionalOrigin string       `json:"regionalOrigin"`
	Ingredients    []Ingredient `json:"ingredients"`
	Portion        *Portion     `json:"portion,omitempty"`
}

// Nutrients は主要栄養素（グラム）を表す。
type Nutrients struct {
	Protein float64 `json:"protein"`
	Carbs   float64 `json:"carbs"`
	Fat     float64 `json:"fat"`
}

// Nutrition はAIによる栄養計算結果を表す。
type Nutrition struct {
	Calories  float64   `json:"calories"`
	Nutrients Nutrients `json:"nutrients"`
}

// NutritionReport は栄養計算APIのレスポンス本体。入力と計算結果をまとめて返す。
type NutritionReport struct {
	NutritionQuery
	Nutrition
}

// MealLogEntry は食事記録1件を表す。
type MealLogEntry struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"-"`
	FoodID     int64     `json:"foodId"`
	ConsumedAt time.Time `json:"consumedAt"`
	Notes      string    `json:"notes"`
	CreatedAt  time.Time `json:"createdAt"`
}

// MealHistoryEntry は食品情報を結合した食事履歴1件を表す。
type MealHistoryEntry struct {
	MealLogEntry
	FoodName       string   `json:"foodName"`
	RegionalOrigin string   `json:"regionalOrigin"`
	Calories       *float64 `json:"calories"`
}
