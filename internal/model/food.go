package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Food はユーザーが確認またはスキャンした食品を表す。
// (UserID, Name) の組で一意となり、再スキャン時はFrequencyCountが増える。
type Food struct {
	ID             int64        `json:"id"`
	UserID         int64        `json:"-"`
	Name           string       `json:"name"`
	RegionalOrigin string       `json:"regionalOrigin"`
	Ingredients    []Ingredient `json:"ingredients"`
	Calories       *float64     `json:"calories"`
	ImagePath      string       `json:"imagePath,omitempty"`
	FrequencyCount int          `json:"frequencyCount"`
	LastAccessed   time.Time    `json:"lastAccessed"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// Ingredient は食材1件を表す。
// JSONでは文字列（名前のみ）と {"name","amount"} オブジェクトの両方を受け付ける。
type Ingredient struct {
	Name   string
	Amount float64
}

type ingredientObject struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// MarshalJSON は分量がなければ文字列、あればオブジェクトとして出力する。
func (i Ingredient) MarshalJSON() ([]byte, error) {
	if i.Amount == 0 {
		return json.Marshal(i.Name)
	}
	return json.Marshal(ingredientObject{Name: i.Name, Amount: i.Amount})
}

// UnmarshalJSON は文字列とオブジェクトのどちらの表現も受け付ける。
func (i *Ingredient) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*i = Ingredient{Name: name}
		return nil
	}
	if len(data) > 0 && data[0] == '{' {
		var obj ingredientObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*i = Ingredient{Name: obj.Name, Amount: obj.Amount}
		return nil
	}
	return fmt.Errorf("ingredient must be a string or an object, got %s", string(data))
}

// IngredientNames は食材名のみを抽出する。
func IngredientNames(ingredients []Ingredient) []string {
	names := make([]string, 0, len(ingredients))
	for _, ing := range ingredients {
		names = append(names, ing.Name)
	}
	return names
}

// Prediction はAIによる食品認識結果を表す。
type Prediction struct {
	FoodName       string       `json:"foodName"`
	RegionalOrigin string       `json:"regionalOrigin"`
	Ingredients    []Ingredient `json:"ingredients"`
}

// Portion は1食分の量を表す。
type Portion struct {
	Type  string  `json:"type"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// 分量の種類
const (
	PortionStandard = "standard"
	PortionWeight   = "weight"
	PortionVolume   = "volume"
	PortionPieces   = "pieces"
)
