// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はAIが生成した食品名・地域名・食材名からマークアップを除去し、
// クライアントに返す値やキャッシュに保存する値を平文に限定する。
package security

import (
	"html"
	"strings"

	"github.com/hitoshi/yhal/internal/model"
	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は外部由来の文字列を平文化するインターフェース。
type TextSanitizer interface {
	// Sanitize はすべてのHTMLタグを除去し、前後の空白を取り除いた平文を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのStrictPolicyはスレッドセーフに共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はタグを一切許可しないTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去する。bluemondayがエスケープした実体参照は元に戻し、
// 山括弧は残さない。
func (s *textSanitizer) Sanitize(raw string) string {
	clean := html.UnescapeString(s.policy.Sanitize(raw))
	clean = strings.NewReplacer("<", "", ">", "").Replace(clean)
	return strings.TrimSpace(clean)
}

// SanitizePrediction は食品認識結果の各文字列を平文化した新しい値を返す。
// 名前が空になった食材は取り除く。
func SanitizePrediction(s TextSanitizer, p model.Prediction) model.Prediction {
	return model.Prediction{
		FoodName:       s.Sanitize(p.FoodName),
		RegionalOrigin: s.Sanitize(p.RegionalOrigin),
		Ingredients:    SanitizeIngredients(s, p.Ingredients),
	}
}

// SanitizeIngredients は食材名を平文化する。
func SanitizeIngredients(s TextSanitizer, in []model.Ingredient) []model.Ingredient {
	out := make([]model.Ingredient, 0, len(in))
	for _, ing := range in {
		name := s.Sanitize(ing.Name)
		if name == "" {
			continue
		}
		out = append(out, model.Ingredient{Name: name, Amount: ing.Amount})
	}
	return out
}
