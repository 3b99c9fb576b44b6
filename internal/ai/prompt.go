package ai

import (
	"fmt"
	"strings"

	"github.com/hitoshi/yhal/internal/model"
)

const predictionPrompt = `Analyze this African food image and return ONLY:
1. Common local name
2. Regional origin (West/East/North/South/Central Africa)
3. List of ingredients
Return JSON format: {"name": string, "origin": string, "ingredients": string[]}`

// nutritionPrompt は栄養計算用のプロンプトを組み立てる。
func nutritionPrompt(q model.NutritionQuery) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Calculate nutrition for %s, a %s African dish, with these ingredients:\n", q.FoodName, q.RegionalOrigin)
	for _, ing := range q.Ingredients {
		if ing.Amount > 0 {
			fmt.Fprintf(&b, "- %s (%g)\n", ing.Name, ing.Amount)
		} else {
			fmt.Fprintf(&b, "- %s\n", ing.Name)
		}
	}
	if q.Portion != nil {
		fmt.Fprintf(&b, "Portion: %s\n", describePortion(q.Portion))
	}
	b.WriteString(`Return ONLY JSON: {"calories": number, "nutrients": {"protein": number, "carbs": number, "fat": number}}`)
	return b.String()
}

func describePortion(p *model.Portion) string {
	switch p.Type {
	case model.PortionWeight:
		return fmt.Sprintf("%g g", p.Value)
	case model.PortionVolume:
		unit := p.Unit
		if unit == "" {
			unit = "ml"
		}
		return fmt.Sprintf("%g %s", p.Value, unit)
	case model.PortionPieces:
		return fmt.Sprintf("%g pieces", p.Value)
	default:
		return fmt.Sprintf("%g standard servings", p.Value)
	}
}
