package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/yhal/internal/model"
)

const nutritionBody = `{
	"foodName": "Jollof Rice",
	"regionalOrigin": "West Africa",
	"ingredients": [{"name": "rice", "amount": 200}, "tomato"],
	"portion": {"type": "weight", "value": 350, "unit": "g"}
}`

func TestNutrition_AliasRoutesShareCache(t *testing.T) {
	env := newTestEnv(t)

	first := env.do(t, jsonRequest(http.MethodPost, "/api/v1/nutrition", nutritionBody), "")
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d, want 200\nbody: %s", first.Code, first.Body.String())
	}
	var report model.NutritionReport
	decodeSuccess(t, first, &report)
	if report.Calories != 420 || report.Nutrients.Carbs != 80 {
		t.Errorf("report = %+v", report)
	}
	if report.RegionalOrigin != "West" {
		t.Errorf("regionalOrigin = %q, want West", report.RegionalOrigin)
	}

	// ユーザーや経路が違っても同じ入力なら同じキー
	second := env.do(t, jsonRequest(http.MethodPost, "/api/v1/foods/nutrition", nutritionBody), "user-1")
	if second.Code != http.StatusOK {
		t.Fatalf("second status = %d, want 200", second.Code)
	}
	if got := second.Header().Get("X-Cache"); got != "HIT" {
		t.Errorf("X-Cache = %q, want HIT", got)
	}

	if _, nutritionCalls := env.ai.calls(); nutritionCalls != 1 {
		t.Errorf("nutrition calls = %d, want 1", nutritionCalls)
	}
}

func TestNutrition_InvalidInputNeverReachesAI(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantMessage string
	}{
		{
			name:        "empty ingredients",
			body:        `{"foodName":"Jollof Rice","regionalOrigin":"West","ingredients":[],"portion":{"type":"standard","value":1}}`,
			wantMessage: "Ingredients must be a non-empty array",
		},
		{
			name:        "negative portion",
			body:        `{"foodName":"Jollof Rice","regionalOrigin":"West","ingredients":["rice"],"portion":{"type":"standard","value":-1}}`,
			wantMessage: "Portion must have a positive numeric value",
		},
		{
			name:        "missing portion",
			body:        `{"foodName":"Jollof Rice","regionalOrigin":"West","ingredients":["rice"]}`,
			wantMessage: "Portion size is required",
		},
		{
			name:        "invalid json",
			body:        `{"foodName":`,
			wantMessage: "Invalid JSON body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			w := env.do(t, jsonRequest(http.MethodPost, "/api/v1/nutrition", tt.body), "")

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400\nbody: %s", w.Code, w.Body.String())
			}
			if body := decodeError(t, w); body.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", body.Message, tt.wantMessage)
			}
			if _, nutritionCalls := env.ai.calls(); nutritionCalls != 0 {
				t.Errorf("nutrition calls = %d, want 0", nutritionCalls)
			}
		})
	}
}

func TestNutrition_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t)
	huge := `{"foodName":"` + strings.Repeat("a", 11<<10) + `"}`

	w := env.do(t, jsonRequest(http.MethodPost, "/api/v1/nutrition", huge), "")

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
}

func TestMealLog_LifeCycle(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, jsonRequest(http.MethodPost, "/api/v1/foods/confirm",
		`{"foodName":"Suya","regionalOrigin":"West","ingredients":["beef"]}`), "user-1")

	created := env.do(t, jsonRequest(http.MethodPost, "/api/v1/nutrition/log", `{"foodId":1,"notes":"<b>lunch</b>"}`), "user-1")
	if created.Code != http.StatusCreated {
		t.Fatalf("log status = %d, want 201\nbody: %s", created.Code, created.Body.String())
	}
	var entry model.MealLogEntry
	decodeSuccess(t, created, &entry)
	if entry.ID != 1 || entry.FoodID != 1 || entry.Notes != "lunch" {
		t.Errorf("entry = %+v", entry)
	}

	other := env.do(t, jsonRequest(http.MethodPost, "/api/v1/nutrition/log", `{"foodId":1}`), "user-2")
	if other.Code != http.StatusNotFound {
		t.Errorf("other user's food status = %d, want 404", other.Code)
	}

	history := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/nutrition/history", nil), "user-1")
	var list struct {
		Items      []model.MealHistoryEntry `json:"items"`
		Pagination model.Pagination         `json:"pagination"`
	}
	decodeSuccess(t, history, &list)
	if len(list.Items) != 1 || list.Items[0].FoodName != "Suya" {
		t.Errorf("history = %+v", list.Items)
	}
	if list.Pagination.TotalItems != 1 {
		t.Errorf("totalItems = %d, want 1", list.Pagination.TotalItems)
	}

	if w := env.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/nutrition/log/1", nil), "user-2"); w.Code != http.StatusNotFound {
		t.Errorf("delete by other user status = %d, want 404", w.Code)
	}
	if w := env.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/nutrition/log/1", nil), "user-1"); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", w.Code)
	}
	if w := env.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/nutrition/log/1", nil), "user-1"); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestMealLog_HistoryShowsConfirmedCalories(t *testing.T) {
	env := newTestEnv(t)
	confirmed := env.do(t, jsonRequest(http.MethodPost, "/api/v1/foods/confirm",
		`{"foodName":"Suya","regionalOrigin":"West","ingredients":["beef"],"calories":310}`), "user-1")
	if confirmed.Code != http.StatusOK {
		t.Fatalf("confirm status = %d, want 200\nbody: %s", confirmed.Code, confirmed.Body.String())
	}

	food := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/foods/1", nil), "user-1")
	var stored model.Food
	decodeSuccess(t, food, &stored)
	if stored.Calories == nil || *stored.Calories != 310 {
		t.Errorf("food calories = %v, want 310", stored.Calories)
	}

	env.do(t, jsonRequest(http.MethodPost, "/api/v1/nutrition/log", `{"foodId":1}`), "user-1")
	history := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/nutrition/history", nil), "user-1")
	var list struct {
		Items []model.MealHistoryEntry `json:"items"`
	}
	decodeSuccess(t, history, &list)
	if len(list.Items) != 1 || list.Items[0].Calories == nil || *list.Items[0].Calories != 310 {
		t.Errorf("history = %+v, want one entry with calories 310", list.Items)
	}
}

func TestFoods_ConfirmRejectsNonPositiveCalories(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, jsonRequest(http.MethodPost, "/api/v1/foods/confirm",
		`{"foodName":"Suya","regionalOrigin":"West","ingredients":["beef"],"calories":0}`), "user-1")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if body := decodeError(t, w); body.Message != "Calories must be a positive number if provided" {
		t.Errorf("message = %q", body.Message)
	}
}

func TestMealLog_RequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, jsonRequest(http.MethodPost, "/api/v1/nutrition/log", `{"foodId":1}`), "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}

	w = env.do(t, jsonRequest(http.MethodPost, "/api/v1/nutrition/log", `{"foodId":1}`), "forged")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("forged token status = %d, want 401", w.Code)
	}
}
