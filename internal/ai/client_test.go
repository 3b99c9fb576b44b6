package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/yhal/internal/middleware"
	"github.com/hitoshi/yhal/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedAI struct {
	op, outcome string
}

type fakeRecorder struct {
	calls []recordedAI
}

func (r *fakeRecorder) RecordCacheLookup(string, string) {}

func (r *fakeRecorder) RecordAIRequest(op, outcome string, _ time.Duration) {
	r.calls = append(r.calls, recordedAI{op: op, outcome: outcome})
}

func (r *fakeRecorder) RecordRateLimitRejection(string) {}

func (r *fakeRecorder) RecordHTTPStatus(int) {}

// candidateBody はテキスト1件を含むgenerateContentレスポンスを返す。
func candidateBody(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{
				"content":      map[string]any{"parts": []any{map[string]any{"text": text}}},
				"finishReason": "STOP",
			},
		},
	})
	return string(b)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *fakeRecorder) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	rec := &fakeRecorder{}
	c := NewClient(Config{APIKey: "test-key", Model: "gemini-1.5-flash", BaseURL: ts.URL + "/v1beta/"},
		ts.Client(), rec, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return c, rec
}

func TestPredictFood(t *testing.T) {
	var gotPath, gotKey string
	var gotReq generateRequest
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		io.WriteString(w, candidateBody(`{"name":"Jollof Rice","origin":"West Africa","ingredients":["rice","tomato","pepper"]}`))
	})

	pred, err := c.PredictFood(context.Background(), []byte("fake-image"), "image/png")
	require.NoError(t, err)

	assert.Equal(t, "/v1beta/models/gemini-1.5-flash:generateContent", gotPath)
	assert.Equal(t, "test-key", gotKey)
	require.Len(t, gotReq.Contents, 1)
	require.Len(t, gotReq.Contents[0].Parts, 2)
	assert.Equal(t, "image/png", gotReq.Contents[0].Parts[1].InlineData.MimeType)
	assert.Equal(t, "application/json", gotReq.GenerationConfig.ResponseMimeType)

	assert.Equal(t, "Jollof Rice", pred.FoodName)
	assert.Equal(t, "West Africa", pred.RegionalOrigin)
	assert.Equal(t, []string{"rice", "tomato", "pepper"}, model.IngredientNames(pred.Ingredients))
	assert.Equal(t, []recordedAI{{op: opPredict, outcome: "success"}}, rec.calls)
}

func TestPredictFood_FencedOutput(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, candidateBody("```json\n{\"name\":\"Fufu\",\"origin\":\"West\",\"ingredients\":[\"cassava\"]}\n```"))
	})

	pred, err := c.PredictFood(context.Background(), []byte("img"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "Fufu", pred.FoodName)
}

func TestPredictFood_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "upstream 500", status: http.StatusInternalServerError, body: `{"error":{"code":500,"message":"boom"}}`},
		{name: "not json", status: http.StatusOK, body: candidateBody("I think this is rice")},
		{name: "no candidates", status: http.StatusOK, body: `{"candidates":[]}`},
		{name: "blocked", status: http.StatusOK, body: `{"promptFeedback":{"blockReason":"SAFETY"}}`},
		{name: "missing ingredients", status: http.StatusOK, body: candidateBody(`{"name":"Rice","origin":"West","ingredients":[]}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			_, err := c.PredictFood(context.Background(), []byte("img"), "image/png")
			var apiErr *model.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, model.ErrCodePredictionFailed, apiErr.Code)
			assert.Equal(t, model.KindUpstream, apiErr.Kind)
			require.NotEmpty(t, rec.calls)
		})
	}
}

func TestNotConfigured_NormalizedToDomainErrors(t *testing.T) {
	tests := []struct {
		name     string
		call     func(c *Client) error
		wantCode string
	}{
		{
			name: "predict food",
			call: func(c *Client) error {
				_, err := c.PredictFood(context.Background(), []byte("img"), "image/png")
				return err
			},
			wantCode: model.ErrCodePredictionFailed,
		},
		{
			name: "calculate nutrition",
			call: func(c *Client) error {
				_, err := c.CalculateNutrition(context.Background(), model.NutritionQuery{
					Ingredients: []model.Ingredient{{Name: "rice"}},
				})
				return err
			},
			wantCode: model.ErrCodeNutritionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
			})
			c.config.APIKey = ""

			err := tt.call(c)
			var apiErr *model.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.Equal(t, http.StatusBadRequest, middleware.StatusForKind(apiErr.Kind))
			assert.ErrorIs(t, err, errNotConfigured)
			assert.NotContains(t, apiErr.Message, "configured")
			assert.Zero(t, calls.Load())
		})
	}
}

func TestPredictFood_ContextCancelled(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.PredictFood(ctx, []byte("img"), "image/png")
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "err = %v", err)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, "cancelled", rec.calls[0].outcome)
}

func TestCalculateNutrition(t *testing.T) {
	var prompt string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		prompt = req.Contents[0].Parts[0].Text
		io.WriteString(w, candidateBody(`{"calories":450.5,"nutrients":{"protein":12,"carbs":60,"fat":15}}`))
	})

	got, err := c.CalculateNutrition(context.Background(), model.NutritionQuery{
		FoodName:       "Jollof Rice",
		RegionalOrigin: "West",
		Ingredients:    []model.Ingredient{{Name: "rice", Amount: 200}, {Name: "tomato"}},
		Portion:        &model.Portion{Type: model.PortionWeight, Value: 350, Unit: "g"},
	})
	require.NoError(t, err)

	assert.Equal(t, 450.5, got.Calories)
	assert.Equal(t, model.Nutrients{Protein: 12, Carbs: 60, Fat: 15}, got.Nutrients)
	assert.Contains(t, prompt, "Jollof Rice")
	assert.Contains(t, prompt, "rice (200)")
	assert.Contains(t, prompt, "350 g")
}

func TestCalculateNutrition_NegativeValue(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, candidateBody(`{"calories":-1,"nutrients":{"protein":1,"carbs":1,"fat":1}}`))
	})

	_, err := c.CalculateNutrition(context.Background(), model.NutritionQuery{
		FoodName:    "Suya",
		Ingredients: []model.Ingredient{{Name: "beef"}},
	})
	var apiErr *model.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, model.ErrCodeNutritionFailed, apiErr.Code)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct{ in, want string }{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"Here you go: {\"a\":1} enjoy", `{"a":1}`},
		{"no json here", "no json here"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractJSON(tt.in), "input %q", tt.in)
	}
}

func TestNutritionPrompt_Portions(t *testing.T) {
	base := model.NutritionQuery{FoodName: "Kenkey", RegionalOrigin: "West", Ingredients: []model.Ingredient{{Name: "maize"}}}

	tests := []struct {
		portion model.Portion
		want    string
	}{
		{model.Portion{Type: model.PortionStandard, Value: 1}, "1 standard servings"},
		{model.Portion{Type: model.PortionPieces, Value: 2}, "2 pieces"},
		{model.Portion{Type: model.PortionVolume, Value: 250}, "250 ml"},
		{model.Portion{Type: model.PortionVolume, Value: 1, Unit: "cup"}, "1 cup"},
	}
	for _, tt := range tests {
		q := base
		p := tt.portion
		q.Portion = &p
		assert.True(t, strings.Contains(nutritionPrompt(q), tt.want), "portion %+v should render %q", tt.portion, tt.want)
	}
}
