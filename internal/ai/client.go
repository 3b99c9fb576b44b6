// Package ai はGemini generateContent APIを使った食品認識と栄養計算を提供する。
package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/yhal/internal/metrics"
	"github.com/hitoshi/yhal/internal/model"
)

// maxResponseBytes はAI APIレスポンスの読み込み上限。
const maxResponseBytes = 1 << 20

// errNotConfigured はAPIキー未設定を表す。応答には出さず、原因としてログにのみ残る。
var errNotConfigured = errors.New("ai: api key is not configured")

// 操作名（メトリクスのラベル）
const (
	opPredict   = "predict_food"
	opNutrition = "calculate_nutrition"
)

// Config はAIクライアントの設定。
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	// MaxRetries は429/5xxと通信エラーの再試行回数。0なら再試行しない。
	MaxRetries int
}

// Client はGemini APIクライアント。
// HTTPクライアントは呼び出し側から注入する（本番はSSRF防止付き）。
type Client struct {
	httpClient     *http.Client
	config         Config
	recorder       metrics.Recorder
	logger         *slog.Logger
	initialBackoff time.Duration
}

// NewClient はClientを生成する。
func NewClient(config Config, httpClient *http.Client, recorder metrics.Recorder, logger *slog.Logger) *Client {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Client{
		httpClient:     httpClient,
		config:         config,
		recorder:       recorder,
		logger:         logger,
		initialBackoff: defaultInitialBackoff,
	}
}

// Configured はAPIキーが設定されているかを返す。
func (c *Client) Configured() bool {
	return c.config.APIKey != ""
}

// PredictFood は画像から食品名・地域・食材を推定する。
// 失敗時はINGREDIENT_PREDICTION_FAILEDのAPIErrorを返す。
// コンテキストのキャンセルはそのまま返す。
func (c *Client) PredictFood(ctx context.Context, image []byte, mimeType string) (*model.Prediction, error) {
	if !c.Configured() {
		return nil, model.NewPredictionFailedError(errNotConfigured)
	}

	req := generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{Text: predictionPrompt},
				{InlineData: &inlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(image)}},
			},
		}},
		GenerationConfig: generationConfig{ResponseMimeType: "application/json", Temperature: 0.2},
	}

	var out predictionResponse
	if err := c.generate(ctx, opPredict, req, &out); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, model.NewPredictionFailedError(err)
	}

	pred := model.Prediction{
		FoodName:       strings.TrimSpace(out.Name),
		RegionalOrigin: strings.TrimSpace(out.Origin),
		Ingredients:    out.Ingredients,
	}
	if pred.FoodName == "" || len(pred.Ingredients) == 0 {
		return nil, model.NewPredictionFailedError(errors.New("ai: prediction is missing name or ingredients"))
	}
	return &pred, nil
}

// CalculateNutrition は食材と分量から栄養価を推定する。
// 失敗時はNUTRITION_CALCULATION_FAILEDのAPIErrorを返す。
func (c *Client) CalculateNutrition(ctx context.Context, q model.NutritionQuery) (*model.Nutrition, error) {
	if !c.Configured() {
		return nil, model.NewNutritionFailedError(errNotConfigured)
	}

	req := generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: nutritionPrompt(q)}}}},
		GenerationConfig: generationConfig{ResponseMimeType: "application/json", Temperature: 0.1},
	}

	var out model.Nutrition
	if err := c.generate(ctx, opNutrition, req, &out); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, model.NewNutritionFailedError(err)
	}

	for _, v := range []float64{out.Calories, out.Nutrients.Protein, out.Nutrients.Carbs, out.Nutrients.Fat} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, model.NewNutritionFailedError(fmt.Errorf("ai: invalid nutrient value %v", v))
		}
	}
	return &out, nil
}

// generate はgenerateContentを呼び出し、最初の候補のテキストをJSONとしてoutに展開する。
// 再試行対象の失敗は指数バックオフを挟んでMaxRetries回まで再試行する。
func (c *Client) generate(ctx context.Context, op string, req generateRequest, out any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "success"
		switch {
		case ctx.Err() != nil:
			outcome = "cancelled"
		case err != nil:
			outcome = "error"
		}
		c.recorder.RecordAIRequest(op, outcome, time.Since(start))
		if err != nil && ctx.Err() == nil {
			c.logger.Warn("ai request failed", "operation", op, "error", err)
		}
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("ai: encoding request: %w", err)
	}

	for retries := 0; ; retries++ {
		err = c.generateOnce(ctx, body, out)
		var retryable *retryableError
		if err == nil || !errors.As(err, &retryable) || retries >= c.config.MaxRetries {
			return err
		}

		delay := calculateBackoff(c.initialBackoff, retries)
		c.logger.Info("retrying ai request",
			"operation", op,
			"attempt", retries+2,
			"delay", delay,
			"error", err,
		)
		if err := sleepContext(ctx, delay); err != nil {
			return err
		}
	}
}

// generateOnce はgenerateContentを1回呼び出す。
func (c *Client) generateOnce(ctx context.Context, body []byte, out any) error {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.config.BaseURL, c.config.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ai: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.config.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &retryableError{err: fmt.Errorf("ai: sending request: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("ai: reading response: %w", err)
	}

	if classifyStatus(resp.StatusCode) != statusOK {
		var apiErr errorResponse
		_ = json.Unmarshal(raw, &apiErr)
		return statusError(resp.StatusCode, apiErr.Error.Message)
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return fmt.Errorf("ai: decoding response: %w", err)
	}
	text, err := gr.firstText()
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(extractJSON(text)), out); err != nil {
		return fmt.Errorf("ai: decoding model output: %w", err)
	}
	return nil
}

// extractJSON はモデル出力からJSONオブジェクト部分を取り出す。
// ```json のコードフェンスや前後の説明文を許容する。
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimPrefix(text, "json")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return strings.TrimSpace(text)
}
