package ai

import (
	"errors"
	"fmt"

	"github.com/hitoshi/yhal/internal/model"
)

// generateRequest はgenerateContentのリクエストボディ。
type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
	Temperature      float64 `json:"temperature"`
}

// generateResponse はgenerateContentのレスポンスボディ。
type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// firstText は最初の候補のテキストを返す。
func (r *generateResponse) firstText() (string, error) {
	if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("ai: prompt blocked: %s", r.PromptFeedback.BlockReason)
	}
	if len(r.Candidates) == 0 {
		return "", errors.New("ai: no candidates in response")
	}
	for _, p := range r.Candidates[0].Content.Parts {
		if p.Text != "" {
			return p.Text, nil
		}
	}
	return "", fmt.Errorf("ai: empty candidate (finish reason %q)", r.Candidates[0].FinishReason)
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// predictionResponse はモデルが返す食品認識結果。
type predictionResponse struct {
	Name        string             `json:"name"`
	Origin      string             `json:"origin"`
	Ingredients []model.Ingredient `json:"ingredients"`
}
