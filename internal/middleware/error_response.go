package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/yhal/internal/model"
)

// エンベロープのstatus値
const (
	StatusSuccess = "success"
	StatusFail    = "fail"
	StatusError   = "error"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// statusは4xxでfail、5xxでerrorになる。
type ErrorResponseBody struct {
	Status  string         `json:"status"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// StatusForKind はエラー分類をHTTPステータスに変換する。
func StatusForKind(kind model.ErrorKind) int {
	switch kind {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindUnauthorized:
		return http.StatusUnauthorized
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindConflict:
		return http.StatusConflict
	case model.KindRateLimited:
		return http.StatusTooManyRequests
	case model.KindUpstream:
		return http.StatusBadRequest
	case model.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// EnvelopeStatus はHTTPステータスに対応するエンベロープのstatus値を返す。
func EnvelopeStatus(statusCode int) string {
	switch {
	case statusCode >= 500:
		return StatusError
	case statusCode >= 400:
		return StatusFail
	default:
		return StatusSuccess
	}
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, body ErrorResponseBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// WriteError はエラーを分類に応じたステータスとエンベロープで書き込む。
// *model.APIErrorでないエラーは内部エラーとして扱い、原因はログにのみ出力する。
// 開発モードのリクエストではdetails.debugに内部原因を含める。
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &maxBytesErr):
		apiErr = model.NewPayloadTooLargeError()
	default:
		apiErr = model.NewInternalError(err)
	}

	statusCode := StatusForKind(apiErr.Kind)
	logError(r, statusCode, apiErr)

	details := make(map[string]any, len(apiErr.Details)+1)
	for k, v := range apiErr.Details {
		details[k] = v
	}
	if apiErr.Err != nil && debugErrorsEnabled(r.Context()) {
		details["debug"] = apiErr.Err.Error()
	}
	if len(details) == 0 {
		details = nil
	}

	if apiErr.Kind == model.KindRateLimited {
		if secs, ok := apiErr.Details["retryAfter"].(int); ok {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}

	WriteErrorResponse(w, statusCode, ErrorResponseBody{
		Status:  EnvelopeStatus(statusCode),
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: details,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
func WriteInternalServerError(w http.ResponseWriter, r *http.Request, cause error) {
	WriteError(w, r, model.NewInternalError(cause))
}

func logError(r *http.Request, statusCode int, apiErr *model.APIError) {
	attrs := []any{
		slog.String("code", apiErr.Code),
		slog.String("kind", apiErr.Kind.String()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	}
	if apiErr.Err != nil {
		attrs = append(attrs, slog.String("error", apiErr.Err.Error()))
	}

	switch {
	case statusCode >= 500:
		slog.ErrorContext(r.Context(), "request failed", attrs...)
	case apiErr.Err != nil:
		slog.WarnContext(r.Context(), "request rejected", attrs...)
	}
}

type debugErrorsKey struct{}

// NewDebugErrorsMiddleware は開発モードでエラーレスポンスに内部原因を含めるよう
// リクエストコンテキストに印を付けるミドルウェアを返す。
func NewDebugErrorsMiddleware(enabled bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), debugErrorsKey{}, true)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func debugErrorsEnabled(ctx context.Context) bool {
	enabled, _ := ctx.Value(debugErrorsKey{}).(bool)
	return enabled
}
