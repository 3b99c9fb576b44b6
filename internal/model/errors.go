// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// ErrorKind はAPIエラーの分類を表す閉じた列挙型。
// HTTPステータスへの変換はミドルウェア層で一元的に行う。
type ErrorKind int

const (
	// KindInternal は想定外の内部エラー。
	KindInternal ErrorKind = iota
	// KindValidation は入力検証エラー。
	KindValidation
	// KindUnauthorized は認証エラー。
	KindUnauthorized
	// KindNotFound はリソース未検出エラー。
	KindNotFound
	// KindConflict は一意制約などの競合エラー。
	KindConflict
	// KindRateLimited はレート制限超過。
	KindRateLimited
	// KindUpstream はAIなど外部依存の失敗。
	KindUpstream
	// KindTooLarge はリクエストボディのサイズ超過。
	KindTooLarge
)

// String はログ出力用の分類名を返す。
func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindUpstream:
		return "upstream"
	case KindTooLarge:
		return "too_large"
	default:
		return "internal"
	}
}

// APIError は統一エラーフォーマットを表す。
// Detailsはクライアントに返す構造化情報、Errは内部原因（ログ専用）。
type APIError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は内部原因を返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeDuplicateEmail      = "DUPLICATE_EMAIL"
	ErrCodeInvalidResetToken   = "INVALID_RESET_TOKEN"
	ErrCodeInvalidVerification = "INVALID_VERIFICATION_TOKEN"
	ErrCodeFoodNotFound        = "FOOD_NOT_FOUND"
	ErrCodeMealNotFound        = "MEAL_LOG_NOT_FOUND"
	ErrCodeRouteNotFound       = "ROUTE_NOT_FOUND"
	ErrCodeRateLimited         = "RATE_LIMIT_EXCEEDED"
	ErrCodePredictionFailed    = "INGREDIENT_PREDICTION_FAILED"
	ErrCodeNutritionFailed     = "NUTRITION_CALCULATION_FAILED"
	ErrCodePayloadTooLarge     = "PAYLOAD_TOO_LARGE"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewValidationError は入力検証エラーを生成する。
// fieldが空でなければdetails.fieldに格納する。
func NewValidationError(field, message string) *APIError {
	e := &APIError{
		Kind:    KindValidation,
		Code:    ErrCodeValidation,
		Message: message,
	}
	if field != "" {
		e.Details = map[string]any{"field": field}
	}
	return e
}

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError(message string) *APIError {
	return &APIError{
		Kind:    KindUnauthorized,
		Code:    ErrCodeUnauthorized,
		Message: message,
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// メールアドレスとパスワードのどちらが誤りかは区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Kind:    KindUnauthorized,
		Code:    ErrCodeInvalidCredentials,
		Message: "Invalid email or password",
	}
}

// NewDuplicateEmailError はメールアドレス重複エラーを生成する。
func NewDuplicateEmailError() *APIError {
	return &APIError{
		Kind:    KindConflict,
		Code:    ErrCodeDuplicateEmail,
		Message: "An account with this email already exists",
	}
}

// NewInvalidResetTokenError はパスワードリセットトークン無効エラーを生成する。
func NewInvalidResetTokenError() *APIError {
	return &APIError{
		Kind:    KindValidation,
		Code:    ErrCodeInvalidResetToken,
		Message: "Invalid or expired token",
	}
}

// NewInvalidVerificationTokenError はメール確認トークン無効エラーを生成する。
func NewInvalidVerificationTokenError() *APIError {
	return &APIError{
		Kind:    KindValidation,
		Code:    ErrCodeInvalidVerification,
		Message: "Invalid or expired verification link",
	}
}

// NewFoodNotFoundError は食品未検出エラーを生成する。
// 他ユーザーの食品IDに対しても同じエラーを返す。
func NewFoodNotFoundError() *APIError {
	return &APIError{
		Kind:    KindNotFound,
		Code:    ErrCodeFoodNotFound,
		Message: "Food not found",
	}
}

// NewMealLogNotFoundError は食事記録未検出エラーを生成する。
func NewMealLogNotFoundError() *APIError {
	return &APIError{
		Kind:    KindNotFound,
		Code:    ErrCodeMealNotFound,
		Message: "Meal log entry not found",
	}
}

// NewRouteNotFoundError は未定義ルートへのアクセスエラーを生成する。
func NewRouteNotFoundError(path string) *APIError {
	return &APIError{
		Kind:    KindNotFound,
		Code:    ErrCodeRouteNotFound,
		Message: fmt.Sprintf("Can't find %s on this server!", path),
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
// detailsにはretryAfter（秒）、limit（残りポイント）、reset（リセット時刻）を含める。
func NewRateLimitedError(retryAfter time.Duration, remaining int, reset time.Time) *APIError {
	return &APIError{
		Kind:    KindRateLimited,
		Code:    ErrCodeRateLimited,
		Message: "Too many requests, please try again later",
		Details: map[string]any{
			"retryAfter": RetryAfterSeconds(retryAfter),
			"limit":      remaining,
			"reset":      reset.UTC().Format(time.RFC3339),
		},
	}
}

// NewPredictionFailedError は食品認識失敗エラーを生成する。
func NewPredictionFailedError(cause error) *APIError {
	return &APIError{
		Kind:    KindUpstream,
		Code:    ErrCodePredictionFailed,
		Message: "We couldn't recognise this food. Please try another photo or enter the details manually",
		Err:     cause,
	}
}

// NewNutritionFailedError は栄養計算失敗エラーを生成する。
func NewNutritionFailedError(cause error) *APIError {
	return &APIError{
		Kind:    KindUpstream,
		Code:    ErrCodeNutritionFailed,
		Message: "We couldn't calculate nutrition for this meal. Please check the ingredients and try again",
		Err:     cause,
	}
}

// NewPayloadTooLargeError はリクエストサイズ超過エラーを生成する。
func NewPayloadTooLargeError() *APIError {
	return &APIError{
		Kind:    KindTooLarge,
		Code:    ErrCodePayloadTooLarge,
		Message: "Request body is too large",
	}
}

// NewInternalError は内部エラーを生成する。原因はログにのみ出力する。
func NewInternalError(cause error) *APIError {
	return &APIError{
		Kind:    KindInternal,
		Code:    ErrCodeInternal,
		Message: "Something went wrong",
		Err:     cause,
	}
}

// RetryAfterSeconds は待機時間をRetry-Afterヘッダー用の秒数に切り上げる。最小1秒。
func RetryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
