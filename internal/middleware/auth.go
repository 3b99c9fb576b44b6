// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/hitoshi/yhal/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// TokenValidator はアクセストークンを検証してユーザーIDを返す。
// auth.Serviceの部分集合として定義する。
type TokenValidator interface {
	ValidateAccessToken(token string) (int64, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// 認証済みユーザーIDをリクエストコンテキストに注入するミドルウェアを返す。
// トークンがない、または無効な場合は401を返す。
func NewAuthMiddleware(validator TokenValidator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				WriteError(w, r, model.NewUnauthorizedError("Access denied. No token provided"))
				return
			}

			userID, err := validator.ValidateAccessToken(token)
			if err != nil {
				WriteError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
		})
	}
}

// NewOptionalAuthMiddleware は未認証のリクエストも通すミドルウェアを返す。
// トークンが送られた場合は検証し、無効なら401を返す。
func NewOptionalAuthMiddleware(validator TokenValidator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := validator.ValidateAccessToken(token)
			if err != nil {
				WriteError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// UserIDFromContext はリクエストコンテキストから認証済みユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDContextKey).(int64)
	if !ok || userID <= 0 {
		return 0, false
	}
	return userID, true
}

// ContextWithUserID はユーザーIDを格納したコンテキストを返す。
// アクセスログ用のリクエスト状態がある場合はそちらにも記録する。
func ContextWithUserID(ctx context.Context, userID int64) context.Context {
	if state := requestStateFrom(ctx); state != nil {
		state.userID = userID
	}
	return context.WithValue(ctx, userIDContextKey, userID)
}
