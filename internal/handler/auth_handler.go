package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/yhal/internal/auth"
	"github.com/hitoshi/yhal/internal/middleware"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.AuthResult, error)
	Login(ctx context.Context, email, password string) (*auth.AuthResult, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	VerifyEmail(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string) error
}

// パスワードリセットとメール確認の再送は、アカウントの有無にかかわらず同じ応答を返す。
const (
	msgResetRequested     = "If an account exists with that email, a reset link has been sent"
	msgVerificationResent = "If the account exists and is not yet verified, a new verification link has been sent"
)

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

// Register はユーザー登録を処理する。
// POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterInput
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	result, err := h.service.Register(r.Context(), req)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "Registration successful", result)
}

// Login はメールアドレスとパスワードでログインする。
// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Login successful", result)
}

// Logout はログアウトを受け付ける。トークンはステートレスなのでクライアント側で破棄する。
// GET /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, "Logged out", emptyData)
}

// ForgotPassword はパスワードリセットメールの送信を受け付ける。
// POST /api/v1/auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, msgResetRequested, emptyData)
}

// ResetPassword はリセットトークンを検証して新しいパスワードを設定する。
// PATCH /api/v1/auth/reset-password/{token}
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	if err := h.service.ResetPassword(r.Context(), chi.URLParam(r, "token"), req.NewPassword); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Password updated successfully", emptyData)
}

// VerifyEmail はメール確認リンクのトークンを検証する。
// GET /api/v1/auth/verify-email/{token}
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	if err := h.service.VerifyEmail(r.Context(), chi.URLParam(r, "token")); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Email verified successfully", emptyData)
}

// ResendVerification は確認メールを再送する。
// POST /api/v1/auth/resend-verification
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	if err := h.service.ResendVerification(r.Context(), req.Email); err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, msgVerificationResent, emptyData)
}
