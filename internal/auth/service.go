// Package auth はパスワード認証、JWTの発行と検証、パスワードリセットと
// メールアドレス確認のフローを提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/yhal/internal/model"
	"github.com/hitoshi/yhal/internal/repository"
	"github.com/hitoshi/yhal/internal/validation"
)

// Mailer は認証フローで送信するメールのインターフェース。
type Mailer interface {
	// SendPasswordReset はパスワードリセットリンクを送信する。
	SendPasswordReset(ctx context.Context, to, name, resetURL string) error
	// SendVerification はメールアドレス確認リンクを送信する。
	SendVerification(ctx context.Context, to, name, verifyURL string) error
	// AllowPasswordReset はリセットメールを今送信できるかを返す。
	AllowPasswordReset(to string) bool
	// AllowVerification は確認メールを今送信できるかを返す。
	AllowVerification(to string) bool
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	FrontendURL          string        // リセット・確認リンクの生成元
	ResetTokenTTL        time.Duration // サーバー側に保存するリセットトークンの有効期間
	VerificationTokenTTL time.Duration // メール確認トークンの有効期間
}

// RegisterInput はユーザー登録の入力値。
type RegisterInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// AuthResult はログイン・登録成功時に返す情報。
type AuthResult struct {
	Token     string `json:"token"`
	UserID    int64  `json:"userId"`
	ExpiresIn int64  `json:"expiresIn,omitempty"` // 秒
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	users     repository.UserRepository
	passwords *PasswordService
	tokens    *TokenService
	mailer    Mailer
	config    ServiceConfig
	logger    *slog.Logger
	now       func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewService はServiceを生成する。
func NewService(
	users repository.UserRepository,
	passwords *PasswordService,
	tokens *TokenService,
	mailer Mailer,
	config ServiceConfig,
	logger *slog.Logger,
) *Service {
	return &Service{
		users:     users,
		passwords: passwords,
		tokens:    tokens,
		mailer:    mailer,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// Register はユーザーを登録し、アクセストークンを発行する。
// メールアドレスが既に登録済みの場合はconflictエラーを返す。
// 確認メールの送信失敗は登録自体を失敗させない。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	first, last, err := validation.RegistrationNames(in.FirstName, in.LastName)
	if err != nil {
		return nil, err
	}
	email, err := validation.Email(in.Email)
	if err != nil {
		return nil, err
	}
	if err := validation.Password(in.Password); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, model.NewInternalError(err)
	}

	verifyToken, err := randomToken()
	if err != nil {
		return nil, model.NewInternalError(err)
	}
	expiry := s.now().Add(s.config.VerificationTokenTTL).UTC()

	user := &model.User{
		FirstName:               first,
		LastName:                last,
		Email:                   email,
		PasswordHash:            hash,
		VerificationToken:       verifyToken,
		VerificationTokenExpiry: &expiry,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateEmailError()
		}
		return nil, model.NewInternalError(fmt.Errorf("creating user: %w", err))
	}

	if err := s.mailer.SendVerification(ctx, user.Email, user.FullName(), s.link("verify-email", verifyToken)); err != nil {
		s.logger.Warn("failed to send verification email", "user_id", user.ID, "error", err)
	}

	token, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return nil, model.NewInternalError(err)
	}
	return &AuthResult{Token: token, UserID: user.ID}, nil
}

// Login はメールアドレスとパスワードを照合し、アクセストークンを発行する。
// ユーザー不在とパスワード不一致は区別せず同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, model.NewValidationError("", "Email and password are required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, model.NewInternalError(fmt.Errorf("finding user: %w", err))
	}
	if user == nil {
		// 応答時間でアカウントの有無を推測されないようダミーハッシュと照合する
		_ = s.passwords.Compare(s.dummy(), password)
		return nil, model.NewInvalidCredentialsError()
	}
	if err := s.passwords.Compare(user.PasswordHash, password); err != nil {
		if !errors.Is(err, ErrPasswordMismatch) {
			s.logger.Error("failed to compare password hash", "user_id", user.ID, "error", err)
		}
		return nil, model.NewInvalidCredentialsError()
	}

	token, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return nil, model.NewInternalError(err)
	}
	return &AuthResult{
		Token:     token,
		UserID:    user.ID,
		ExpiresIn: int64(s.tokens.AccessTTL() / time.Second),
	}, nil
}

// ForgotPassword はリセットトークンを発行・保存し、リセットリンクを送信する。
// アカウントの有無を漏らさないため、入力形式の誤り以外は常にnilを返す。
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email, err := validation.Email(email)
	if err != nil {
		return err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		s.logger.Error("failed to look up user for password reset", "error", err)
		return nil
	}
	if user == nil {
		return nil
	}
	// 送信できない間はトークンを差し替えない。送信済みのリンクを有効なまま残す。
	if !s.mailer.AllowPasswordReset(user.Email) {
		s.logger.Info("password reset email throttled", "user_id", user.ID)
		return nil
	}

	token, err := s.tokens.IssueResetToken(user.Email)
	if err != nil {
		s.logger.Error("failed to issue reset token", "user_id", user.ID, "error", err)
		return nil
	}
	expiry := s.now().Add(s.config.ResetTokenTTL).UTC()
	if err := s.users.SetResetToken(ctx, user.ID, token, expiry); err != nil {
		s.logger.Error("failed to store reset token", "user_id", user.ID, "error", err)
		return nil
	}

	if err := s.mailer.SendPasswordReset(ctx, user.Email, user.FullName(), s.link("reset-password", token)); err != nil {
		s.logger.Warn("failed to send password reset email", "user_id", user.ID, "error", err)
	}
	return nil
}

// ResetPassword はリセットトークンを検証し、パスワードを更新する。
// 署名が正しくても、サーバー側の保存値が一致しないか期限切れであれば拒否する。
// 更新と同時に保存値を消去するため、同じトークンは一度しか使えない。
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validation.Password(newPassword); err != nil {
		return err
	}

	email, err := s.tokens.ParseResetToken(token)
	if err != nil {
		return model.NewInvalidResetTokenError()
	}

	now := s.now().UTC()
	user, err := s.users.FindByResetToken(ctx, token, now)
	if err != nil {
		return model.NewInternalError(fmt.Errorf("finding reset token: %w", err))
	}
	if user == nil || user.Email != email {
		return model.NewInvalidResetTokenError()
	}

	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return model.NewInternalError(err)
	}

	ok, err := s.users.ResetPassword(ctx, user.ID, token, hash, now)
	if err != nil {
		return model.NewInternalError(fmt.Errorf("resetting password: %w", err))
	}
	if !ok {
		return model.NewInvalidResetTokenError()
	}
	return nil
}

// VerifyEmail はメール確認トークンを検証し、ユーザーを確認済みにする。
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return model.NewInvalidVerificationTokenError()
	}
	ok, err := s.users.VerifyEmail(ctx, token, s.now().UTC())
	if err != nil {
		return model.NewInternalError(fmt.Errorf("verifying email: %w", err))
	}
	if !ok {
		return model.NewInvalidVerificationTokenError()
	}
	return nil
}

// ResendVerification は未確認ユーザーに確認メールを再送する。
// ForgotPasswordと同様にアカウントの有無は応答に出さない。
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	email, err := validation.Email(email)
	if err != nil {
		return err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		s.logger.Error("failed to look up user for verification", "error", err)
		return nil
	}
	if user == nil || user.IsVerified {
		return nil
	}
	if !s.mailer.AllowVerification(user.Email) {
		s.logger.Info("verification email throttled", "user_id", user.ID)
		return nil
	}

	token, err := randomToken()
	if err != nil {
		s.logger.Error("failed to generate verification token", "error", err)
		return nil
	}
	expiry := s.now().Add(s.config.VerificationTokenTTL).UTC()
	if err := s.users.SetVerificationToken(ctx, user.ID, token, expiry); err != nil {
		s.logger.Error("failed to store verification token", "user_id", user.ID, "error", err)
		return nil
	}

	if err := s.mailer.SendVerification(ctx, user.Email, user.FullName(), s.link("verify-email", token)); err != nil {
		s.logger.Warn("failed to send verification email", "user_id", user.ID, "error", err)
	}
	return nil
}

// ValidateAccessToken はアクセストークンを検証しユーザーIDを返す。
func (s *Service) ValidateAccessToken(token string) (int64, error) {
	userID, err := s.tokens.ParseAccessToken(token)
	if err != nil {
		return 0, model.NewUnauthorizedError("Invalid or expired token")
	}
	return userID, nil
}

func (s *Service) link(path, token string) string {
	return strings.TrimRight(s.config.FrontendURL, "/") + "/" + path + "?token=" + url.QueryEscape(token)
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.passwords.Hash("yhal-dummy-password")
		if err != nil {
			s.logger.Error("failed to build dummy hash", "error", err)
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// randomToken は32バイトの乱数を16進文字列で返す。
func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
