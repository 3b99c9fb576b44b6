package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenIssuer = "yhal"

	// scopePasswordReset はパスワードリセット専用トークンのスコープ。
	// アクセストークンとして受け付けないために使う。
	scopePasswordReset = "password_reset"
)

// ErrInvalidToken はトークンの署名・期限・スコープのいずれかが不正であることを表す。
var ErrInvalidToken = errors.New("auth: invalid token")

// accessClaims はアクセストークンのペイロード。
type accessClaims struct {
	UserID int64  `json:"userId"`
	Scope  string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// resetClaims はパスワードリセットトークンのペイロード。
type resetClaims struct {
	Email string `json:"email"`
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// TokenService はHS256署名のJWTを発行・検証する。
type TokenService struct {
	secret    []byte
	accessTTL time.Duration
	resetTTL  time.Duration
	now       func() time.Time
}

// NewTokenService はTokenServiceを生成する。秘密鍵は16文字以上必要。
func NewTokenService(secret string, accessTTL, resetTTL time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		resetTTL:  resetTTL,
		now:       time.Now,
	}, nil
}

// AccessTTL はアクセストークンの有効期間を返す。
func (s *TokenService) AccessTTL() time.Duration {
	return s.accessTTL
}

// IssueAccessToken はユーザーIDを含むアクセストークンを発行する。
// 利用者を表すクレームはuserIdのみ。iss・iat・expは検証用のメタデータ。
func (s *TokenService) IssueAccessToken(userID int64) (string, error) {
	now := s.now()
	c := accessClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	return s.sign(c)
}

// ParseAccessToken はアクセストークンを検証しユーザーIDを返す。
// スコープ付きのトークン（リセット用など）は拒否する。
func (s *TokenService) ParseAccessToken(token string) (int64, error) {
	var c accessClaims
	if err := s.parse(token, &c); err != nil {
		return 0, err
	}
	if c.Scope != "" || c.UserID <= 0 {
		return 0, ErrInvalidToken
	}
	return c.UserID, nil
}

// IssueResetToken はメールアドレスを含むパスワードリセットトークンを発行する。
// jtiにより同一秒内の再発行でも別トークンになる。
func (s *TokenService) IssueResetToken(email string) (string, error) {
	now := s.now()
	c := resetClaims{
		Email: email,
		Scope: scopePasswordReset,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.resetTTL)),
		},
	}
	return s.sign(c)
}

// ParseResetToken はリセットトークンを検証しメールアドレスを返す。
func (s *TokenService) ParseResetToken(token string) (string, error) {
	var c resetClaims
	if err := s.parse(token, &c); err != nil {
		return "", err
	}
	if c.Scope != scopePasswordReset || c.Email == "" {
		return "", ErrInvalidToken
	}
	return c.Email, nil
}

func (s *TokenService) sign(c jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

func (s *TokenService) parse(token string, c jwt.Claims) error {
	_, err := jwt.ParseWithClaims(token, c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}
