package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost はパスワードハッシュのbcryptコスト。
const DefaultBcryptCost = 10

// MaxPasswordBytes はbcryptが扱えるパスワードの最大バイト数。
const MaxPasswordBytes = 72

// ErrPasswordMismatch はパスワードがハッシュと一致しないことを表す。
var ErrPasswordMismatch = errors.New("auth: password mismatch")

// PasswordService はbcryptによるハッシュ化と照合を提供する。
type PasswordService struct {
	cost int
}

// NewPasswordService はコスト10のPasswordServiceを生成する。
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: DefaultBcryptCost}
}

// NewPasswordServiceWithCost はコストを指定してPasswordServiceを生成する。
// テストではbcrypt.MinCostを渡して高速化する。
func NewPasswordServiceWithCost(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash は平文パスワードをハッシュ化する。
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", fmt.Errorf("auth: password must be %d bytes or fewer", MaxPasswordBytes)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Compare は平文パスワードとハッシュを定数時間で照合する。
// 一致しない場合はErrPasswordMismatchを返す。
func (p *PasswordService) Compare(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	if err != nil {
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
