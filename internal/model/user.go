package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHashはbcryptハッシュ。平文パスワードは保持しない。
type User struct {
	ID           int64
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	IsVerified   bool

	// パスワードリセット用トークン（サーバー側保存分）
	ResetToken       string
	ResetTokenExpiry *time.Time

	// メールアドレス確認用トークン
	VerificationToken       string
	VerificationTokenExpiry *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullName は表示用の氏名を返す。
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
