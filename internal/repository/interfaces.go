// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/yhal/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成し、採番されたIDをuser.IDに設定する。
	// メールアドレスが重複している場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// SetResetToken はパスワードリセットトークンと有効期限を保存する。
	SetResetToken(ctx context.Context, userID int64, token string, expiry time.Time) error

	// FindByResetToken は有効期限内のリセットトークンを持つユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByResetToken(ctx context.Context, token string, now time.Time) (*model.User, error)

	// ResetPassword はリセットトークンが保存値と一致し有効期限内の場合に限り、
	// パスワードを更新してトークンを消去する。更新できた場合はtrueを返す。
	ResetPassword(ctx context.Context, userID int64, token, passwordHash string, now time.Time) (bool, error)

	// SetVerificationToken はメール確認トークンと有効期限を保存する。
	SetVerificationToken(ctx context.Context, userID int64, token string, expiry time.Time) error

	// VerifyEmail は有効期限内の確認トークンを持つユーザーを確認済みにする。
	// 該当ユーザーがいない場合はfalseを返す。
	VerifyEmail(ctx context.Context, token string, now time.Time) (bool, error)

	// ClearExpiredTokens は期限切れのリセット・確認トークンを消去し、更新件数を返す。
	ClearExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// FoodRepository は食品データの永続化インターフェース。
// すべての参照はユーザーIDで絞り込む。
type FoodRepository interface {
	// UpsertScan は(user_id, name)で食品を登録する。既存の場合は
	// frequency_countを1増やしlast_accessedを更新する。保存後の行を返す。
	UpsertScan(ctx context.Context, food *model.Food) (*model.Food, error)

	// FindByIDForUser は指定ユーザーの食品を取得する。見つからない場合はnilを返す。
	FindByIDForUser(ctx context.Context, userID, id int64) (*model.Food, error)

	// ListByUser はユーザーの食品を最終アクセス日時の降順で取得する。
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*model.Food, error)

	// CountByUser はユーザーの食品数を返す。
	CountByUser(ctx context.Context, userID int64) (int, error)

	// ListFrequent はスキャン回数の多い順に食品を取得する。
	ListFrequent(ctx context.Context, userID int64, limit int) ([]*model.Food, error)
}

// MealLogRepository は食事記録の永続化インターフェース。
type MealLogRepository interface {
	// Create は食事記録を作成し、採番されたIDをentry.IDに設定する。
	Create(ctx context.Context, entry *model.MealLogEntry) error

	// ListHistory は食品情報を結合した食事履歴を摂取日時の降順で取得する。
	ListHistory(ctx context.Context, userID int64, limit, offset int) ([]*model.MealHistoryEntry, error)

	// CountByUser はユーザーの食事記録数を返す。
	CountByUser(ctx context.Context, userID int64) (int, error)

	// DeleteForUser は指定ユーザーの食事記録を削除する。削除した場合はtrueを返す。
	DeleteForUser(ctx context.Context, userID, id int64) (bool, error)
}
