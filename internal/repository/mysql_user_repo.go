package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/yhal/internal/model"
)

const userColumns = `id, first_name, last_name, email, password, is_verified,
	reset_token, reset_token_expiry, verification_token, verification_token_expiry,
	created_at, updated_at`

// MySQLUserRepo はMySQLを使用したユーザーリポジトリ。
type MySQLUserRepo struct {
	db *sql.DB
}

// NewMySQLUserRepo はMySQLUserRepoを生成する。
func NewMySQLUserRepo(db *sql.DB) *MySQLUserRepo {
	return &MySQLUserRepo{db: db}
}

// Create はユーザーを作成する。
func (r *MySQLUserRepo) Create(ctx context.Context, user *model.User) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (first_name, last_name, email, password, is_verified, verification_token, verification_token_expiry)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.FirstName, user.LastName, user.Email, user.PasswordHash, user.IsVerified,
		nullString(user.VerificationToken), nullTime(user.VerificationTokenExpiry),
	)
	if err != nil {
		if isDuplicateEntry(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get inserted user id: %w", err)
	}
	user.ID = id

	return nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *MySQLUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *MySQLUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// SetResetToken はパスワードリセットトークンを保存する。
func (r *MySQLUserRepo) SetResetToken(ctx context.Context, userID int64, token string, expiry time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET reset_token = ?, reset_token_expiry = ? WHERE id = ?`,
		token, expiry, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to set reset token: %w", err)
	}
	return nil
}

// FindByResetToken は有効期限内のリセットトークンを持つユーザーを検索する。
func (r *MySQLUserRepo) FindByResetToken(ctx context.Context, token string, now time.Time) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE reset_token = ? AND reset_token_expiry > ?`,
		token, now,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by reset token: %w", err)
	}
	return user, nil
}

// ResetPassword はトークンが保存値と一致する場合のみパスワードを更新する。
// 同一トークンによる並行リクエストのうち成功するのは1件のみ。
func (r *MySQLUserRepo) ResetPassword(ctx context.Context, userID int64, token, passwordHash string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password = ?, reset_token = NULL, reset_token_expiry = NULL
		 WHERE id = ? AND reset_token = ? AND reset_token_expiry > ?`,
		passwordHash, userID, token, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to reset password: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

// SetVerificationToken はメール確認トークンを保存する。
func (r *MySQLUserRepo) SetVerificationToken(ctx context.Context, userID int64, token string, expiry time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET verification_token = ?, verification_token_expiry = ? WHERE id = ?`,
		token, expiry, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to set verification token: %w", err)
	}
	return nil
}

// VerifyEmail は有効期限内の確認トークンを持つユーザーを確認済みにする。
func (r *MySQLUserRepo) VerifyEmail(ctx context.Context, token string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_verified = TRUE, verification_token = NULL, verification_token_expiry = NULL
		 WHERE verification_token = ? AND verification_token_expiry > ?`,
		token, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to verify email: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearExpiredTokens は期限切れのトークンを消去する。
func (r *MySQLUserRepo) ClearExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	var total int64

	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET reset_token = NULL, reset_token_expiry = NULL
		 WHERE reset_token_expiry IS NOT NULL AND reset_token_expiry <= ?`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired reset tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	total += n

	res, err = r.db.ExecContext(ctx,
		`UPDATE users SET verification_token = NULL, verification_token_expiry = NULL
		 WHERE verification_token_expiry IS NOT NULL AND verification_token_expiry <= ?`,
		now,
	)
	if err != nil {
		return total, fmt.Errorf("failed to clear expired verification tokens: %w", err)
	}
	n, err = res.RowsAffected()
	if err != nil {
		return total, fmt.Errorf("failed to get rows affected: %w", err)
	}
	total += n

	return total, nil
}

// scanUser は1行をUserに読み込む。行がなければnilを返す。
func scanUser(row *sql.Row) (*model.User, error) {
	var (
		u            model.User
		resetToken   sql.NullString
		resetExpiry  sql.NullTime
		verifyToken  sql.NullString
		verifyExpiry sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.IsVerified,
		&resetToken, &resetExpiry, &verifyToken, &verifyExpiry,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	u.ResetToken = resetToken.String
	if resetExpiry.Valid {
		t := resetExpiry.Time
		u.ResetTokenExpiry = &t
	}
	u.VerificationToken = verifyToken.String
	if verifyExpiry.Valid {
		t := verifyExpiry.Time
		u.VerificationTokenExpiry = &t
	}

	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
