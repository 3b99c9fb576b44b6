package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/yhal/internal/model"
)

// MySQLMealLogRepo はMySQLを使用した食事記録リポジトリ。
type MySQLMealLogRepo struct {
	db *sql.DB
}

// NewMySQLMealLogRepo はMySQLMealLogRepoを生成する。
func NewMySQLMealLogRepo(db *sql.DB) *MySQLMealLogRepo {
	return &MySQLMealLogRepo{db: db}
}

// Create は食事記録を作成する。
func (r *MySQLMealLogRepo) Create(ctx context.Context, entry *model.MealLogEntry) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO meal_log (user_id, food_id, consumed_at, notes) VALUES (?, ?, ?, ?)`,
		entry.UserID, entry.FoodID, entry.ConsumedAt, nullString(entry.Notes),
	)
	if err != nil {
		return fmt.Errorf("failed to insert meal log: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get meal log id: %w", err)
	}
	entry.ID = id

	return nil
}

// ListHistory は食品情報を結合した食事履歴を摂取日時の降順で取得する。
func (r *MySQLMealLogRepo) ListHistory(ctx context.Context, userID int64, limit, offset int) ([]*model.MealHistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.id, m.user_id, m.food_id, m.consumed_at, m.notes, m.created_at,
		        f.name, f.regional_origin, f.calories
		 FROM meal_log m
		 JOIN foods f ON f.id = m.food_id AND f.user_id = m.user_id
		 WHERE m.user_id = ?
		 ORDER BY m.consumed_at DESC, m.id DESC
		 LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list meal history: %w", err)
	}
	defer rows.Close()

	var entries []*model.MealHistoryEntry
	for rows.Next() {
		var (
			e        model.MealHistoryEntry
			notes    sql.NullString
			calories sql.NullFloat64
		)
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.FoodID, &e.ConsumedAt, &notes, &e.CreatedAt,
			&e.FoodName, &e.RegionalOrigin, &calories,
		); err != nil {
			return nil, fmt.Errorf("failed to scan meal history: %w", err)
		}
		e.Notes = notes.String
		if calories.Valid {
			v := calories.Float64
			e.Calories = &v
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate meal history: %w", err)
	}

	return entries, nil
}

// CountByUser はユーザーの食事記録数を返す。
func (r *MySQLMealLogRepo) CountByUser(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM meal_log WHERE user_id = ?`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count meal logs: %w", err)
	}
	return count, nil
}

// DeleteForUser は指定ユーザーの食事記録を削除する。
func (r *MySQLMealLogRepo) DeleteForUser(ctx context.Context, userID, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM meal_log WHERE id = ? AND user_id = ?`, id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete meal log: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}
