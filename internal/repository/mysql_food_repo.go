package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/yhal/internal/model"
)

const foodColumns = `id, user_id, name, regional_origin, ingredients, calories, image_path,
	frequency_count, last_accessed, created_at`

// MySQLFoodRepo はMySQLを使用した食品リポジトリ。
type MySQLFoodRepo struct {
	db *sql.DB
}

// NewMySQLFoodRepo はMySQLFoodRepoを生成する。
func NewMySQLFoodRepo(db *sql.DB) *MySQLFoodRepo {
	return &MySQLFoodRepo{db: db}
}

// UpsertScan は食品を登録または再スキャンとして更新する。
// LAST_INSERT_ID(id)により更新時も既存行のIDを取得できる。
func (r *MySQLFoodRepo) UpsertScan(ctx context.Context, food *model.Food) (*model.Food, error) {
	ingredients, err := json.Marshal(food.Ingredients)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ingredients: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO foods (user_id, name, regional_origin, ingredients, calories, image_path, frequency_count, last_accessed)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?)
		 ON DUPLICATE KEY UPDATE
		   id = LAST_INSERT_ID(id),
		   regional_origin = VALUES(regional_origin),
		   ingredients = VALUES(ingredients),
		   calories = COALESCE(VALUES(calories), calories),
		   image_path = COALESCE(VALUES(image_path), image_path),
		   frequency_count = frequency_count + 1,
		   last_accessed = VALUES(last_accessed)`,
		food.UserID, food.Name, food.RegionalOrigin, ingredients,
		nullFloat(food.Calories), nullString(food.ImagePath), food.LastAccessed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert food: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get food id: %w", err)
	}

	saved, err := r.FindByIDForUser(ctx, food.UserID, id)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		return nil, fmt.Errorf("upserted food %d not found", id)
	}
	return saved, nil
}

// FindByIDForUser は指定ユーザーの食品を取得する。見つからない場合はnilを返す。
func (r *MySQLFoodRepo) FindByIDForUser(ctx context.Context, userID, id int64) (*model.Food, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+foodColumns+` FROM foods WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find food: %w", err)
	}
	defer rows.Close()

	foods, err := scanFoods(rows)
	if err != nil {
		return nil, err
	}
	if len(foods) == 0 {
		return nil, nil
	}
	return foods[0], nil
}

// ListByUser はユーザーの食品を最終アクセス日時の降順で取得する。
func (r *MySQLFoodRepo) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*model.Food, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+foodColumns+` FROM foods WHERE user_id = ?
		 ORDER BY last_accessed DESC, id DESC LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list foods: %w", err)
	}
	defer rows.Close()

	return scanFoods(rows)
}

// CountByUser はユーザーの食品数を返す。
func (r *MySQLFoodRepo) CountByUser(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM foods WHERE user_id = ?`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count foods: %w", err)
	}
	return count, nil
}

// ListFrequent はスキャン回数の多い順に食品を取得する。
func (r *MySQLFoodRepo) ListFrequent(ctx context.Context, userID int64, limit int) ([]*model.Food, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+foodColumns+` FROM foods WHERE user_id = ?
		 ORDER BY frequency_count DESC, last_accessed DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list frequent foods: %w", err)
	}
	defer rows.Close()

	return scanFoods(rows)
}

// scanFoods は結果セットを食品のスライスに読み込む。
func scanFoods(rows *sql.Rows) ([]*model.Food, error) {
	var foods []*model.Food
	for rows.Next() {
		var (
			f           model.Food
			ingredients []byte
			calories    sql.NullFloat64
			imagePath   sql.NullString
		)
		if err := rows.Scan(
			&f.ID, &f.UserID, &f.Name, &f.RegionalOrigin, &ingredients, &calories, &imagePath,
			&f.FrequencyCount, &f.LastAccessed, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan food: %w", err)
		}

		if len(ingredients) > 0 {
			if err := json.Unmarshal(ingredients, &f.Ingredients); err != nil {
				return nil, fmt.Errorf("failed to decode ingredients of food %d: %w", f.ID, err)
			}
		}
		if calories.Valid {
			v := calories.Float64
			f.Calories = &v
		}
		f.ImagePath = imagePath.String

		foods = append(foods, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate foods: %w", err)
	}
	return foods, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
