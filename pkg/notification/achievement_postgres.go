package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type PostgresAchievementRepository struct {
	db DBTX
}

func NewPostgresAchievementRepository(db DBTX) *PostgresAchievementRepository {
	return &PostgresAchievementRepository{db: db}
}

const recordAchievement = `
INSERT INTO achievements (account_id, milestone_type, milestone_value, achieved_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT ON CONSTRAINT achievements_account_milestone_key DO NOTHING
RETURNING id`

func (r *PostgresAchievementRepository) Record(ctx context.Context, a Achievement) (bool, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, recordAchievement, a.AccountID, a.MilestoneType, a.MilestoneValue, a.AchievedAt).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to record achievement: %w", err)
	}
	return true, nil
}

const listAchievements = `
SELECT id, account_id, milestone_type, milestone_value, achieved_at
FROM achievements
WHERE account_id = $1
ORDER BY achieved_at`

func (r *PostgresAchievementRepository) List(ctx context.Context, accountID uuid.UUID) ([]Achievement, error) {
	rows, err := r.db.Query(ctx, listAchievements, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	defer rows.Close()

	var out []Achievement
	for rows.Next() {
		var a Achievement
		if err := rows.Scan(&a.ID, &a.AccountID, &a.MilestoneType, &a.MilestoneValue, &a.AchievedAt); err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
