package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Achievement struct {
	ID             uuid.UUID `json:"id"`
	AccountID      uuid.UUID `json:"account_id"`
	MilestoneType  string    `json:"milestone_type"`
	MilestoneValue int       `json:"milestone_value"`
	AchievedAt     time.Time `json:"achieved_at"`
}

// AchievementRepository stores milestones once per (account, type, value).
type AchievementRepository interface {
	// Record inserts a; created is false when the milestone already exists.
	Record(ctx context.Context, a Achievement) (created bool, err error)
	List(ctx context.Context, accountID uuid.UUID) ([]Achievement, error)
}

type achievementKey struct {
	accountID uuid.UUID
	kind      string
	value     int
}

type InMemoryAchievementRepository struct {
	mu   sync.Mutex
	rows map[achievementKey]Achievement
}

func NewInMemoryAchievementRepository() *InMemoryAchievementRepository {
	return &InMemoryAchievementRepository{rows: make(map[achievementKey]Achievement)}
}

func (r *InMemoryAchievementRepository) Record(ctx context.Context, a Achievement) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := achievementKey{a.AccountID, a.MilestoneType, a.MilestoneValue}
	if _, ok := r.rows[key]; ok {
		return false, nil
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	r.rows[key] = a
	return true, nil
}

func (r *InMemoryAchievementRepository) List(ctx context.Context, accountID uuid.UUID) ([]Achievement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Achievement
	for k, a := range r.rows {
		if k.accountID == accountID {
			out = append(out, a)
		}
	}
	return out, nil
}
