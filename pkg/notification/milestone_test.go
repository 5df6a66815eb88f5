package notification

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFanout struct {
	mu    sync.Mutex
	calls int
}

func (c *countingFanout) Fanout(ctx context.Context, accountID uuid.UUID, payload Payload) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return Result{Sent: 1}, nil
}

func TestMilestoneNotifier_ConcurrentDetectionsSendOnce(t *testing.T) {
	repo := NewInMemoryAchievementRepository()
	fanout := &countingFanout{}
	notifier := NewMilestoneNotifier(repo, fanout, nil)
	accountID := uuid.New()
	milestone := Milestone{Type: "streak", Value: 7}

	var wg sync.WaitGroup
	var mu sync.Mutex
	recorded := 0
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := notifier.Notify(context.Background(), accountID, milestone, Payload{Title: "7 day streak!"})
			assert.NoError(t, err)
			if res.Recorded {
				mu.Lock()
				recorded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, recorded)
	assert.Equal(t, 1, fanout.calls)
	achievements, err := repo.List(context.Background(), accountID)
	require.NoError(t, err)
	require.Len(t, achievements, 1)
	assert.Equal(t, "streak", achievements[0].MilestoneType)
	assert.Equal(t, 7, achievements[0].MilestoneValue)
}

func TestMilestoneNotifier_DistinctMilestones(t *testing.T) {
	repo := NewInMemoryAchievementRepository()
	fanout := &countingFanout{}
	notifier := NewMilestoneNotifier(repo, fanout, nil)
	accountID := uuid.New()
	ctx := context.Background()

	for _, m := range []Milestone{{"streak", 7}, {"streak", 30}, {"streak", 7}} {
		_, err := notifier.Notify(ctx, accountID, m, Payload{})
		require.NoError(t, err)
	}
	// Another account may reach the same milestone.
	res, err := notifier.Notify(ctx, uuid.New(), Milestone{"streak", 7}, Payload{})
	require.NoError(t, err)
	assert.True(t, res.Recorded)
	assert.Equal(t, 1, res.Fanout.Sent)

	assert.Equal(t, 3, fanout.calls)
}
