package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type Milestone struct {
	Type  string `json:"type"`
	Value int    `json:"value"`
}

// Fanouter is satisfied by *Dispatcher.
type Fanouter interface {
	Fanout(ctx context.Context, accountID uuid.UUID, payload Payload) (Result, error)
}

type NotifyResult struct {
	// Recorded is false when the milestone was already achieved; nothing was sent.
	Recorded bool   `json:"recorded"`
	Fanout   Result `json:"fanout"`
}

// MilestoneNotifier sends each milestone notice at most once per account.
type MilestoneNotifier struct {
	repo   AchievementRepository
	fanout Fanouter
	clock  clockwork.Clock
}

func NewMilestoneNotifier(repo AchievementRepository, fanout Fanouter, clock clockwork.Clock) *MilestoneNotifier {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MilestoneNotifier{repo: repo, fanout: fanout, clock: clock}
}

func (n *MilestoneNotifier) Notify(ctx context.Context, accountID uuid.UUID, m Milestone, payload Payload) (NotifyResult, error) {
	created, err := n.repo.Record(ctx, Achievement{
		AccountID:      accountID,
		MilestoneType:  m.Type,
		MilestoneValue: m.Value,
		AchievedAt:     n.clock.Now().UTC(),
	})
	if err != nil {
		return NotifyResult{}, fmt.Errorf("milestone %s/%d: %w", m.Type, m.Value, err)
	}
	if !created {
		slog.Debug("Milestone already achieved", "account_id", accountID, "type", m.Type, "value", m.Value)
		return NotifyResult{}, nil
	}

	res, err := n.fanout.Fanout(ctx, accountID, payload)
	if err != nil {
		return NotifyResult{Recorded: true}, err
	}
	return NotifyResult{Recorded: true, Fanout: res}, nil
}
