package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	dgerrors "github.com/habitkit/devicegate/pkg/errors"
	"github.com/habitkit/devicegate/pkg/notification"
	"github.com/hibiken/asynq"
	"github.com/jonboulle/clockwork"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Scheduled struct {
	TaskID string
	FireAt time.Time
	// Duplicate is true when a reminder for the same account and day was already queued.
	Duplicate bool
}

type Scheduler struct {
	enqueuer Enqueuer
	clock    clockwork.Clock
}

func NewScheduler(enqueuer Enqueuer, clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{enqueuer: enqueuer, clock: clock}
}

// ScheduleDaily queues the next reminder for the account at hhmm ("15:04") in
// loc. Calling it again for the same day is a no-op.
func (s *Scheduler) ScheduleDaily(ctx context.Context, accountID uuid.UUID, hhmm string, loc *time.Location, payload notification.Payload) (Scheduled, error) {
	if accountID == uuid.Nil {
		return Scheduled{}, dgerrors.InvalidInput("accountId", "is required")
	}
	if loc == nil {
		loc = time.UTC
	}
	fireAt, err := NextFireTime(s.clock.Now(), hhmm, loc)
	if err != nil {
		return Scheduled{}, err
	}

	id := TaskID(accountID, fireAt)
	task, opts, err := NewFanoutTask(FanoutPayload{AccountID: accountID, Payload: payload}, fireAt, asynq.TaskID(id))
	if err != nil {
		return Scheduled{}, err
	}

	if _, err := s.enqueuer.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			slog.Debug("Reminder already scheduled", "task_id", id)
			return Scheduled{TaskID: id, FireAt: fireAt, Duplicate: true}, nil
		}
		return Scheduled{}, dgerrors.Transient(err, "schedule reminder")
	}

	slog.Info("Reminder scheduled", "account_id", accountID, "task_id", id, "fire_at", fireAt)
	return Scheduled{TaskID: id, FireAt: fireAt}, nil
}

// NextFireTime returns the first occurrence of hhmm in loc strictly after now.
func NextFireTime(now time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	clock, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, dgerrors.InvalidInput("time", "must be HH:MM")
	}
	local := now.In(loc)
	fire := time.Date(local.Year(), local.Month(), local.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
	if !fire.After(local) {
		fire = time.Date(local.Year(), local.Month(), local.Day()+1, clock.Hour(), clock.Minute(), 0, 0, loc)
	}
	return fire, nil
}

// TaskID is unique per account and local calendar day of the fire time.
func TaskID(accountID uuid.UUID, fireAt time.Time) string {
	return fmt.Sprintf("%s:%s:%s", TypeFanout, accountID, fireAt.Format("2006-01-02"))
}
