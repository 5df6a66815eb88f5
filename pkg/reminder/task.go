// Package reminder schedules daily reminder notifications as asynq tasks and
// delivers them through the notification dispatcher when they fire.
package reminder

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/habitkit/devicegate/pkg/config"
	"github.com/habitkit/devicegate/pkg/notification"
	"github.com/hibiken/asynq"
)

const TypeFanout = "reminder:fanout"

type FanoutPayload struct {
	AccountID uuid.UUID            `json:"accountId"`
	Payload   notification.Payload `json:"payload"`
}

// NewFanoutTask builds a task that fires at fireAt.
func NewFanoutTask(p FanoutPayload, fireAt time.Time, opts ...asynq.Option) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode reminder payload: %w", err)
	}
	task := asynq.NewTask(TypeFanout, b)
	return task, append([]asynq.Option{asynq.ProcessAt(fireAt)}, opts...), nil
}

func RedisClientOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}
