package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/habitkit/devicegate/pkg/notification"
	"github.com/hibiken/asynq"
)

// Handler processes reminder:fanout tasks.
type Handler struct {
	fanout notification.Fanouter
}

func NewHandler(fanout notification.Fanouter) *Handler {
	return &Handler{fanout: fanout}
}

// Register mounts the handler on mux.
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.Handle(TypeFanout, h)
}

// ProcessTask fails only when devices could not be read, so asynq retries.
// Individual delivery failures are part of the fanout result.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p FanoutPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		slog.Error("Invalid reminder payload", "error", err)
		return fmt.Errorf("decode reminder payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.AccountID == uuid.Nil {
		return fmt.Errorf("reminder payload without account: %w", asynq.SkipRetry)
	}

	res, err := h.fanout.Fanout(ctx, p.AccountID, p.Payload)
	if err != nil {
		slog.Error("Reminder fanout failed", "account_id", p.AccountID, "error", err)
		return err
	}
	slog.Info("Reminder delivered", "account_id", p.AccountID, "sent", res.Sent, "failed", res.Failed)
	return nil
}
