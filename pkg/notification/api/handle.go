package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/habitkit/devicegate/pkg/client"
	dgerrors "github.com/habitkit/devicegate/pkg/errors"
	"github.com/habitkit/devicegate/pkg/notification"
	"github.com/habitkit/devicegate/pkg/reminder"
)

type MilestoneNotifier interface {
	Notify(ctx context.Context, accountID uuid.UUID, m notification.Milestone, payload notification.Payload) (notification.NotifyResult, error)
}

type ReminderScheduler interface {
	ScheduleDaily(ctx context.Context, accountID uuid.UUID, hhmm string, loc *time.Location, payload notification.Payload) (reminder.Scheduled, error)
}

type MilestoneRequest struct {
	Type    string               `json:"type"`
	Value   int                  `json:"value"`
	Payload notification.Payload `json:"payload"`
}

type ReminderRequest struct {
	Time     string               `json:"time"`
	Timezone string               `json:"timezone,omitempty"`
	Payload  notification.Payload `json:"payload"`
}

type ReminderResponse struct {
	TaskID    string    `json:"taskId"`
	FireAt    time.Time `json:"fireAt"`
	Duplicate bool      `json:"duplicate"`
}

type AchievementsResponse struct {
	Achievements []notification.Achievement `json:"achievements"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type NotificationHandler struct {
	milestones   MilestoneNotifier
	achievements notification.AchievementRepository
	reminders    ReminderScheduler
}

// NewNotificationHandler serves milestone and reminder endpoints. A nil
// reminders scheduler disables POST /reminders.
func NewNotificationHandler(milestones MilestoneNotifier, achievements notification.AchievementRepository, reminders ReminderScheduler) *NotificationHandler {
	return &NotificationHandler{
		milestones:   milestones,
		achievements: achievements,
		reminders:    reminders,
	}
}

func Handler(h *NotificationHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/milestones", h.NotifyMilestone)
	r.Get("/achievements", h.ListAchievements)
	r.Post("/reminders", h.ScheduleReminder)
	return r
}

func (h *NotificationHandler) NotifyMilestone(w http.ResponseWriter, r *http.Request) {
	account, ok := requireAccount(w, r)
	if !ok {
		return
	}
	var req MilestoneRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderErrorResponse(w, r, dgerrors.InvalidInput("body", "invalid JSON"))
		return
	}
	if req.Type == "" {
		renderErrorResponse(w, r, dgerrors.InvalidInput("type", "is required"))
		return
	}

	result, err := h.milestones.Notify(r.Context(), account.AccountID,
		notification.Milestone{Type: req.Type, Value: req.Value}, req.Payload)
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

func (h *NotificationHandler) ListAchievements(w http.ResponseWriter, r *http.Request) {
	account, ok := requireAccount(w, r)
	if !ok {
		return
	}
	achievements, err := h.achievements.List(r.Context(), account.AccountID)
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}
	if achievements == nil {
		achievements = []notification.Achievement{}
	}
	render.JSON(w, r, AchievementsResponse{Achievements: achievements})
}

func (h *NotificationHandler) ScheduleReminder(w http.ResponseWriter, r *http.Request) {
	account, ok := requireAccount(w, r)
	if !ok {
		return
	}
	if h.reminders == nil {
		renderErrorResponse(w, r, dgerrors.New(dgerrors.ErrCodeUnavailable, "reminders are not enabled"))
		return
	}
	var req ReminderRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderErrorResponse(w, r, dgerrors.InvalidInput("body", "invalid JSON"))
		return
	}
	loc := time.UTC
	if req.Timezone != "" {
		l, err := time.LoadLocation(req.Timezone)
		if err != nil {
			renderErrorResponse(w, r, dgerrors.InvalidInput("timezone", "unknown time zone"))
			return
		}
		loc = l
	}

	scheduled, err := h.reminders.ScheduleDaily(r.Context(), account.AccountID, req.Time, loc, req.Payload)
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}
	if !scheduled.Duplicate {
		render.Status(r, http.StatusCreated)
	}
	render.JSON(w, r, ReminderResponse{
		TaskID:    scheduled.TaskID,
		FireAt:    scheduled.FireAt,
		Duplicate: scheduled.Duplicate,
	})
}

func requireAccount(w http.ResponseWriter, r *http.Request) (*client.AuthAccount, bool) {
	account, ok := client.GetAuthAccount(r)
	if !ok {
		renderErrorResponse(w, r, dgerrors.Unauthorized("authentication required"))
		return nil, false
	}
	return account, true
}

func renderErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var e *dgerrors.Error
	if !errors.As(err, &e) {
		slog.Error("Unhandled notification API error", "path", r.URL.Path, "error", err)
		e = dgerrors.New(dgerrors.ErrCodeInternal, "internal error")
	}
	render.Status(r, e.HTTPStatusCode())
	render.JSON(w, r, ErrorResponse{
		Status:  "error",
		Code:    string(e.Code),
		Message: e.Message,
	})
}
