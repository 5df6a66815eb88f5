package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/habitkit/devicegate/pkg/client"
	"github.com/habitkit/devicegate/pkg/notification"
	"github.com/habitkit/devicegate/pkg/reminder"
	"github.com/hibiken/asynq"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFanout struct {
	mu    sync.Mutex
	calls int
}

func (f *countingFanout) Fanout(ctx context.Context, accountID uuid.UUID, payload notification.Payload) (notification.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return notification.Result{Sent: 2}, nil
}

type queue struct {
	ids map[string]bool
}

func (q *queue) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	for _, opt := range opts {
		if opt.Type() != asynq.TaskIDOpt {
			continue
		}
		id := opt.Value().(string)
		if q.ids[id] {
			return nil, asynq.ErrTaskIDConflict
		}
		q.ids[id] = true
		return &asynq.TaskInfo{ID: id}, nil
	}
	return &asynq.TaskInfo{}, nil
}

type fixture struct {
	router    http.Handler
	fanout    *countingFanout
	accountID uuid.UUID
}

func setup(t *testing.T, withReminders bool) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	fanout := &countingFanout{}
	repo := notification.NewInMemoryAchievementRepository()
	var scheduler ReminderScheduler
	if withReminders {
		scheduler = reminder.NewScheduler(&queue{ids: map[string]bool{}}, clock)
	}
	h := NewNotificationHandler(notification.NewMilestoneNotifier(repo, fanout, clock), repo, scheduler)
	accountID := uuid.New()

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(client.WithAuthAccount(r.Context(), &client.AuthAccount{AccountID: accountID})))
		})
	})
	r.Mount("/notifications", Handler(h))
	return &fixture{router: r, fanout: fanout, accountID: accountID}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestNotifyMilestone_SendsOnce(t *testing.T) {
	f := setup(t, false)
	body := MilestoneRequest{Type: "streak", Value: 7, Payload: notification.Payload{Title: "7 days!"}}

	rec := f.do(t, http.MethodPost, "/notifications/milestones", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var first notification.NotifyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.True(t, first.Recorded)
	assert.Equal(t, 2, first.Fanout.Sent)

	rec = f.do(t, http.MethodPost, "/notifications/milestones", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var second notification.NotifyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.False(t, second.Recorded)
	assert.Equal(t, 1, f.fanout.calls)

	rec = f.do(t, http.MethodGet, "/notifications/achievements", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list AchievementsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Achievements, 1)
	assert.Equal(t, "streak", list.Achievements[0].MilestoneType)
}

func TestNotifyMilestone_RequiresType(t *testing.T) {
	f := setup(t, false)
	rec := f.do(t, http.MethodPost, "/notifications/milestones", MilestoneRequest{Value: 3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.fanout.calls)
}

func TestScheduleReminder(t *testing.T) {
	f := setup(t, true)
	body := ReminderRequest{Time: "20:30", Payload: notification.Payload{Title: "Check in"}}

	rec := f.do(t, http.MethodPost, "/notifications/reminders", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp ReminderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, time.Date(2024, 3, 1, 20, 30, 0, 0, time.UTC), resp.FireAt.UTC())
	assert.Equal(t, reminder.TaskID(f.accountID, resp.FireAt), resp.TaskID)
	assert.False(t, resp.Duplicate)

	rec = f.do(t, http.MethodPost, "/notifications/reminders", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Duplicate)
}

func TestScheduleReminder_Invalid(t *testing.T) {
	f := setup(t, true)

	rec := f.do(t, http.MethodPost, "/notifications/reminders", ReminderRequest{Time: "8pm"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/notifications/reminders", ReminderRequest{Time: "08:00", Timezone: "Mars/Olympus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScheduleReminder_Disabled(t *testing.T) {
	f := setup(t, false)
	rec := f.do(t, http.MethodPost, "/notifications/reminders", ReminderRequest{Time: "08:00"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
