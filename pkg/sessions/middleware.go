package sessions

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/habitkit/devicegate/pkg/client"
	"github.com/habitkit/devicegate/pkg/device"
	dgerrors "github.com/habitkit/devicegate/pkg/errors"
)

const DeviceIDHeader = "X-Device-ID"

type contextKey struct {
	name string
}

var deviceKey = &contextKey{"Device"}

// ExpiredResponse tells the client to drop its local session.
type ExpiredResponse struct {
	Status       string `json:"status"`
	Code         string `json:"code"`
	Message      string `json:"message"`
	ShouldLogout bool   `json:"shouldLogout"`
	Redirect     string `json:"redirect"`
}

// Middleware gates requests that carry an X-Device-ID header. An expired
// session is logged out and answered with 401. Requests without the header
// pass through unchanged. It must run after client.AuthAccountMiddleware.
func (e *Engine) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID := r.Header.Get(DeviceIDHeader)
		if deviceID == "" {
			next.ServeHTTP(w, r)
			return
		}

		account, ok := client.GetAuthAccount(r)
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"status": "error", "code": string(dgerrors.ErrCodeUnauthorized), "message": "authentication required"})
			return
		}

		d, err := e.Gate(r.Context(), account.AccountID, deviceID)
		if errors.Is(err, ErrSessionExpired) {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, ExpiredResponse{
				Status:       "error",
				Code:         string(dgerrors.ErrCodeSessionExpired),
				Message:      "session expired",
				ShouldLogout: true,
				Redirect:     e.redirect,
			})
			return
		}
		if err != nil {
			slog.Error("Session gate failed", "err", err, "device_id", deviceID)
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"status": "error", "code": string(dgerrors.ErrCodeInternal), "message": "failed to check session"})
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), deviceKey, d)))
	})
}

// DeviceFromContext returns the device admitted by Middleware.
func DeviceFromContext(ctx context.Context) (device.Device, bool) {
	d, ok := ctx.Value(deviceKey).(device.Device)
	return d, ok
}
