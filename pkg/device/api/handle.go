package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/habitkit/devicegate/pkg/client"
	"github.com/habitkit/devicegate/pkg/device"
	dgerrors "github.com/habitkit/devicegate/pkg/errors"
	"github.com/habitkit/devicegate/pkg/identity"
	"github.com/habitkit/devicegate/pkg/replacement"
	"github.com/habitkit/devicegate/pkg/sessions"
	"github.com/jinzhu/copier"
)

const LogoutRedirect = "/login"

// CookieOptions controls the device_id hint cookie set on registration.
type CookieOptions struct {
	MaxAge time.Duration
	Secure bool
}

// DeviceHandler handles HTTP requests for device registration and eviction.
type DeviceHandler struct {
	deviceService *device.DeviceService
	coordinator   *replacement.Coordinator
	cookie        CookieOptions
}

func NewDeviceHandler(deviceService *device.DeviceService, coordinator *replacement.Coordinator, cookie CookieOptions) *DeviceHandler {
	if cookie.MaxAge <= 0 {
		cookie.MaxAge = identity.DefaultCookieTTL
	}
	return &DeviceHandler{
		deviceService: deviceService,
		coordinator:   coordinator,
		cookie:        cookie,
	}
}

// Handler returns a http.Handler for the device API. It must be mounted
// behind client.AuthAccountMiddleware.
//
// gates (normally sessions.Engine.Middleware) wrap the routes that require a
// live session. Register, replace, validate, remove and logout stay open so
// that a device whose session ended can sign in again or be cleaned up.
func Handler(h *DeviceHandler, gates ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Post("/register", h.Register)
	r.Delete("/register", h.Remove)
	r.Post("/replace", h.Replace)
	r.Post("/validate", h.Validate)
	r.Post("/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(gates...)
		r.Get("/", h.ListDevices)
		r.Post("/heartbeat", h.Heartbeat)
		r.Put("/subscription", h.UpdateSubscription)
	})

	return r
}

// ListDevices handles GET / - the account's active devices.
func (h *DeviceHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	account, ok := requireAccount(w, r)
	if !ok {
		return
	}
	active, err := h.deviceService.FindActiveDevices(r.Context(), account.AccountID)
	if err != nil {
		slog.Error("Failed to list devices", "account_id", account.AccountID, "error", err)
		renderErrorResponse(w, r, err)
		return
	}
	render.JSON(w, r, ListDevicesResponse{Devices: summarize(active), Limit: h.deviceService.Limit()})
}

// Register handles POST /register. Reaching the device limit answers 200
// with success=false and the devices the caller may evict.
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	account, ok := requireAccount(w, r)
	if !ok {
		return
	}
	var req RegisterRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderErrorResponse(w, r, dgerrors.InvalidInput("body", err.Error()))
		return
	}

	params, err := h.registerParams(r, account.AccountID, req)
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}

	result, err := h.deviceService.Register(r.Context(), params)
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}
	if result.Success {
		h.setDeviceCookie(w, result.DeviceID)
	}
	render.JSON(w, r, registerResponse(result))
}

// Replace handles POST /replace - evict then register, for clients that want
// the whole replacement flow in one round trip.
func (h *DeviceHandler) Replace(w http.ResponseWriter, r *http.Request) {
	account, ok := requireAccount(w, r)
	if !ok {
		return
	}
	var req ReplaceRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderErrorResponse(w, r, dgerrors.InvalidInput("body", err.Error()))
		return
	}
	params, err := h.registerParams(r, account.AccountID, req.Device)
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}

	result, err := h.coordinator.Replace(r.Context(), account.AccountID, req.DeviceIDToRemove, params)
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}
	if result.State == replacement.StateRegistered {
		h.setDeviceCookie(w, result.Register.DeviceID)
	}
	render.JSON(w, r, ReplaceResponse{State: string(result.State), RegisterResponse: registerResponse(result.Register)})
}

// Remove handles DELETE /register. The requesting device is named by the
// X-Device-ID header, or by the device cookie when the header is absent.
func (h *DeviceHandler) Remove(w http.ResponseWriter, r *http.Request) {
	account, ok := requireAccount(w, r)
	if !ok {
		return
	}
	var req RemoveRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderErrorResponse(w, r, dgerrors.InvalidInput("body", err.Error()))
		return
	}

	requesting := r.Header.Get(sessions.DeviceIDHeader)
	if requesting == "" {
		requesting = deviceIDFromCookie(r)
	}

	result, err := h.coordinator.Remove(r.Context(), account.AccountID, req.DeviceIDToRemove, requesting)
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}
	if result.ShouldLogout {
		h.clearDeviceCookie(w)
	}
	render.JSON(w, r, RemoveResponse{
		Success:      result.Success,
		ShouldLogout: result.ShouldLogout,
		Redirect:     result.Redirect,
	})
}

// Validate handles POST /validate. It never changes state.
func (h *DeviceHandler) Validate(w http.ResponseWriter, r *http.Request) {
	account, ok := requireAccount(w, r)
	if !ok {
		return
	}
	var req DeviceRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderErrorResponse(w, r, dgerrors.InvalidInput("body", err.Error()))
		return
	}

	result, err := h.deviceService.Validate(r.Context(), account.AccountID, req.DeviceID)
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}
	render.JSON(w, r, ValidateResponse{
		IsDeviceRegistered:   result.IsDeviceRegistered,
		CanAccess:            result.CanAccess,
		ActiveDevicesCount:   result.ActiveDevicesCount,
		DeviceLimit:          result.DeviceLimit,
		IsAtLimit:            result.IsAtLimit,
		NeedsDeviceSelection: result.NeedsDeviceSelection,
		ActiveDevices:        summarize(result.ActiveDevices),
	})
}

// Heartbeat handles POST /heartbeat. ok=false tells the client its device
// was evicted.
func (h *DeviceHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	account, ok := requireAccount(w, r)
	if !ok {
		return
	}
	var req DeviceRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil || req.DeviceID == "" {
		renderErrorResponse(w, r, dgerrors.InvalidInput("deviceId", "is required"))
		return
	}

	alive, err := h.deviceService.Heartbeat(r.Context(), account.AccountID, req.DeviceID)
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}
	render.JSON(w, r, HeartbeatResponse{OK: alive})
}

// Logout handles POST /logout. Logging out an unknown device succeeds.
func (h *DeviceHandler) Logout(w http.ResponseWriter, r *http.Request) {
	account, ok := requireAccount(w, r)
	if !ok {
		return
	}
	var req DeviceRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderErrorResponse(w, r, dgerrors.InvalidInput("body", err.Error()))
		return
	}

	if req.DeviceID != "" {
		if err := h.deviceService.Logout(r.Context(), account.AccountID, req.DeviceID); err != nil {
			renderErrorResponse(w, r, err)
			return
		}
	}
	h.clearDeviceCookie(w)
	render.JSON(w, r, LogoutResponse{Redirect: LogoutRedirect})
}

// UpdateSubscription handles PUT /subscription. A null subscription clears it.
func (h *DeviceHandler) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	account, ok := requireAccount(w, r)
	if !ok {
		return
	}
	var req SubscriptionRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil || req.DeviceID == "" {
		renderErrorResponse(w, r, dgerrors.InvalidInput("deviceId", "is required"))
		return
	}
	if req.PushSubscription != nil && req.PushSubscription.Endpoint == "" {
		renderErrorResponse(w, r, dgerrors.InvalidInput("pushSubscription.endpoint", "is required"))
		return
	}

	updated, err := h.deviceService.UpdatePushSubscription(r.Context(), account.AccountID, req.DeviceID, req.PushSubscription)
	if err != nil {
		renderErrorResponse(w, r, err)
		return
	}
	render.JSON(w, r, SuccessResponse{Success: updated})
}

func (h *DeviceHandler) registerParams(r *http.Request, accountID uuid.UUID, req RegisterRequest) (device.RegisterParams, error) {
	var params device.RegisterParams
	if err := copier.Copy(&params, &req); err != nil {
		return device.RegisterParams{}, dgerrors.InternalWrap(err, "failed to map registration")
	}
	params.AccountID = accountID
	if params.DeviceID == "" {
		params.DeviceID = deviceIDFromCookie(r)
	}
	params.FillMissing(device.ExtractMetadataFromRequest(r))
	return params, nil
}

func registerResponse(result device.RegisterResult) RegisterResponse {
	resp := RegisterResponse{
		Success:  result.Success,
		DeviceID: result.DeviceID,
		Message:  result.Message,
	}
	if !result.Success {
		resp.ActiveDevices = summarize(result.ActiveDevices)
	}
	return resp
}

func (h *DeviceHandler) setDeviceCookie(w http.ResponseWriter, deviceID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     identity.CookieName,
		Value:    deviceID,
		Path:     "/",
		MaxAge:   int(h.cookie.MaxAge.Seconds()),
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *DeviceHandler) clearDeviceCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     identity.CookieName,
		Path:     "/",
		MaxAge:   -1,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func deviceIDFromCookie(r *http.Request) string {
	c, err := r.Cookie(identity.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func requireAccount(w http.ResponseWriter, r *http.Request) (*client.AuthAccount, bool) {
	account, ok := client.GetAuthAccount(r)
	if !ok {
		renderErrorResponse(w, r, dgerrors.Unauthorized("authentication required"))
		return nil, false
	}
	return account, true
}

// renderErrorResponse renders err using its structured code. Errors without
// a code are reported as internal without leaking their text.
func renderErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var e *dgerrors.Error
	if !errors.As(err, &e) {
		slog.Error("Unhandled device API error", "path", r.URL.Path, "error", err)
		e = dgerrors.New(dgerrors.ErrCodeInternal, "internal error")
	}
	render.Status(r, e.HTTPStatusCode())
	render.JSON(w, r, ErrorResponse{
		Status:  "error",
		Code:    string(e.Code),
		Message: e.Message,
		Details: e.Details,
	})
}
