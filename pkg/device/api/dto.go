package api

import (
	"time"

	"github.com/habitkit/devicegate/pkg/device"
)

// RegisterRequest is the body of POST /register. Metadata left empty is
// derived from the User-Agent.
type RegisterRequest struct {
	DeviceID         string                   `json:"deviceId"`
	PhysicalDeviceID string                   `json:"physicalDeviceId,omitempty"`
	DeviceName       string                   `json:"deviceName"`
	DeviceType       string                   `json:"deviceType"`
	Browser          string                   `json:"browser"`
	OS               string                   `json:"os"`
	PushSubscription *device.PushSubscription `json:"pushSubscription,omitempty"`
	RememberMe       bool                     `json:"rememberMe"`
	ForceRegister    bool                     `json:"forceRegister,omitempty"`
}

type RegisterResponse struct {
	Success       bool            `json:"success"`
	DeviceID      string          `json:"deviceId"`
	Message       string          `json:"message,omitempty"`
	ActiveDevices []DeviceSummary `json:"activeDevices,omitempty"`
}

type DeviceRequest struct {
	DeviceID string `json:"deviceId"`
}

// DeviceSummary is the public view of an active device offered for eviction.
type DeviceSummary struct {
	DeviceID   string    `json:"deviceId"`
	DeviceName string    `json:"deviceName"`
	DeviceType string    `json:"deviceType"`
	LastActive time.Time `json:"lastActive"`
	Browser    string    `json:"browser"`
}

type ValidateResponse struct {
	IsDeviceRegistered   bool            `json:"isDeviceRegistered"`
	CanAccess            bool            `json:"canAccess"`
	ActiveDevicesCount   int             `json:"activeDevicesCount"`
	DeviceLimit          int             `json:"deviceLimit"`
	IsAtLimit            bool            `json:"isAtLimit"`
	NeedsDeviceSelection bool            `json:"needsDeviceSelection"`
	ActiveDevices        []DeviceSummary `json:"activeDevices"`
}

type RemoveRequest struct {
	DeviceIDToRemove string `json:"deviceIdToRemove"`
}

type RemoveResponse struct {
	Success      bool   `json:"success"`
	ShouldLogout bool   `json:"shouldLogout,omitempty"`
	Redirect     string `json:"redirect,omitempty"`
}

// ReplaceRequest evicts one device and registers another in a single call.
type ReplaceRequest struct {
	DeviceIDToRemove string          `json:"deviceIdToRemove"`
	Device           RegisterRequest `json:"device"`
}

type ReplaceResponse struct {
	State string `json:"state"`
	RegisterResponse
}

type HeartbeatResponse struct {
	OK bool `json:"ok"`
}

type LogoutResponse struct {
	Redirect string `json:"redirect"`
}

type SubscriptionRequest struct {
	DeviceID         string                   `json:"deviceId"`
	PushSubscription *device.PushSubscription `json:"pushSubscription"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type ListDevicesResponse struct {
	Devices []DeviceSummary `json:"devices"`
	Limit   int             `json:"limit"`
}

type ErrorResponse struct {
	Status  string                 `json:"status"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func summarize(devices []device.Device) []DeviceSummary {
	out := make([]DeviceSummary, 0, len(devices))
	for _, d := range devices {
		out = append(out, DeviceSummary{
			DeviceID:   d.DeviceID,
			DeviceName: d.DeviceName,
			DeviceType: string(d.DeviceType),
			LastActive: d.LastActive,
			Browser:    d.Browser,
		})
	}
	return out
}
