package device

import (
	"net/http"
	"strings"
)

// Metadata is the descriptive part of a registration. Clients normally send
// it; the server derives anything missing from the User-Agent.
type Metadata struct {
	DeviceType DeviceType
	Browser    string
	OS         string
	DeviceName string
}

// ExtractMetadataFromRequest derives device metadata from the request's User-Agent.
func ExtractMetadataFromRequest(r *http.Request) Metadata {
	return MetadataFromUserAgent(r.UserAgent())
}

func MetadataFromUserAgent(userAgent string) Metadata {
	m := Metadata{
		DeviceType: determineDeviceType(userAgent),
		Browser:    determineBrowser(userAgent),
		OS:         determineOS(userAgent),
	}
	m.DeviceName = determineDeviceName(userAgent, m.Browser)
	return m
}

// FillMissing copies fields from fallback into params where params is empty.
func (p *RegisterParams) FillMissing(fallback Metadata) {
	if !p.DeviceType.Valid() {
		p.DeviceType = fallback.DeviceType
	}
	if p.Browser == "" {
		p.Browser = fallback.Browser
	}
	if p.OS == "" {
		p.OS = fallback.OS
	}
	if p.DeviceName == "" {
		p.DeviceName = fallback.DeviceName
	}
}

func determineDeviceType(userAgent string) DeviceType {
	switch {
	case contains(userAgent, "iPad"), contains(userAgent, "Tablet"),
		contains(userAgent, "Android") && !contains(userAgent, "Mobile"):
		return DeviceTypeTablet
	case contains(userAgent, "iPhone"), contains(userAgent, "iPod"),
		contains(userAgent, "Windows Phone"), contains(userAgent, "Mobile"):
		return DeviceTypeMobile
	}
	return DeviceTypeDesktop
}

// Order matters: Edge and Opera also advertise Chrome, Chrome also advertises Safari.
func determineBrowser(userAgent string) string {
	switch {
	case userAgent == "":
		return "Unknown"
	case contains(userAgent, "Edg/"), contains(userAgent, "Edge/"):
		return "Edge"
	case contains(userAgent, "OPR/"), contains(userAgent, "Opera"):
		return "Opera"
	case contains(userAgent, "Firefox/"), contains(userAgent, "FxiOS"):
		return "Firefox"
	case contains(userAgent, "Chrome/"), contains(userAgent, "CriOS"):
		return "Chrome"
	case contains(userAgent, "Safari/"):
		return "Safari"
	}
	return "Unknown"
}

func determineOS(userAgent string) string {
	switch {
	case contains(userAgent, "iPhone"), contains(userAgent, "iPad"), contains(userAgent, "iPod"):
		return "iOS"
	case contains(userAgent, "Android"):
		return "Android"
	case contains(userAgent, "Windows"):
		return "Windows"
	case contains(userAgent, "CrOS"):
		return "ChromeOS"
	case contains(userAgent, "Macintosh"), contains(userAgent, "Mac OS X"):
		return "macOS"
	case contains(userAgent, "Linux"):
		return "Linux"
	}
	return "Unknown"
}

func determineDeviceName(userAgent, browser string) string {
	var platform string
	switch {
	case userAgent == "":
		return "Unknown Device"
	case contains(userAgent, "iPhone"):
		platform = "iPhone"
	case contains(userAgent, "iPad"):
		platform = "iPad"
	case contains(userAgent, "Pixel"):
		platform = "Google Pixel"
	case contains(userAgent, "Samsung"), contains(userAgent, "SM-"):
		platform = "Samsung"
	case contains(userAgent, "Android") && contains(userAgent, "Mobile"):
		platform = "Android Phone"
	case contains(userAgent, "Android"):
		platform = "Android Tablet"
	case contains(userAgent, "CrOS"):
		platform = "Chromebook"
	case contains(userAgent, "Macintosh"), contains(userAgent, "Mac OS X"):
		platform = "Mac"
	case contains(userAgent, "Windows"):
		platform = "Windows PC"
	case contains(userAgent, "Linux"):
		platform = "Linux"
	}

	switch {
	case platform == "" && browser == "Unknown":
		return "Unknown Device"
	case platform == "":
		return browser + " Browser"
	case browser == "Unknown":
		return platform
	}
	return browser + " on " + platform
}

// contains is case insensitive.
func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
