package identity

import (
	"fmt"
	"runtime"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/segmentio/ksuid"
)

// HardwareInfo contains the inputs of the fingerprint.
type HardwareInfo struct {
	Cores        int
	ScreenWidth  int
	ScreenHeight int
	Platform     string
}

// CurrentHardware describes the running machine. Screen size is unknown to a
// headless client and left zero; callers with a display fill it in.
func CurrentHardware() HardwareInfo {
	return HardwareInfo{
		Cores:    runtime.NumCPU(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Fingerprint hashes the hardware description. Identical machines collide;
// the value is a hint and never an identity.
func Fingerprint(h HardwareInfo) string {
	combined := fmt.Sprintf("%d|%dx%d|%s", h.Cores, h.ScreenWidth, h.ScreenHeight, h.Platform)
	return strconv.FormatUint(xxhash.Sum64String(combined), 36)
}

// NewDeviceID derives a fresh id from the fingerprint and a KSUID.
func NewDeviceID(h HardwareInfo) string {
	return Fingerprint(h) + "-" + ksuid.New().String()
}
