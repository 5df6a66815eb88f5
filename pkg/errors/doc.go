// Package errors provides structured error handling with error codes for devicegate.
//
// Errors carry a typed code, a human readable message, optional details and an
// optional wrapped cause. Codes map to HTTP status codes so handlers can render
// a consistent envelope.
//
// # Basic Usage
//
//	import dgerrors "github.com/habitkit/devicegate/pkg/errors"
//
//	err := dgerrors.New(dgerrors.ErrCodeUnauthorized, "missing account")
//	err := dgerrors.Wrap(dbErr, dgerrors.ErrCodeInternal, "failed to load devices")
//	err := dgerrors.QuotaExceeded(2).WithDetail("active_devices", devices)
//
//	if dgerrors.IsCode(err, dgerrors.ErrCodeSessionExpired) {
//		// log the device out
//	}
//
// # Taxonomy
//
// The device subsystem distinguishes:
//   - authentication failures (ErrCodeUnauthorized), fatal to the request
//   - quota conflicts (ErrCodeQuotaExceeded), expected and rendered as data
//   - missing devices (ErrCodeNotFound), treated as no-op success on removal
//   - per-device delivery failures (ErrCodeDeliveryFailed), counted and logged
//   - transient network failures (ErrCodeTransient), best-effort on the client
//   - expired sessions (ErrCodeSessionExpired), which trigger logout
package errors
