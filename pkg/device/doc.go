// Package device is the device registry: it records which client devices
// hold a session for an account and enforces the per-account limit on
// active devices.
//
// # Quota
//
// An account may have at most DeviceLimit (default 2) active devices. The
// limit is enforced inside Repository.RegisterWithinLimit, which checks the
// count and writes in one atomic step:
//
//   - PostgresDeviceRepository takes pg_advisory_xact_lock(hashtext(account_id))
//     inside a transaction, so concurrent registrations for one account queue.
//   - InMemDeviceRepository and FileDeviceRepository hold a single mutex.
//
// Re-registering an active device refreshes it without touching the count.
// Re-registering an evicted device needs a free slot like a new one.
// ForceRegister never bypasses the limit.
//
// # Basic Usage
//
//	repo, err := device.NewDeviceRepository("postgres", device.RepositoryConfig{DB: pool})
//	service := device.NewDeviceService(repo,
//		device.WithDeviceLimit(2),
//		device.WithHeartbeatThrottle(throttle.NewRedisThrottle(rdb), 5*time.Minute),
//	)
//
//	result, err := service.Register(ctx, device.RegisterParams{
//		AccountID:  accountID,
//		DeviceID:   deviceID,
//		DeviceType: device.DeviceTypeDesktop,
//		RememberMe: true,
//	})
//	if err == nil && !result.Success {
//		// Limit reached: offer result.ActiveDevices for eviction.
//	}
//
// # Removal
//
// Rows are never deleted. Deactivate flips IsActive to false and clears
// remember-me; deactivating a missing device is a successful no-op.
package device
