// Package notification fans push notifications out to every active device of
// an account.
//
// Dispatcher.Fanout reads the account's active devices that have a push
// subscription and delivers to them in parallel. A failure on one device is
// counted and logged; it never stops delivery to the others and is never
// returned. The only error Fanout returns is a failure to read the devices.
// Subscriptions the push service reports as gone are cleared.
//
// Delivery goes through a Pusher:
//
//   - WebPushPusher sends encrypted Web Push messages signed with VAPID keys.
//   - FCMPusher sends through Firebase Cloud Messaging; the subscription
//     endpoint is the registration token.
//   - MultiPusher routes by subscription kind.
//   - MockPusher records deliveries for tests.
//
// MilestoneNotifier makes milestone notices one-shot. It records the
// achievement first and only fans out when the record was new, so two
// concurrent detections of the same milestone produce one notice.
package notification
