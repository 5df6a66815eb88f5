// Package activity tracks user activity on a client device and ends the
// session after a period of inactivity.
//
// A Tracker moves through Idle -> Active -> Expired -> Stopped. Activity
// events keep it Active and send throttled heartbeats to the server. When no
// activity is seen for the inactivity timeout, or the server reports the
// device as evicted, the tracker logs out: it makes one best-effort call to
// the server, then clears local state and invokes the logout callback even if
// that call failed.
//
// Each Tracker is bound to one session. Nothing is shared between trackers.
package activity
