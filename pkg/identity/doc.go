// Package identity resolves the stable device id a client presents to the
// device registry.
//
// The id is kept in two stores, checked in order: a JSON file in the client
// config directory (FileStore) and the device_id cookie in the client's
// cookie jar (CookieStore). Whichever store holds a value wins and the value
// is copied to the other. When neither does, a new id is derived from a
// hardware fingerprint and a KSUID and written to both.
//
// The fingerprint is an affinity hint sent as physicalDeviceId. It is not
// unique across identical machines and must never be used to authorize
// anything.
package identity
