// Package store defines the durable key/value storage used by the credential vault and the
// persistent cookie jar.
//
// It ships with an in-memory implementation for tests and an afs backed FileStore that
// keeps one object per key under a base URL. Scoped and ForOrigin namespace a store so that
// every API origin gets its own device profile.
package store
