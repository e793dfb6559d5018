// Package cache holds idempotent read responses in memory for a bounded time.
//
// Entries carry an absolute expiry and are evicted lazily: Get and Has drop an expired
// entry before answering, so a value is never returned after its TTL has passed.
// Keys are derived with Key from method, path and query, and Policy decides which
// paths are cacheable and which TTL class they belong to.
package cache
