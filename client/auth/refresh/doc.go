// Package refresh coordinates credential refreshes so that any number of concurrently rejected
// requests trigger a single refresh call.
//
// The Coordinator is either idle or refreshing. Callers arriving while a refresh runs queue up
// and are resolved in arrival order with the refreshed token, or rejected together when the
// refresh fails, in which case the stored credential is cleared.
package refresh
