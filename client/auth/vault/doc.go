// Package vault keeps the credential record (bearer token, user profile, refresh token)
// across restarts.
//
// Records are sealed with AES-256-GCM under a key derived with Argon2id from a per-install
// secret. When sealing is unavailable the record is written to the fallback slot using a
// reversible encoding. Stored values carry a format marker; unrecognized values are removed
// when the vault is opened.
package vault
