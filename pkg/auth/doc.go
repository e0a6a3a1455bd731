// Package auth provides credential hashing and session token management.
//
// # Credential Store
//
// Passwords are pre-hashed with SHA-256 over password||secret before bcrypt.
// The pre-hash neutralizes bcrypt's 72-byte input limit, and the server-wide
// secret makes stored hashes unusable if the database leaks without it.
//
//	store := auth.NewCredentialStore(cfg.Auth, logger)
//	hash, err := store.Hash("hunter2")
//	ok := store.Verify("hunter2", hash)
//
// # Token Service
//
// Session tokens are HMAC-signed JWTs carrying a user_id claim and an
// expiration. Decoding fails on malformed tokens, bad signatures, expiry,
// and missing claims; turning a decoded user id into a live user record is
// the resolver's job (pkg/rbac).
//
//	svc := auth.NewTokenService(cfg.Auth)
//	token, err := svc.Issue(userID)
//	userID, err := svc.Decode(token)
package auth
