// Package internal holds helpers private to the auth engine: secure random
// generation for challenge ids, OTP codes, verification tokens, and recovery
// codes, plus the hashing used before any secret touches a store.
package internal
