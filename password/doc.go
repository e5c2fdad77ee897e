// Package password implements password hashing and verification with
// argon2id.
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The [Hasher] supports transparent parameter upgrades: if a stored hash
// was produced with weaker parameters, [Hasher.NeedsUpgrade] returns
// true so the caller can re-hash on the next successful verification.
//
// This package owns hashing only. Password policy (length, character
// classes, strength) lives in the roles package.
package password
