// Package password hashes and verifies account passwords with Argon2id and
// enforces the account password-strength policy.
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// This package never stores passwords and never logs plaintext or hash
// parameters. It imports no other portalauth package.
package password
