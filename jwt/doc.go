// Package jwt is the token-signing boundary: it mints short-lived Ed25519
// access tokens under the keyring's current signing key and verifies them
// by resolving the kid header through the keyring. A token whose key has
// been rotated out, revoked, or garbage-collected fails verification.
package jwt
