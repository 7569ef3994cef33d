// Package keyring manages the asymmetric signing keys behind access
// tokens: generation, scheduled rotation with overlapping validity,
// emergency revocation, and garbage collection.
//
// State machine per key: active -> rotating -> deprecated, with revoked
// reachable from any non-terminal state. A rotating key still verifies but
// is never selected for signing; a revoked key never verifies again.
// Private key material stays inside this package except through
// [Manager.SignerKey], which feeds the token-signing boundary.
package keyring
