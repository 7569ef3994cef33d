// Package authcore is the credential and session security core for an
// institutional multi-tenant platform: opaque refresh tokens with
// rotation and reuse detection, Ed25519 signing key lifecycle with
// overlapping validity windows, a privilege guard over a total-order
// role hierarchy, attempt-bounded confirmation challenges, and a circuit
// breaker isolating the whole of it from credential store outages.
//
// Construct a [Core] through the builder:
//
//	core, err := authcore.New().
//		WithRedis(client).
//		WithAuditSink(sink).
//		WithNotifier(notifier).
//		Build()
//
// The core is transport-agnostic. Web-layer concerns such as cookies,
// request validation, and SSO protocol parsing live with the caller; the
// core's expiry values are the source of truth for credential lifetimes.
package authcore
