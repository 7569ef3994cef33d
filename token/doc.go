// Package token persists refresh-token records and enforces their
// single-use lifecycle in the credential store.
//
// A record moves unused -> used exactly once. The transition runs inside a
// Lua compare-and-swap so that concurrent rotations of the same token have
// exactly one winner; everyone else observes a mismatch, an expiry, or the
// reuse marker. Consumed records are retained until their TTL elapses so a
// replayed token surfaces as reuse detection instead of not-found.
package token
