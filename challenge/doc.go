// Package challenge issues short-lived, single-use, attempt-bounded
// confirmation challenges gating irreversible operations. Numeric codes go
// out through a notification channel; opaque tokens are returned inline.
// Attempt accounting is serialized in the store so concurrent guesses
// cannot slip past the bound.
package challenge
