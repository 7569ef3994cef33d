// Package internal contains helper utilities that are intentionally private
// to authcore, including secure random generation and the opaque token
// codecs.
//
// # Sub-packages
//
//   - flows — pure-function flow orchestrators for the rotation path
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API.
//   - Be imported by any package outside the authcore module.
package internal
