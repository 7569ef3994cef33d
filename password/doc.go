// Package password hashes and verifies user passwords with argon2id in
// PHC string format. It backs the admin-driven password reset flow that
// sits behind a confirmation challenge.
package password
