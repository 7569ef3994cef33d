// Package flows holds request flows factored out of the root package so
// they stay testable against narrow dependency sets.
package flows
