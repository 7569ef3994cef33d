// Package breaker implements a circuit breaker for calls into the
// credential store and other downstream dependencies. Repeated failures
// within a window open the circuit; after a recovery timeout a limited
// probe phase decides whether to close it again.
package breaker
