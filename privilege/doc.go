// Package privilege implements the role-privilege guard: pure decision
// functions over an immutable rank table and assignment matrix.
//
// Every mutation path that changes a principal's roles or scope must call
// through this package before persisting anything. The functions are
// side-effect free and allocation-light; they return tagged [Decision]
// values rather than booleans so a truthiness bug cannot turn a denial into
// an approval.
package privilege
