// Package avatar applies directives to an animation backend whose exact
// capability surface varies across versions. Operations are discovered at
// runtime by trying ranked candidate names and argument shapes; the only
// reliable signals a backend gives are "no such operation" and "wrong
// arity".
package avatar

import "errors"

// Sentinel errors a Backend uses to report capability mismatches. Any
// other error means the operation existed and was attempted; the resolver
// treats that as success, because rendering-side failures are cosmetic.
var (
	ErrUnknownOperation = errors.New("avatar: unknown operation")
	ErrBadArity         = errors.New("avatar: wrong argument count")
)

// Backend is the animation runtime the resolver drives. Implementations
// wrap whatever binding is actually loaded (a rendering process, a plugin,
// a test double).
type Backend interface {
	// Invoke calls a named operation for its side effect.
	Invoke(op string, args ...interface{}) error
	// Query calls a named operation that yields a numeric value.
	Query(op string, args ...interface{}) (float64, error)
}
