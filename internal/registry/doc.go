// Package registry tracks live downstream connections and their roles.
//
// The registry:
//   - Is the single source of truth for "who is connected, as what"
//   - Serializes all access behind one lock, never held across a send
//   - Removes entries synchronously with connection teardown
//
// It performs no I/O of its own; components receive it by injection.
package registry
