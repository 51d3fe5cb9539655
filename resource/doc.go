// Package resource maps opaque integer handles to host values.
//
// The abi facade hands contexts and runtimes across a C-style boundary as
// Handles. Each handle carries a slot generation, so freeing a value and
// creating another in the same slot never revives the old handle.
//
// # Lifecycle
//
//	arena := resource.NewArena()
//	h, _ := arena.Insert(kindRuntime, rt)    // move in
//	v, ok := arena.GetTyped(h, kindRuntime)  // look up
//	v, err := arena.Remove(h, kindRuntime)   // move out; h is dead
//
// Handle 0 is never issued. Lookups with a dead, foreign or zero handle
// fail without panicking.
//
// # Borrows
//
// Borrow pins a handle for the duration of a call; Remove fails with
// ErrOutstandingBorrow until every borrow is returned.
package resource
