// Package linker holds host syscall bindings and the pre-instance cache.
//
// # Main Types
//
//   - Linker: (module, function) -> engine.Binding table
//   - Cache: LRU of engine.Template keyed by CacheKey
//
// # Overlays
//
// A Context owns the root Linker. Each runtime may layer an Overlay over it
// for bindings only that runtime sees. Resolution order:
//
//  1. Overlay bindings
//  2. Context bindings
//  3. Unresolved (reported at instantiation)
//
// A name bound in either table cannot be bound again in the other.
//
// # Thread Safety
//
// Linker and Cache are safe for concurrent use. Templates returned from the
// cache are shared and immutable.
//
// # Example
//
//	l := linker.New()
//	_ = l.Link("env", "add", 2, hostfn.U64, entry)
//	cache, _ := linker.NewCache(64, nil)
//	tpl, hit, err := cache.GetOrPrepare(linker.KeyOf(code), func() (engine.Template, error) {
//		return mod.Prepare(ctx, l)
//	})
package linker
