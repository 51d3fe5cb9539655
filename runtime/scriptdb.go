package runtime

import (
	"context"
	"sync"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/linker"
	"github.com/wippyai/wasm-bridge/trampoline"
)

// ScriptDB looks up bytecode by content hash.
type ScriptDB interface {
	Script(hash linker.CacheKey) ([]byte, bool)
}

// MemoryScriptDB is an in-memory ScriptDB. Thread-safe.
type MemoryScriptDB struct {
	mu      sync.RWMutex
	scripts map[linker.CacheKey][]byte
}

// NewMemoryScriptDB creates an empty script store.
func NewMemoryScriptDB() *MemoryScriptDB {
	return &MemoryScriptDB{scripts: make(map[linker.CacheKey][]byte)}
}

// Add stores code under its content hash and returns the hash.
func (db *MemoryScriptDB) Add(code []byte) linker.CacheKey {
	key := linker.KeyOf(code)
	db.Put(key, code)
	return key
}

// Put stores code under an arbitrary hash.
func (db *MemoryScriptDB) Put(hash linker.CacheKey, code []byte) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.scripts[hash] = append([]byte(nil), code...)
}

// Script implements ScriptDB.
func (db *MemoryScriptDB) Script(hash linker.CacheKey) ([]byte, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	code, ok := db.scripts[hash]
	return code, ok
}

// NewRuntimeFromDB creates a runtime for the script stored under hash,
// using the hash as its cache key.
func (c *Context) NewRuntimeFromDB(ctx context.Context, db ScriptDB, hash linker.CacheKey, user trampoline.UserContext, opts ...RuntimeOption) (*Runtime, error) {
	code, ok := db.Script(hash)
	if !ok {
		return nil, errors.NotFound(errors.PhaseInstantiate, "script", hash.String())
	}
	return c.NewRuntime(ctx, code, user, &hash, opts...)
}
