package linker

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/hostfn"
	"github.com/wippyai/wasm-bridge/trampoline"
)

func trampolineEntry(v uintptr) trampoline.EntryPoint {
	return trampoline.EntryPoint(v)
}

func kindOf(t *testing.T, err error) errors.Kind {
	t.Helper()
	var be *errors.Error
	require.True(t, stderrors.As(err, &be), "got %v", err)
	return be.Kind
}

func TestLink(t *testing.T) {
	l := New()
	require.NoError(t, l.Link("env", "add", 2, hostfn.U64, 10))
	require.NoError(t, l.Link("env", "log", 1, hostfn.Void, 11))
	require.NoError(t, l.Link("other", "add", 0, hostfn.U64, 12))

	b, ok := l.Resolve("env", "add")
	require.True(t, ok)
	assert.Equal(t, uint8(2), b.Sig.Arity)
	assert.Equal(t, hostfn.U64, b.Sig.Return)
	assert.EqualValues(t, 10, b.Entry)

	_, ok = l.Resolve("env", "missing")
	assert.False(t, ok)
	_, ok = l.Resolve("nope", "add")
	assert.False(t, ok)

	assert.Equal(t, 3, l.Len())
	assert.Equal(t, []string{"env", "other"}, l.Namespaces())

	var keys []string
	for _, b := range l.Bindings() {
		keys = append(keys, b.Sig.Key())
	}
	assert.Equal(t, []string{"env#add", "env#log", "other#add"}, keys)
}

func TestLink_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		module string
		fn     string
		arity  uint8
		ret    hostfn.ReturnKind
		entry  uintptr
		want   errors.Kind
	}{
		{"arity", "env", "f", 9, hostfn.U64, 1, errors.KindInvalidInput},
		{"return kind", "env", "f", 1, hostfn.ReturnKind(2), 1, errors.KindInvalidInput},
		{"utf8 module", "\xff", "f", 1, hostfn.U64, 1, errors.KindInvalidUTF8},
		{"utf8 name", "env", "\xc3\x28", 1, hostfn.U64, 1, errors.KindInvalidUTF8},
		{"null entry", "env", "f", 1, hostfn.U64, 0, errors.KindInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := New()
			err := l.Link(tc.module, tc.fn, tc.arity, tc.ret, trampolineEntry(tc.entry))
			require.Error(t, err)
			assert.Equal(t, tc.want, kindOf(t, err))
			assert.True(t, l.Empty())
		})
	}
}

func TestLink_DuplicateIsAtomic(t *testing.T) {
	l := New()
	require.NoError(t, l.Link("env", "add", 2, hostfn.U64, 10))

	err := l.Link("env", "add", 1, hostfn.Void, 99)
	require.Error(t, err)
	assert.Equal(t, errors.KindRegistration, kindOf(t, err))

	b, _ := l.Resolve("env", "add")
	assert.EqualValues(t, 10, b.Entry)
	assert.Equal(t, 1, l.Len())
}

func TestLink_ConcurrentDuplicateOnlyOneWins(t *testing.T) {
	l := New()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 1; i <= 16; i++ {
		wg.Add(1)
		go func(entry uintptr) {
			defer wg.Done()
			if l.Link("env", "f", 0, hostfn.U64, trampolineEntry(entry)) == nil {
				wins.Add(1)
			}
		}(uintptr(i))
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, 1, l.Len())
}

func TestOverlay(t *testing.T) {
	root := New()
	require.NoError(t, root.Link("env", "shared", 0, hostfn.U64, 1))

	o := root.Overlay()
	assert.Same(t, root, o.Parent())
	assert.True(t, o.Empty())

	require.NoError(t, o.Link("env", "private", 1, hostfn.Void, 2))

	_, ok := o.Resolve("env", "shared")
	assert.True(t, ok, "overlay sees parent bindings")
	_, ok = o.Resolve("env", "private")
	assert.True(t, ok)
	_, ok = root.Resolve("env", "private")
	assert.False(t, ok, "parent never sees overlay bindings")

	err := o.Link("env", "shared", 0, hostfn.U64, 3)
	assert.Equal(t, errors.KindRegistration, kindOf(t, err))
	assert.Equal(t, 1, o.Len())
}

type fakeTemplate struct{ id int }

func (f *fakeTemplate) Instantiate(context.Context, *engine.Store, uint64) (engine.Instance, error) {
	return nil, stderrors.New("fake")
}

type counts struct {
	hit, miss, evict atomic.Int32
}

func (c *counts) CacheHit()   { c.hit.Add(1) }
func (c *counts) CacheMiss()  { c.miss.Add(1) }
func (c *counts) CacheEvict() { c.evict.Add(1) }

func TestCache_LRU(t *testing.T) {
	obs := &counts{}
	c, err := NewCache(2, obs)
	require.NoError(t, err)

	a, b, d := KeyOf([]byte("a")), KeyOf([]byte("b")), KeyOf([]byte("d"))
	fill := func(key CacheKey, id int) engine.Template {
		tpl, _, err := c.GetOrPrepare(key, func() (engine.Template, error) { return &fakeTemplate{id: id}, nil })
		require.NoError(t, err)
		return tpl
	}

	ta := fill(a, 1)
	fill(b, 2)
	got, ok := c.Get(a) // a is now most recent
	require.True(t, ok)
	assert.Same(t, ta, got)

	fill(d, 3) // evicts b
	assert.True(t, c.Contains(a))
	assert.False(t, c.Contains(b))
	assert.True(t, c.Contains(d))
	assert.Equal(t, 2, c.Len())

	assert.Equal(t, int32(1), obs.hit.Load())
	assert.Equal(t, int32(3), obs.miss.Load())
	assert.Equal(t, int32(1), obs.evict.Load())

	c.Purge()
	assert.Zero(t, c.Len())
}

func TestCache_FailuresNotCached(t *testing.T) {
	c, err := NewCache(4, nil)
	require.NoError(t, err)
	key := KeyOf([]byte("x"))

	_, _, err = c.GetOrPrepare(key, func() (engine.Template, error) { return nil, stderrors.New("boom") })
	require.Error(t, err)
	assert.False(t, c.Contains(key))

	tpl, hit, err := c.GetOrPrepare(key, func() (engine.Template, error) { return &fakeTemplate{}, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NotNil(t, tpl)

	_, hit, err = c.GetOrPrepare(key, func() (engine.Template, error) { t.Fatal("prepared twice"); return nil, nil })
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestCache_ConcurrentFillPreparesOnce(t *testing.T) {
	c, err := NewCache(4, nil)
	require.NoError(t, err)
	key := KeyOf([]byte("code"))

	var prepared atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	results := make([]engine.Template, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tpl, _, err := c.GetOrPrepare(key, func() (engine.Template, error) {
				prepared.Add(1)
				<-release
				return &fakeTemplate{id: i}, nil
			})
			assert.NoError(t, err)
			results[i] = tpl
		}(i)
	}
	close(release)
	wg.Wait()

	for _, r := range results {
		assert.Same(t, results[0], r)
	}
	assert.Equal(t, int32(1), prepared.Load())
	assert.Equal(t, 1, c.Len())
}

func TestNewCache_RejectsZero(t *testing.T) {
	_, err := NewCache(0, nil)
	assert.Error(t, err)
}

func TestKeyOf(t *testing.T) {
	assert.Equal(t, KeyOf([]byte("abc")), KeyOf([]byte("abc")))
	assert.NotEqual(t, KeyOf([]byte("abc")), KeyOf([]byte("abd")))
	assert.Len(t, KeyOf(nil).String(), 64)
}
