package cmap_test

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/manpreetbhatti/codetogether/internal/cmap"
)

func TestMap(t *testing.T) {
	t.Run("upsert keeps existing value", func(t *testing.T) {
		m := cmap.New[int]()

		v := m.Upsert("a", func(_ int, exists bool) int {
			assert.False(t, exists)
			return 1
		})
		assert.Equal(t, 1, v)

		v = m.Upsert("a", func(cur int, exists bool) int {
			assert.True(t, exists)
			return cur
		})
		assert.Equal(t, 1, v)
		assert.Equal(t, 1, m.Len())
	})

	t.Run("delete honours callback", func(t *testing.T) {
		m := cmap.New[string]()
		m.Upsert("k", func(string, bool) string { return "v1" })

		assert.False(t, m.Delete("k", func(v string, _ bool) bool { return v == "v2" }))
		assert.True(t, m.Delete("k", func(v string, _ bool) bool { return v == "v1" }))
		assert.False(t, m.Delete("missing", func(string, bool) bool { return true }))

		_, ok := m.Get("k")
		assert.False(t, ok)
	})

	t.Run("concurrent upserts are atomic per key", func(t *testing.T) {
		m := cmap.New[int]()
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				m.Upsert("counter", func(cur int, _ bool) int { return cur + 1 })
				m.Upsert(strconv.Itoa(i), func(int, bool) int { return i })
			}(i)
		}
		wg.Wait()

		v, ok := m.Get("counter")
		assert.True(t, ok)
		assert.Equal(t, 100, v)
		assert.Equal(t, 101, m.Len())
		assert.Len(t, m.Values(), 101)
		assert.Len(t, m.Keys(), 101)
		assert.Contains(t, m.Keys(), "counter")
	})
}
