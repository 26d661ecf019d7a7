package mask

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_ApplyBasic(t *testing.T) {
	r := NewRegistry()
	r.Add("foo")

	got := r.Apply("hello foo world")
	assert.Equal(t, "hello *** world", got)
	assert.Equal(t, len("hello foo world"), len(got))
}

func TestRegistry_ApplyNoKeywords(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, "hello", r.Apply("hello"))
}

func TestRegistry_ApplyEmptyTextAndEmptyKeyword(t *testing.T) {
	r := NewRegistry()
	r.Add("")
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, "", r.Apply(""))
}

func TestRegistry_AddDuplicateIsNoOp(t *testing.T) {
	r := NewRegistry()
	r.Add("cat")
	r.Add("cat")
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_LeftmostLongestOverlap(t *testing.T) {
	r := NewRegistry()
	r.Add("cat")
	r.Add("black cat")

	text := "the black cat sat"
	got := r.Apply(text)
	assert.Equal(t, "the ********* sat", got)
	assert.Equal(t, len(text), len(got))
}

func TestRegistry_Idempotent(t *testing.T) {
	r := NewRegistry()
	r.Add("ab")

	text := "xxabxxabxx"
	once := r.Apply(text)
	twice := r.Apply(once)
	assert.Equal(t, once, twice)
	assert.Equal(t, len(text), len(once))
}

func TestRegistry_ApplyPreservesMultibyteLength(t *testing.T) {
	r := NewRegistry()
	r.Add("bad")

	text := "café bad café"
	got := r.Apply(text)
	assert.Equal(t, len(text), len(got))
}

func TestRegistry_ConcurrentAddAndApply(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Add("secret")
		}()
		go func() {
			defer wg.Done()
			out := r.Apply("this is secret info")
			assert.Equal(t, len("this is secret info"), len(out))
		}()
	}
	wg.Wait()
}
