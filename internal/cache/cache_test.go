package cache

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoLoadsOnce(t *testing.T) {
	m := New()
	var calls int32
	release := make(chan struct{})
	load := func() (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := Typed(m, "k", load)
			assert.NoError(t, err)
			results[i] = v
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, 42, v)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	v, err := Typed(m, "k", func() (int, error) { return 0, errors.New("not called") })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestMemoDoesNotStoreFailures(t *testing.T) {
	m := New()
	_, err := Typed(m, "k", func() (string, error) { return "", errors.New("boom") })
	require.Error(t, err)
	assert.Equal(t, 0, m.Len())

	v, err := Typed(m, "k", func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestInvalidate(t *testing.T) {
	m := New()
	for _, k := range []string{"dataset:a", "dataset:b", "model:a"} {
		_, err := m.Get(k, func() (any, error) { return k, nil })
		require.NoError(t, err)
	}
	assert.Equal(t, 2, m.Invalidate("dataset:"))
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 1, m.Invalidate(""))
	assert.Equal(t, 0, m.Len())
}

func TestIdentityChangesWithContent(t *testing.T) {
	p := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(p, []byte("a\n1\n"), 0o644))
	first, err := Stat(p)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(p, []byte("a\n1\n2\n"), 0o644))
	second, err := Stat(p)
	require.NoError(t, err)

	assert.NotEqual(t, first.String(), second.String())
	assert.Equal(t, first.String()+"|"+second.String(), Key(first, second))

	_, err = Stat(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
