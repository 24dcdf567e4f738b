package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePolicyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eras.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const samplePolicy = `
units:
  pirates:
    passes_required: 2
  golden_age:
    passes_required: 0
  founders:
    passes_required: 5
    exclusive: true
`

func TestCacheGet(t *testing.T) {
	path := writePolicyFile(t, samplePolicy)
	cache, err := NewCache(path, time.Minute, UnitPolicy{PassesRequired: 1})
	require.NoError(t, err)
	defer cache.Close()

	assert.Equal(t, UnitPolicy{PassesRequired: 2}, cache.Get("pirates"))
	assert.Equal(t, UnitPolicy{PassesRequired: 0}, cache.Get("golden_age"))
	assert.Equal(t, UnitPolicy{PassesRequired: 5, Exclusive: true}, cache.Get("founders"))
}

func TestCacheGet_UnknownUnitGetsFallback(t *testing.T) {
	path := writePolicyFile(t, samplePolicy)
	fallback := UnitPolicy{PassesRequired: 3}
	cache, err := NewCache(path, time.Minute, fallback)
	require.NoError(t, err)
	defer cache.Close()

	assert.Equal(t, fallback, cache.Get("uncharted"))
}

func TestCache_EmptyPathIsFallbackOnly(t *testing.T) {
	fallback := UnitPolicy{PassesRequired: 1}
	cache, err := NewCache("", time.Minute, fallback)
	require.NoError(t, err)
	defer cache.Close()

	assert.Equal(t, fallback, cache.Get("anything"))
}

func TestCache_MissingFileFails(t *testing.T) {
	_, err := NewCache(filepath.Join(t.TempDir(), "absent.yaml"), time.Minute, UnitPolicy{})
	assert.Error(t, err)
}

func TestCache_TTLTriggersReload(t *testing.T) {
	path := writePolicyFile(t, samplePolicy)
	cache, err := NewCache(path, time.Nanosecond, UnitPolicy{})
	require.NoError(t, err)
	defer cache.Close()

	require.NoError(t, os.WriteFile(path, []byte("units:\n  pirates:\n    passes_required: 9\n"), 0o644))
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, 9, cache.Get("pirates").PassesRequired)
}

func TestCache_FileChangeTriggersReload(t *testing.T) {
	path := writePolicyFile(t, samplePolicy)
	cache, err := NewCache(path, time.Hour, UnitPolicy{})
	require.NoError(t, err)
	defer cache.Close()

	require.NoError(t, os.WriteFile(path, []byte("units:\n  pirates:\n    passes_required: 7\n"), 0o644))

	assert.Eventually(t, func() bool {
		return cache.Get("pirates").PassesRequired == 7
	}, 2*time.Second, 20*time.Millisecond)
}
