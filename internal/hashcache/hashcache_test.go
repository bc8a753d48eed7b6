package hashcache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFile_ReturnsEmptyMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")

	cache, err := Load(path)
	require.NoError(t, err)
	assert.NotNil(t, cache)
	assert.Empty(t, cache)
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile", "hashes.json")

	want := map[string]string{
		"/a.txt":     "deadbeef",
		"/sub/b.txt": "cafef00d",
	}

	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSave_OverwritesPreviousContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hashes.json")

	require.NoError(t, Save(path, map[string]string{"/a.txt": "one"}))
	require.NoError(t, Save(path, map[string]string{"/b.txt": "two"}))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"/b.txt": "two"}, got)
}

func TestLoad_CorruptFile_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hashes.json")
	require.NoError(t, writeRaw(path, "{not json"))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestPrune_RemovesDeadPaths(t *testing.T) {
	cache := map[string]string{
		"/a.txt": "one",
		"/b.txt": "two",
		"/c.txt": "three",
	}

	Prune(cache, map[string]bool{"/a.txt": true, "/c.txt": true})

	assert.Equal(t, map[string]string{"/a.txt": "one", "/c.txt": "three"}, cache)
}

func writeRaw(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
