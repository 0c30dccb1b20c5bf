package unpacker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manifestTest struct {
	content  string
	checksum string
	isErr    bool
}

var manifestTests = []manifestTest{
	{"d41d8cd98f00b204e9800998ecf8427e  pkg.tar\n", "d41d8cd98f00b204e9800998ecf8427e", false},
	{"D41D8CD98F00B204E9800998ECF8427E", "d41d8cd98f00b204e9800998ecf8427e", false},
	{"", "", true},
	{"tooshort", "", true},
	{"zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz  pkg.tar\n", "", true},
}

func TestReadManifest(t *testing.T) {
	dir := t.TempDir()
	for i, v := range manifestTests {
		path := filepath.Join(dir, "pkg.tar.md5")
		require.NoError(t, os.WriteFile(path, []byte(v.content), 0o644))

		got, err := readManifest(path)
		assert.Equal(t, v.isErr, err != nil, "case %d", i)
		if !v.isErr {
			assert.Equal(t, v.checksum, got, "case %d", i)
		}
	}
}

func TestReadManifestMissingFile(t *testing.T) {
	_, err := readManifest(filepath.Join(t.TempDir(), "nope.md5"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing checksum file")
}

func TestGunzipRejectsNonGzip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pkg.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("not gzip at all"), 0o644))

	_, err := gunzip(path)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)

	// The original stays put for inspection.
	_, statErr := os.Stat(path)
	require.NoError(t, statErr)
}
