package unpacker

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/ewhitman/davit/pkg/events"
	invconfig "github.com/ewhitman/davit/pkg/inventory/config"
	sqlitecfg "github.com/ewhitman/davit/pkg/inventory/config/sqlite"
	"github.com/ewhitman/davit/pkg/inventory"
	"github.com/ewhitman/davit/pkg/inventory/record"
	"github.com/ewhitman/davit/pkg/landing"
	"github.com/ewhitman/davit/pkg/sink"
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type parseNameTest struct {
	name   string
	survey string
	id     string
	isErr  bool
}

var parseNameTests = []parseNameTest{
	{"RR2214_100123_v1.tar.gz", "RR2214", "100123", false},
	{"AT42-11_160034_hydro.tar", "AT42-11", "160034", false},
	{"nounderscore.tar", "", "", true},
	{"one_segment.tar", "", "", true},
}

func TestParseTarballName(t *testing.T) {
	for _, v := range parseNameTests {
		survey, id, err := parseTarballName(v.name)
		assert.Equal(t, v.isErr, err != nil, v.name)
		assert.Equal(t, v.survey, survey, v.name)
		assert.Equal(t, v.id, id, v.name)
	}
}

func buildTar(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())

	return buf.Bytes()
}

func gzipBytes(t *testing.T, raw []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func md5Hex(raw []byte) string {
	sum := md5.Sum(raw)
	return hex.EncodeToString(sum[:])
}

// writeTarball lands <name>.tar.gz and its sidecar manifest in dir. The
// manifest carries checksum, which callers corrupt to test validation.
func writeTarball(t *testing.T, dir string, name string, tarRaw []byte, checksum string) {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".tar.gz"), gzipBytes(t, tarRaw), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".tar.md5"), []byte(checksum+"  "+name+".tar\n"), 0o644))
}

type fixture struct {
	unpacker   *Unpacker
	inv        *inventory.Inventory
	landingDir string
	destRoot   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	invCfg := invconfig.Config{Store: "sqlite"}
	invCfg.Sqlite = sqlitecfg.Config{Path: filepath.Join(t.TempDir(), "inventory.sqlite")}
	inv, err := inventory.New(ctx, invCfg, log.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { inv.Dispose(ctx) })

	landingDir := t.TempDir()
	destRoot := t.TempDir()

	mapper := landing.NewMapper(landing.Config{
		Dir: landingDir,
		Zones: map[string]landing.Zone{
			"Multibeam Sonar": {Dir: filepath.Join(destRoot, "mb", "{ship}", "{survey}"), Untar: true},
			"Gravimeter":      {Dir: filepath.Join(destRoot, "grav", "{ship}", "{survey}")},
		},
	})

	writer, err := sink.NewWriter(sink.Config{Store: "fs"}, log.NewNopLogger())
	require.NoError(t, err)

	pub, err := events.NewPublisher(events.Config{Type: "none"}, log.NewNopLogger())
	require.NoError(t, err)

	return &fixture{
		unpacker:   New(Config{}, mapper, writer, inv, pub, prometheus.NewPedanticRegistry(), log.NewNopLogger()),
		inv:        inv,
		landingDir: landingDir,
		destRoot:   destRoot,
	}
}

func (f *fixture) upsert(t *testing.T, filesetID string, dataType string, instrumentType string) {
	t.Helper()

	rec := record.New(filesetID, "2023-05-01", "/incoming/2023-05-01/RR2214_"+filesetID+"_v1.tar.gz", "run1")
	rec.CruiseID = "RR2214"
	rec.VesselName = "Roger Revelle"
	rec.InstrumentName = "Kongsberg EM122"
	rec.InstrumentType = instrumentType
	rec.DataType = dataType
	rec.SizeBytes = 1024
	require.NoError(t, f.inv.Upsert(context.Background(), rec))
	require.NoError(t, f.inv.UpdateStatus(context.Background(), filesetID, record.FETCHED))
}

func TestRunUntarsValidTarball(t *testing.T) {
	f := newFixture(t)
	f.upsert(t, "100123", "Multibeam", "Multibeam Sonar")

	tarRaw := buildTar(t, map[string]string{
		"data/raw/ping.all": "ping data",
		"docs/readme.txt":   "docs",
	})
	writeTarball(t, f.landingDir, "RR2214_100123_v1", tarRaw, md5Hex(tarRaw))

	require.NoError(t, f.unpacker.Run(context.Background(), f.landingDir))

	dest := filepath.Join(f.destRoot, "mb", "roger revelle", "RR2214")
	got, err := os.ReadFile(filepath.Join(dest, "data", "raw", "ping.all"))
	require.NoError(t, err)
	assert.Equal(t, "ping data", string(got))

	// Tarball and manifest are cleaned up from the landing dir.
	entries, err := os.ReadDir(f.landingDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	rec, found, err := f.inv.GetRecord(context.Background(), "100123")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, record.UNPACKED, rec.Status)
}

func TestRunMovesWithoutUntar(t *testing.T) {
	f := newFixture(t)
	f.upsert(t, "100124", "Trackline", "Gravimeter")

	tarRaw := buildTar(t, map[string]string{"grav.dat": "gravity"})
	writeTarball(t, f.landingDir, "RR2214_100124_v1", tarRaw, md5Hex(tarRaw))

	require.NoError(t, f.unpacker.Run(context.Background(), f.landingDir))

	dest := filepath.Join(f.destRoot, "grav", "roger revelle", "RR2214")
	_, err := os.Stat(filepath.Join(dest, "RR2214_100124_v1.tar"))
	require.NoError(t, err)

	// The whole tarball moved; nothing was extracted.
	_, err = os.Stat(filepath.Join(dest, "grav.dat"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunCorruptTarballNotExtracted(t *testing.T) {
	f := newFixture(t)
	f.upsert(t, "100125", "Multibeam", "Multibeam Sonar")

	tarRaw := buildTar(t, map[string]string{"data/ping.all": "ping data"})
	writeTarball(t, f.landingDir, "RR2214_100125_v1", tarRaw, "00000000000000000000000000000000")

	err := f.unpacker.Run(context.Background(), f.landingDir)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)

	// Destination stays untouched.
	entries, err := os.ReadDir(filepath.Join(f.destRoot, "mb"))
	if err == nil {
		assert.Empty(t, entries)
	} else {
		assert.True(t, os.IsNotExist(err))
	}

	// Inventory keeps the record at FETCHED for a manual re-run.
	rec, found, err := f.inv.GetRecord(context.Background(), "100125")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, record.FETCHED, rec.Status)
}

func TestRunUnmappedTypeFailsLoudly(t *testing.T) {
	f := newFixture(t)
	f.upsert(t, "100126", "Trackline", "GNSS Receiver")

	tarRaw := buildTar(t, map[string]string{"nav.txt": "nav"})
	writeTarball(t, f.landingDir, "RR2214_100126_v1", tarRaw, md5Hex(tarRaw))

	err := f.unpacker.Run(context.Background(), f.landingDir)

	var unmappedErr *landing.UnmappedTypeError
	require.ErrorAs(t, err, &unmappedErr)
	assert.Equal(t, "gnss receiver", unmappedErr.RouteKey)

	// Data stays put in the landing dir rather than being dropped.
	_, statErr := os.Stat(filepath.Join(f.landingDir, "RR2214_100126_v1.tar"))
	require.NoError(t, statErr)
}

func TestRunContinuesPastFailingTarball(t *testing.T) {
	f := newFixture(t)
	f.upsert(t, "100127", "Multibeam", "Multibeam Sonar")
	f.upsert(t, "100128", "Multibeam", "Multibeam Sonar")

	badTar := buildTar(t, map[string]string{"a.txt": "a"})
	writeTarball(t, f.landingDir, "RR2214_100127_v1", badTar, "00000000000000000000000000000000")

	goodTar := buildTar(t, map[string]string{"b.txt": "b"})
	writeTarball(t, f.landingDir, "RR2214_100128_v1", goodTar, md5Hex(goodTar))

	err := f.unpacker.Run(context.Background(), f.landingDir)
	require.Error(t, err)

	// The failure keeps its type through Run's aggregation.
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)

	rec, _, err := f.inv.GetRecord(context.Background(), "100128")
	require.NoError(t, err)
	assert.Equal(t, record.UNPACKED, rec.Status)
}

func TestUntarRejectsPathTraversal(t *testing.T) {
	f := newFixture(t)
	f.upsert(t, "100129", "Multibeam", "Multibeam Sonar")

	tarRaw := buildTar(t, map[string]string{"../escape.txt": "nope"})
	writeTarball(t, f.landingDir, "RR2214_100129_v1", tarRaw, md5Hex(tarRaw))

	err := f.unpacker.Run(context.Background(), f.landingDir)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Reason, "escapes destination")
}
