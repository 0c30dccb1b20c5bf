package unpacker

import (
	"compress/gzip"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// ValidationError means a landed tarball is corrupt or can not be proven
// intact. The tarball is never extracted.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate %s: %s", e.Path, e.Reason)
}

// validate gunzips a landed tarball if needed and checks it against its md5
// sidecar manifest. It returns the path of the plain tar.
func validate(tarballPath string) (string, error) {
	tarPath := tarballPath
	if strings.HasSuffix(tarballPath, ".gz") {
		p, err := gunzip(tarballPath)
		if err != nil {
			return "", err
		}
		tarPath = p
	}

	want, err := readManifest(tarPath + ".md5")
	if err != nil {
		return "", &ValidationError{Path: tarPath, Reason: err.Error()}
	}

	got, err := md5File(tarPath)
	if err != nil {
		return "", &ValidationError{Path: tarPath, Reason: err.Error()}
	}

	if want != got {
		return "", &ValidationError{Path: tarPath, Reason: fmt.Sprintf("checksum validation failed; %s != %s", want, got)}
	}

	return tarPath, nil
}

// gunzip decompresses <name>.tar.gz to <name>.tar next to it and removes
// the gzipped original.
func gunzip(gzPath string) (string, error) {
	in, err := os.Open(gzPath)
	if err != nil {
		return "", &ValidationError{Path: gzPath, Reason: err.Error()}
	}
	defer in.Close()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return "", &ValidationError{Path: gzPath, Reason: "not a gzip file: " + err.Error()}
	}
	defer zr.Close()

	tarPath := strings.TrimSuffix(gzPath, ".gz")
	out, err := os.Create(tarPath)
	if err != nil {
		return "", &ValidationError{Path: gzPath, Reason: err.Error()}
	}

	if _, err := io.Copy(out, zr); err != nil {
		_ = out.Close()
		_ = os.Remove(tarPath)
		return "", &ValidationError{Path: gzPath, Reason: "corrupt gzip stream: " + err.Error()}
	}

	if err := out.Close(); err != nil {
		return "", &ValidationError{Path: gzPath, Reason: err.Error()}
	}

	if err := os.Remove(gzPath); err != nil {
		return "", &ValidationError{Path: gzPath, Reason: err.Error()}
	}

	return tarPath, nil
}

// readManifest returns the checksum from a sidecar manifest: the first
// token, which must be 32 hex chars.
func readManifest(manifestPath string) (string, error) {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return "", fmt.Errorf("missing checksum file: %s", err)
	}

	fields := strings.Fields(string(raw))
	if len(fields) == 0 {
		return "", fmt.Errorf("empty checksum file %s", manifestPath)
	}

	checksum := strings.ToLower(fields[0])
	if len(checksum) != 32 {
		return "", fmt.Errorf("malformed checksum %q in %s", fields[0], manifestPath)
	}
	if _, err := hex.DecodeString(checksum); err != nil {
		return "", fmt.Errorf("malformed checksum %q in %s", fields[0], manifestPath)
	}

	return checksum, nil
}

func md5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
