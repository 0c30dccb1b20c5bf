package fetcher

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cavaliergopher/grab/v3"
	"github.com/ewhitman/davit/pkg/inventory/record"
	gklog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"go.uber.org/atomic"
)

type Config struct {
	PreferHTTPS bool `yaml:"prefer_https"`
	BufferSize  int  `yaml:"buffer_size"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.BoolVar(&c.PreferHTTPS, flagPrefix+"prefer-https", false, `Download over HTTPS when a record carries a source URL`)
	f.IntVar(&c.BufferSize, flagPrefix+"buffer-size", 32*1024, `Transfer buffer size`)
}

// remoteFS is the slice of the SFTP session the fetcher needs.
type remoteFS interface {
	Open(path string) (io.ReadCloser, error)
	Stat(path string) (os.FileInfo, error)
}

// SFTPRemote adapts the shared SFTP session to the fetcher's remote view.
type SFTPRemote struct {
	Client *sftp.Client
}

func (r SFTPRemote) Open(path string) (io.ReadCloser, error) { return r.Client.Open(path) }
func (r SFTPRemote) Stat(path string) (os.FileInfo, error)   { return r.Client.Stat(path) }

// Fetcher pulls a selected record's tarball and its md5 manifest into the
// landing dir: over the shared SFTP session by default, over HTTPS when the
// record carries a source URL and the config prefers it.
type Fetcher struct {
	cfg        Config
	remote     remoteFS
	grabClient *grab.Client
	log        gklog.Logger

	bytesFetched *atomic.Int64
}

func New(cfg Config, remote remoteFS, log gklog.Logger) *Fetcher {
	c := grab.NewClient()
	c.BufferSize = cfg.BufferSize

	return &Fetcher{
		cfg:          cfg,
		remote:       remote,
		grabClient:   c,
		log:          gklog.With(log, "component", "fetcher"),
		bytesFetched: atomic.NewInt64(0),
	}
}

func (f *Fetcher) BytesFetched() int64 {
	return f.bytesFetched.Load()
}

// Fetch downloads the record's tarball and sidecar manifest and verifies
// both landed.
func (f *Fetcher) Fetch(ctx context.Context, rec *record.Record, landingDir string) error {
	if err := os.MkdirAll(landingDir, 0o755); err != nil {
		return errors.Wrap(err, "fetcher create landing dir")
	}

	tarballLocal := filepath.Join(landingDir, path.Base(rec.PackagePath))
	if f.cfg.PreferHTTPS && rec.SourceURL != "" {
		if err := f.downloadHTTPS(ctx, rec.SourceURL, tarballLocal); err != nil {
			return err
		}
	} else {
		if err := f.downloadSFTP(ctx, rec.PackagePath, tarballLocal); err != nil {
			return err
		}
	}

	// The manifest is only published next to the tarball on the SFTP side.
	manifestRemote := ManifestPath(rec.PackagePath)
	manifestLocal := filepath.Join(landingDir, path.Base(manifestRemote))
	if err := f.downloadSFTP(ctx, manifestRemote, manifestLocal); err != nil {
		return err
	}

	if err := f.verifyLanded(rec.PackagePath, tarballLocal); err != nil {
		return err
	}

	_ = level.Info(f.log).Log("msg", "package landed", "fileset", rec.FilesetID, "path", tarballLocal)
	return nil
}

func (f *Fetcher) downloadSFTP(ctx context.Context, remotePath string, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_ = level.Info(f.log).Log("msg", "start copying file", "remote", remotePath)

	src, err := f.remote.Open(remotePath)
	if err != nil {
		return errors.Wrapf(err, "fetcher open remote %s", remotePath)
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return errors.Wrap(err, "fetcher create local file")
	}

	n, err := io.Copy(dst, src)
	if err != nil {
		_ = dst.Close()
		return errors.Wrapf(err, "fetcher copy %s", remotePath)
	}

	if err := dst.Close(); err != nil {
		return errors.Wrap(err, "fetcher close local file")
	}

	f.bytesFetched.Add(n)
	return nil
}

func (f *Fetcher) downloadHTTPS(ctx context.Context, url string, localPath string) error {
	_ = level.Info(f.log).Log("msg", fmt.Sprintf("start downloading file: %s", url))

	req, err := grab.NewRequest(localPath, url)
	if err != nil {
		return errors.Wrap(err, "fetcher create request")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	req = req.WithContext(ctx)

	t := time.NewTicker(1 * time.Second)
	defer t.Stop()

	resp := f.grabClient.Do(req)

	// Sometimes a connection is lost, but we can not properly detect it,
	// so we need to monitor, if file is still downloading
	go func() {
		t2 := time.NewTicker(30 * time.Second)
		defer t2.Stop()

		prevProg := resp.Progress()

		for {
			select {
			case <-t2.C:
				currProg := resp.Progress()
				if currProg == prevProg {
					_ = level.Error(f.log).Log("msg", "seems like an existing connection was forcibly closed by the remote host, canceling context")
					cancel()
				} else {
					prevProg = currProg
				}
			case <-resp.Done:
				return
			}
		}
	}()

Loop:
	for {
		select {
		case <-t.C:
			_ = level.Debug(f.log).Log("msg", fmt.Sprintf("transferred %d / %d bytes (%.2f%%)",
				resp.BytesComplete(),
				resp.Size(),
				100*resp.Progress()))
		case <-resp.Done:
			break Loop
		}
	}

	if err := resp.Err(); err != nil {
		_ = level.Error(f.log).Log("msg", resp.Err().Error())
		return errors.Wrapf(err, "fetcher download %s", url)
	}

	f.bytesFetched.Add(resp.BytesComplete())
	return nil
}

// verifyLanded compares the landed file against the remote size when the
// remote side can report one.
func (f *Fetcher) verifyLanded(remotePath string, localPath string) error {
	local, err := os.Stat(localPath)
	if err != nil {
		return errors.Wrap(err, "fetcher stat landed file")
	}

	remote, err := f.remote.Stat(remotePath)
	if err != nil {
		_ = level.Warn(f.log).Log("msg", "can not stat remote file, skipping size check", "remote", remotePath, "err", err)
		return nil
	}

	if local.Size() != remote.Size() {
		return errors.Errorf("fetcher landed file %s is %d bytes, remote is %d", localPath, local.Size(), remote.Size())
	}

	return nil
}

// ManifestPath is the sidecar md5 path for a tarball. The checksum covers
// the inner tar, so the .gz suffix drops out of the name.
func ManifestPath(tarballPath string) string {
	return strings.TrimSuffix(tarballPath, ".gz") + ".md5"
}
