package harvester

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	gklog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

const (
	dateDirLayout = "2006-01-02"
	readmeName    = "README"
	manifestExt   = ".md5"

	// DefaultSince is the cutover date before which the remote holds no
	// date-named dirs worth harvesting.
	DefaultSince = "2021-01-01"
)

type Config struct {
	RemoteDir string `yaml:"remote_dir"`
	Since     string `yaml:"since"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.RemoteDir, flagPrefix+"remote-dir", "", `Remote directory holding the date dirs`)
	f.StringVar(&c.Since, flagPrefix+"since", DefaultSince, `Only harvest date dirs strictly after this date`)
}

// Descriptor is one remote tarball entry, before the rvdata metadata lookup.
type Descriptor struct {
	DateDir   string
	Name      string
	Path      string
	Size      int64
	ModTime   time.Time
	FilesetID string
}

type dirLister interface {
	ReadDir(path string) ([]os.FileInfo, error)
}

type Harvester struct {
	cfg    Config
	lister dirLister
	log    gklog.Logger
}

func New(cfg Config, lister dirLister, log gklog.Logger) *Harvester {
	if cfg.Since == "" {
		cfg.Since = DefaultSince
	}

	return &Harvester{
		cfg:    cfg,
		lister: lister,
		log:    gklog.With(log, "component", "harvester"),
	}
}

// Harvest lists the remote date dirs and returns a descriptor per tarball in
// every dir not yet known to the inventory. Entries with names the harvester
// can not parse are skipped with a warning.
func (h *Harvester) Harvest(ctx context.Context, knownDateDirs []string) ([]Descriptor, error) {
	since, err := time.Parse(dateDirLayout, h.cfg.Since)
	if err != nil {
		return nil, errors.Wrap(err, "harvester parse since date")
	}

	entries, err := h.lister.ReadDir(h.cfg.RemoteDir)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}

	names := lo.Map(entries, func(fi os.FileInfo, _ int) string { return fi.Name() })
	dateDirs := filterDateDirs(names, since, knownDateDirs)
	if len(dateDirs) == 0 {
		_ = level.Info(h.log).Log("msg", "no new date dirs on remote")
		return nil, nil
	}

	descs := make([]Descriptor, 0)
	for _, dateDir := range dateDirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dirPath := path.Join(h.cfg.RemoteDir, dateDir)
		dirEntries, err := h.lister.ReadDir(dirPath)
		if err != nil {
			return nil, &ListingError{Dir: dirPath, Err: err}
		}

		for _, fi := range dirEntries {
			if fi.IsDir() || strings.HasSuffix(fi.Name(), manifestExt) {
				continue
			}

			filesetID, err := parseFilesetID(fi.Name())
			if err != nil {
				_ = level.Warn(h.log).Log("msg", "skipping unparsable entry", "dir", dateDir, "name", fi.Name(), "err", err)
				continue
			}

			descs = append(descs, Descriptor{
				DateDir:   dateDir,
				Name:      fi.Name(),
				Path:      path.Join(dirPath, fi.Name()),
				Size:      fi.Size(),
				ModTime:   fi.ModTime(),
				FilesetID: filesetID,
			})
		}
	}

	_ = level.Info(h.log).Log("msg", "harvest complete", "date_dirs", len(dateDirs), "descriptors", len(descs))
	return descs, nil
}

// filterDateDirs keeps names that parse as dates strictly after since and are
// not already in the inventory. The remote README sits next to the date dirs
// and falls out here.
func filterDateDirs(names []string, since time.Time, known []string) []string {
	return lo.Filter(names, func(name string, _ int) bool {
		if name == readmeName {
			return false
		}

		d, err := time.Parse(dateDirLayout, name)
		if err != nil {
			return false
		}

		return d.After(since) && !lo.Contains(known, name)
	})
}

// parseFilesetID pulls the fileset ID out of a tarball name shaped like
// <cruise>_<fileset_id>_<suffix>.tar.gz.
func parseFilesetID(name string) (string, error) {
	tokens := strings.Split(name, "_")
	if len(tokens) < 3 {
		return "", fmt.Errorf("entry name %q has no fileset id segment", name)
	}

	id := tokens[len(tokens)-2]
	if id == "" {
		return "", fmt.Errorf("entry name %q has an empty fileset id segment", name)
	}

	return id, nil
}
