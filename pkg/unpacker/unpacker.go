// Package unpacker validates landed tarballs and sorts their contents into
// the landing zones mapped to each data type.
package unpacker

import (
	"archive/tar"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ewhitman/davit/pkg/datatype"
	"github.com/ewhitman/davit/pkg/events"
	"github.com/ewhitman/davit/pkg/events/message"
	"github.com/ewhitman/davit/pkg/inventory"
	"github.com/ewhitman/davit/pkg/inventory/record"
	"github.com/ewhitman/davit/pkg/landing"
	"github.com/ewhitman/davit/pkg/sink"
	gklog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Config struct {
	KeepTarballs bool `yaml:"keep_tarballs"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.BoolVar(&c.KeepTarballs, flagPrefix+"keep-tarballs", false, `Keep landed tarballs and manifests after placement`)
}

type Unpacker struct {
	cfg    Config
	mapper *landing.Mapper
	sink   sink.Writer
	inv    *inventory.Inventory
	pub    events.Publisher
	log    gklog.Logger

	packagesPlaced     prometheus.Counter
	validationFailures prometheus.Counter
}

func New(cfg Config, mapper *landing.Mapper, sink sink.Writer, inv *inventory.Inventory, pub events.Publisher, reg prometheus.Registerer, log gklog.Logger) *Unpacker {
	return &Unpacker{
		cfg:    cfg,
		mapper: mapper,
		sink:   sink,
		inv:    inv,
		pub:    pub,
		log:    gklog.With(log, "component", "unpacker"),
		packagesPlaced: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "packages_placed_total",
			Help: "Tarballs validated, unpacked and placed into a landing zone.",
		}),
		validationFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "validation_failures_total",
			Help: "Tarballs that failed md5 or format validation.",
		}),
	}
}

// Run processes every tarball in the landing dir. A failing tarball is
// reported and skipped; the rest still get placed.
func (u *Unpacker) Run(ctx context.Context, landingDir string) error {
	entries, err := os.ReadDir(landingDir)
	if err != nil {
		return errors.Wrap(err, "unpacker read landing dir")
	}

	errs := multierror.New()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".tar") && !strings.HasSuffix(name, ".tar.gz") {
			continue
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if err := u.processTarball(ctx, landingDir, name); err != nil {
			var valErr *ValidationError
			if errors.As(err, &valErr) {
				u.validationFailures.Inc()
			}

			_ = level.Error(u.log).Log("msg", "tarball not placed", "tarball", name, "err", err)
			errs.Add(errors.Wrapf(err, "tarball %s", name))
			continue
		}

		u.packagesPlaced.Inc()
	}

	// The dskit aggregate flattens wrapped types, so a single failure is
	// returned as-is to keep it matchable with errors.As.
	if len(errs) == 1 {
		return errs[0]
	}

	return errs.Err()
}

func (u *Unpacker) processTarball(ctx context.Context, landingDir string, name string) error {
	survey, filesetID, err := parseTarballName(name)
	if err != nil {
		return err
	}

	rec, found, err := u.inv.GetRecord(ctx, filesetID)
	if err != nil {
		return err
	}
	if !found {
		return errors.Errorf("fileset %s not in inventory", filesetID)
	}

	tarPath, err := validate(filepath.Join(landingDir, name))
	if err != nil {
		return err
	}

	routeKey := datatype.Route(rec.DataType, rec.InstrumentType, rec.InstrumentName)
	zone, err := u.mapper.Resolve(routeKey, rec.VesselName, survey)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(zone.Dir, 0o755); err != nil {
		return errors.Wrap(err, "unpacker create zone dir")
	}

	if err := u.mapper.CheckSpace(zone, rec.SizeBytes); err != nil {
		return err
	}

	if zone.Untar {
		_ = level.Info(u.log).Log("msg", "moving and untarring", "tarball", name, "dest", zone.Dir)
		if err := u.untar(ctx, tarPath, zone.Dir); err != nil {
			return err
		}
	} else {
		_ = level.Info(u.log).Log("msg", "moving", "tarball", name, "dest", zone.Dir)
		if err := u.move(ctx, tarPath, zone.Dir); err != nil {
			return err
		}
	}

	if !u.cfg.KeepTarballs {
		if err := os.Remove(tarPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return errors.Wrap(err, "unpacker remove tarball")
		}
		if err := os.Remove(tarPath + ".md5"); err != nil {
			return errors.Wrap(err, "unpacker remove manifest")
		}
	}

	if err := u.inv.UpdateStatus(ctx, filesetID, record.UNPACKED); err != nil {
		return err
	}

	if err := u.pub.Pub(events.Channel, &message.Message{FilesetID: filesetID, Status: record.UNPACKED}); err != nil {
		_ = level.Warn(u.log).Log("msg", "publish unpacked event", "fileset", filesetID, "err", err)
	}

	_ = level.Info(u.log).Log("msg", "package placed", "fileset", filesetID, "dest", zone.Dir)
	return nil
}

func (u *Unpacker) untar(ctx context.Context, tarPath string, dest string) error {
	f, err := os.Open(tarPath)
	if err != nil {
		return errors.Wrap(err, "unpacker open tar")
	}
	defer f.Close()

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &ValidationError{Path: tarPath, Reason: "corrupt tar stream: " + err.Error()}
		}

		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := filepath.Clean(hdr.Name)
		if filepath.IsAbs(name) || strings.HasPrefix(name, "..") {
			return &ValidationError{Path: tarPath, Reason: fmt.Sprintf("entry %q escapes destination", hdr.Name)}
		}

		if err := u.sink.Store(ctx, dest, name, tr); err != nil {
			return err
		}
	}

	return nil
}

func (u *Unpacker) move(ctx context.Context, tarPath string, dest string) error {
	f, err := os.Open(tarPath)
	if err != nil {
		return errors.Wrap(err, "unpacker open tar")
	}
	defer f.Close()

	return u.sink.Store(ctx, dest, filepath.Base(tarPath), f)
}

// parseTarballName splits <survey>_<fileset_id>_<suffix>.tar[.gz] into its
// survey and fileset ID.
func parseTarballName(name string) (string, string, error) {
	tokens := strings.Split(name, "_")
	if len(tokens) < 3 {
		return "", "", errors.Errorf("tarball name %q is not <survey>_<fileset_id>_<suffix>", name)
	}

	return tokens[0], tokens[len(tokens)-2], nil
}
