// Package landing maps route keys to destination zones and guards free
// space on the filesystems those zones live on.
package landing

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	bytesPerGB = 1024 * 1024 * 1024

	// DefaultCushionGB keeps a terabyte free on the landing filesystem so a
	// pulldown can never run it dry.
	DefaultCushionGB = 1024
)

type Zone struct {
	Dir       string `yaml:"dir"`
	Untar     bool   `yaml:"untar"`
	MinFreeGB int64  `yaml:"min_free_gb"`
}

type Config struct {
	Dir       string          `yaml:"dir"`
	CushionGB int64           `yaml:"cushion_gb"`
	Zones     map[string]Zone `yaml:"zones"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.Dir, flagPrefix+"dir", "", `Local landing directory tarballs are fetched into`)
	f.Int64Var(&c.CushionGB, flagPrefix+"cushion-gb", DefaultCushionGB, `Free space cushion kept on the landing filesystem; negative disables it`)
}

// UnmappedTypeError means a record's route key has no configured zone. The
// tarball stays where it is rather than being dropped somewhere silently.
type UnmappedTypeError struct {
	RouteKey string
}

func (e *UnmappedTypeError) Error() string {
	return fmt.Sprintf("no landing zone mapped for data type %q", e.RouteKey)
}

type Mapper struct {
	cfg Config
}

func NewMapper(cfg Config) *Mapper {
	if cfg.CushionGB == 0 {
		cfg.CushionGB = DefaultCushionGB
	}

	return &Mapper{cfg: cfg}
}

// Resolve renders the zone for a route key, substituting the {ship} and
// {survey} placeholders in the zone dir template.
func (m *Mapper) Resolve(routeKey string, ship string, survey string) (Zone, error) {
	zone, ok := m.cfg.Zones[routeKey]
	if !ok {
		return Zone{}, &UnmappedTypeError{RouteKey: routeKey}
	}

	zone.Dir = strings.NewReplacer(
		"{ship}", strings.ToLower(ship),
		"{survey}", survey,
	).Replace(zone.Dir)

	return zone, nil
}

// Budget is the number of bytes available for new pulldowns on the landing
// filesystem, after the configured cushion. The landing dir is created if it
// does not exist yet, so a first run can statfs it.
func (m *Mapper) Budget() (int64, error) {
	if err := os.MkdirAll(m.cfg.Dir, 0o755); err != nil {
		return 0, errors.Wrap(err, "create landing dir")
	}

	free, err := FreeBytes(m.cfg.Dir)
	if err != nil {
		return 0, err
	}

	cushion := m.cfg.CushionGB
	if cushion < 0 {
		cushion = 0
	}

	budget := free - cushion*bytesPerGB
	if budget < 0 {
		budget = 0
	}

	return budget, nil
}

// CheckSpace verifies a zone's filesystem has at least needed bytes plus the
// zone's own minimum free space.
func (m *Mapper) CheckSpace(zone Zone, needed int64) error {
	free, err := FreeBytes(zone.Dir)
	if err != nil {
		return err
	}

	required := needed + zone.MinFreeGB*bytesPerGB
	if free < required {
		return errors.Errorf("not enough free space in %s: %s available, %s required",
			zone.Dir, humanize.IBytes(uint64(free)), humanize.IBytes(uint64(required)))
	}

	return nil
}

func FreeBytes(dir string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, errors.Wrapf(err, "statfs %s", dir)
	}

	return int64(st.Bavail) * st.Bsize, nil
}
