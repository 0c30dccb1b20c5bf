package sink

import (
	"context"
	"flag"
	"io"

	"github.com/ewhitman/davit/pkg/sink/fs"
	"github.com/ewhitman/davit/pkg/sink/minio"
	"github.com/go-kit/log"
	"github.com/pkg/errors"
)

type Config struct {
	Store string       `yaml:"store"`
	Minio minio.Config `yaml:"minio"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.Store, flagPrefix+"store", "fs", `Destination backend extracted content is placed into.`)
	c.Minio.RegisterFlags(flagPrefix, f)
}

// Writer places one file under a destination directory (or object prefix).
type Writer interface {
	Store(ctx context.Context, dest string, name string, r io.Reader) error
}

func NewWriter(cfg Config, log log.Logger) (Writer, error) {
	switch cfg.Store {
	case "fs", "":
		return fs.NewWriter(log), nil
	case "minio":
		return minio.NewWriter(cfg.Minio, minio.Bucket, log)
	default:
		return nil, errors.New("invalid store for sink writer")
	}
}
