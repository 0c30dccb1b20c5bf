package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/pkg/errors"
)

type Writer struct {
	log log.Logger
}

func NewWriter(log log.Logger) *Writer {
	return &Writer{log: log}
}

func (w *Writer) Store(ctx context.Context, dest string, name string, r io.Reader) error {
	full := filepath.Join(dest, name)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errors.Wrap(err, "fs sink create dest dir")
	}

	f, err := os.Create(full)
	if err != nil {
		return errors.Wrap(err, "fs sink create file")
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "fs sink write file")
	}

	if err := f.Close(); err != nil {
		return errors.Wrap(err, "fs sink close file")
	}

	return nil
}
