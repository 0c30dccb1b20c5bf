package store

import (
	"context"

	"github.com/ewhitman/davit/pkg/inventory/config"
	"github.com/ewhitman/davit/pkg/inventory/record"
	"github.com/ewhitman/davit/pkg/inventory/store/pg"
	"github.com/ewhitman/davit/pkg/inventory/store/sqlite"
	"github.com/go-kit/log"
	"github.com/pkg/errors"
)

type Store interface {
	Upsert(ctx context.Context, rec *record.Record) error
	GetRecord(ctx context.Context, filesetID string) (*record.Record, bool, error)
	GetAllRecords(ctx context.Context) ([]*record.Record, error)
	GetRecordsByStatus(ctx context.Context, status string) ([]*record.Record, error)
	GetCandidates(ctx context.Context, dataType string) ([]*record.Record, error)
	UpdateStatus(ctx context.Context, filesetID string, status string) error
	ListDateDirs(ctx context.Context) ([]string, error)
	Dispose(ctx context.Context) error
}

func NewStore(ctx context.Context, cfg config.Config, log log.Logger) (Store, error) {
	switch cfg.Store {
	case "sqlite", "":
		return sqlite.NewStore(ctx, cfg.Sqlite, log)
	case "pg":
		return pg.NewStore(ctx, cfg.Pg, log)
	default:
		return nil, errors.New("invalid store in config")
	}
}
