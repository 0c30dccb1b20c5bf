package inventory

import (
	"context"

	"github.com/ewhitman/davit/pkg/inventory/config"
	"github.com/ewhitman/davit/pkg/inventory/record"
	"github.com/ewhitman/davit/pkg/inventory/store"
	"github.com/go-kit/log"
)

// Inventory is the persistent record of discoverable and fetched data
// packages, shared by every pipeline stage.
type Inventory struct {
	Cfg   config.Config
	Store store.Store
}

func New(ctx context.Context, cfg config.Config, log log.Logger) (*Inventory, error) {
	s, err := store.NewStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	inv := Inventory{
		Cfg:   cfg,
		Store: s,
	}
	return &inv, nil
}

func (i *Inventory) Upsert(ctx context.Context, rec *record.Record) error {
	return i.Store.Upsert(ctx, rec)
}

func (i *Inventory) GetRecord(ctx context.Context, filesetID string) (*record.Record, bool, error) {
	return i.Store.GetRecord(ctx, filesetID)
}

func (i *Inventory) GetAllRecords(ctx context.Context) ([]*record.Record, error) {
	return i.Store.GetAllRecords(ctx)
}

func (i *Inventory) GetRecordsByStatus(ctx context.Context, status string) ([]*record.Record, error) {
	return i.Store.GetRecordsByStatus(ctx, status)
}

func (i *Inventory) GetCandidates(ctx context.Context, dataType string) ([]*record.Record, error) {
	return i.Store.GetCandidates(ctx, dataType)
}

func (i *Inventory) UpdateStatus(ctx context.Context, filesetID string, status string) error {
	return i.Store.UpdateStatus(ctx, filesetID, status)
}

func (i *Inventory) ListDateDirs(ctx context.Context) ([]string, error) {
	return i.Store.ListDateDirs(ctx)
}

func (i *Inventory) Dispose(ctx context.Context) {
	_ = i.Store.Dispose(ctx)
}
