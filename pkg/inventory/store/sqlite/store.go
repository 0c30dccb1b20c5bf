package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	sqlitecfg "github.com/ewhitman/davit/pkg/inventory/config/sqlite"
	"github.com/ewhitman/davit/pkg/inventory/record"
	"github.com/go-kit/log"
	"github.com/pkg/errors"

	_ "modernc.org/sqlite"
)

const schema = `create table if not exists datasets (
	fileset_id text primary key,
	cruise_id text not null,
	vessel_name text not null,
	instrument_name text not null,
	instrument_type text not null,
	data_type text not null,
	size_bytes integer not null,
	file_count integer not null,
	package_path text not null,
	source_url text not null,
	date_dir text not null,
	status text not null,
	run_id text not null,
	updated_at timestamp not null
);`

type Store struct {
	cfg sqlitecfg.Config
	log log.Logger
	db  *sql.DB
}

func NewStore(ctx context.Context, cfg sqlitecfg.Config, log log.Logger) (*Store, error) {
	if cfg.Path == "" {
		cfg.Path = sqlitecfg.DefaultPath
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "sqlite inventory store create data dir")
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite inventory store open")
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, errors.Wrap(err, "sqlite inventory store init datasets table")
	}

	return &Store{
		cfg: cfg,
		log: log,
		db:  db,
	}, nil
}

func (s *Store) Upsert(ctx context.Context, rec *record.Record) error {
	q := `insert into datasets (fileset_id, cruise_id, vessel_name, instrument_name, instrument_type,
	data_type, size_bytes, file_count, package_path, source_url, date_dir, status, run_id, updated_at)
	values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	on conflict (fileset_id) do update set
	cruise_id = excluded.cruise_id,
	vessel_name = excluded.vessel_name,
	instrument_name = excluded.instrument_name,
	instrument_type = excluded.instrument_type,
	data_type = excluded.data_type,
	size_bytes = excluded.size_bytes,
	file_count = excluded.file_count,
	package_path = excluded.package_path,
	source_url = excluded.source_url,
	date_dir = excluded.date_dir,
	run_id = excluded.run_id,
	updated_at = excluded.updated_at;`

	_, err := s.db.ExecContext(ctx, q,
		rec.FilesetID, rec.CruiseID, rec.VesselName, rec.InstrumentName, rec.InstrumentType,
		rec.DataType, rec.SizeBytes, rec.FileCount, rec.PackagePath, rec.SourceURL,
		rec.DateDir, rec.Status, rec.RunID, rec.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "sqlite inventory store upsert record")
	}

	return nil
}

func (s *Store) GetRecord(ctx context.Context, filesetID string) (*record.Record, bool, error) {
	q := selectRecords + ` where fileset_id = ?;`

	rec := record.Record{}
	row := s.db.QueryRowContext(ctx, q, filesetID)
	if err := scanRecordFromRow(row, &rec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "sqlite inventory store get record")
	}

	return &rec, true, nil
}

func (s *Store) GetAllRecords(ctx context.Context) ([]*record.Record, error) {
	q := selectRecords + ` order by date_dir, fileset_id;`
	return s.queryRecords(ctx, q)
}

func (s *Store) GetRecordsByStatus(ctx context.Context, status string) ([]*record.Record, error) {
	q := selectRecords + ` where status = ? order by date_dir, fileset_id;`
	return s.queryRecords(ctx, q, status)
}

func (s *Store) GetCandidates(ctx context.Context, dataType string) ([]*record.Record, error) {
	q := selectRecords + ` where status = ? and data_type like ? order by date_dir, fileset_id;`
	return s.queryRecords(ctx, q, record.PENDING, dataType)
}

func (s *Store) UpdateStatus(ctx context.Context, filesetID string, status string) error {
	q := `update datasets set status = ?, updated_at = ? where fileset_id = ?;`

	_, err := s.db.ExecContext(ctx, q, status, time.Now().UTC(), filesetID)
	if err != nil {
		return errors.Wrap(err, "sqlite inventory store update status")
	}

	return nil
}

func (s *Store) ListDateDirs(ctx context.Context) ([]string, error) {
	q := `select distinct date_dir from datasets;`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite inventory store query date dirs")
	}
	defer rows.Close()

	dirs := make([]string, 0)
	for rows.Next() {
		var dir string
		if err := rows.Scan(&dir); err != nil {
			return nil, errors.Wrap(err, "sqlite inventory store scan date dirs")
		}
		dirs = append(dirs, dir)
	}

	return dirs, rows.Err()
}

func (s *Store) Dispose(ctx context.Context) error {
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "sqlite inventory store close")
	}

	return nil
}

const selectRecords = `select fileset_id, cruise_id, vessel_name, instrument_name, instrument_type,
	data_type, size_bytes, file_count, package_path, source_url, date_dir, status, run_id, updated_at
	from datasets`

func (s *Store) queryRecords(ctx context.Context, q string, args ...any) ([]*record.Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite inventory store query records")
	}
	defer rows.Close()

	recs := make([]*record.Record, 0)
	for rows.Next() {
		rec := record.Record{}
		if err := scanRecordFromRows(rows, &rec); err != nil {
			return nil, errors.Wrap(err, "sqlite inventory store scan records")
		}
		recs = append(recs, &rec)
	}

	return recs, rows.Err()
}

func scanRecordFromRows(rows *sql.Rows, rec *record.Record) error {
	return rows.Scan(&rec.FilesetID, &rec.CruiseID, &rec.VesselName, &rec.InstrumentName,
		&rec.InstrumentType, &rec.DataType, &rec.SizeBytes, &rec.FileCount, &rec.PackagePath,
		&rec.SourceURL, &rec.DateDir, &rec.Status, &rec.RunID, &rec.UpdatedAt)
}

func scanRecordFromRow(row *sql.Row, rec *record.Record) error {
	return row.Scan(&rec.FilesetID, &rec.CruiseID, &rec.VesselName, &rec.InstrumentName,
		&rec.InstrumentType, &rec.DataType, &rec.SizeBytes, &rec.FileCount, &rec.PackagePath,
		&rec.SourceURL, &rec.DateDir, &rec.Status, &rec.RunID, &rec.UpdatedAt)
}
