package pg

import (
	"context"
	"time"

	pgcfg "github.com/ewhitman/davit/pkg/inventory/config/pg"
	"github.com/ewhitman/davit/pkg/inventory/record"
	"github.com/go-kit/log"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type Store struct {
	cfg  pgcfg.Config
	log  log.Logger
	conn *pgx.Conn
}

func NewStore(ctx context.Context, cfg pgcfg.Config, log log.Logger) (*Store, error) {
	conn, err := pgx.Connect(ctx, cfg.Conn.String())
	if err != nil {
		return nil, errors.Wrap(err, "pg inventory store init conn")
	}

	q := `create table if not exists public.datasets
	(fileset_id text primary key, cruise_id text not null, vessel_name text not null,
	instrument_name text not null, instrument_type text not null, data_type text not null,
	size_bytes bigint not null, file_count integer not null, package_path text not null,
	source_url text not null, date_dir text not null, status text not null,
	run_id text not null, updated_at timestamptz not null);`
	if _, err := conn.Exec(ctx, q); err != nil {
		return nil, errors.Wrap(err, "pg inventory store init datasets table")
	}

	return &Store{
		cfg:  cfg,
		log:  log,
		conn: conn,
	}, nil
}

func (s *Store) Upsert(ctx context.Context, rec *record.Record) error {
	q := `insert into datasets (fileset_id, cruise_id, vessel_name, instrument_name, instrument_type,
	data_type, size_bytes, file_count, package_path, source_url, date_dir, status, run_id, updated_at)
	values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
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

	_, err := s.conn.Exec(ctx, q,
		rec.FilesetID, rec.CruiseID, rec.VesselName, rec.InstrumentName, rec.InstrumentType,
		rec.DataType, rec.SizeBytes, rec.FileCount, rec.PackagePath, rec.SourceURL,
		rec.DateDir, rec.Status, rec.RunID, rec.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "pg inventory store upsert record")
	}

	return nil
}

func (s *Store) GetRecord(ctx context.Context, filesetID string) (*record.Record, bool, error) {
	q := selectRecords + ` where fileset_id = $1;`

	rec := record.Record{}
	row := s.conn.QueryRow(ctx, q, filesetID)
	if err := scanRecord(row, &rec); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "pg inventory store get record")
	}

	return &rec, true, nil
}

func (s *Store) GetAllRecords(ctx context.Context) ([]*record.Record, error) {
	q := selectRecords + ` order by date_dir, fileset_id;`
	return s.queryRecords(ctx, q)
}

func (s *Store) GetRecordsByStatus(ctx context.Context, status string) ([]*record.Record, error) {
	q := selectRecords + ` where status = $1 order by date_dir, fileset_id;`
	return s.queryRecords(ctx, q, status)
}

func (s *Store) GetCandidates(ctx context.Context, dataType string) ([]*record.Record, error) {
	q := selectRecords + ` where status = $1 and data_type ilike $2 order by date_dir, fileset_id;`
	return s.queryRecords(ctx, q, record.PENDING, dataType)
}

func (s *Store) UpdateStatus(ctx context.Context, filesetID string, status string) error {
	q := `update datasets set status = $2, updated_at = $3 where fileset_id = $1;`

	_, err := s.conn.Exec(ctx, q, filesetID, status, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "pg inventory store update status")
	}

	return nil
}

func (s *Store) ListDateDirs(ctx context.Context) ([]string, error) {
	q := `select distinct date_dir from datasets;`

	rows, err := s.conn.Query(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "pg inventory store query date dirs")
	}
	defer rows.Close()

	dirs := make([]string, 0)
	for rows.Next() {
		var dir string
		if err := rows.Scan(&dir); err != nil {
			return nil, errors.Wrap(err, "pg inventory store scan date dirs")
		}
		dirs = append(dirs, dir)
	}

	return dirs, rows.Err()
}

func (s *Store) Dispose(ctx context.Context) error {
	if err := s.conn.Close(ctx); err != nil {
		return errors.Wrap(err, "pg inventory store close connection")
	}

	return nil
}

const selectRecords = `select fileset_id, cruise_id, vessel_name, instrument_name, instrument_type,
	data_type, size_bytes, file_count, package_path, source_url, date_dir, status, run_id, updated_at
	from datasets`

func (s *Store) queryRecords(ctx context.Context, q string, args ...any) ([]*record.Record, error) {
	rows, err := s.conn.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "pg inventory store query records")
	}
	defer rows.Close()

	recs := make([]*record.Record, 0)
	for rows.Next() {
		rec := record.Record{}
		if err := scanRecord(rows, &rec); err != nil {
			return nil, errors.Wrap(err, "pg inventory store scan records")
		}
		recs = append(recs, &rec)
	}

	return recs, rows.Err()
}

func scanRecord(row pgx.Row, rec *record.Record) error {
	return row.Scan(&rec.FilesetID, &rec.CruiseID, &rec.VesselName, &rec.InstrumentName,
		&rec.InstrumentType, &rec.DataType, &rec.SizeBytes, &rec.FileCount, &rec.PackagePath,
		&rec.SourceURL, &rec.DateDir, &rec.Status, &rec.RunID, &rec.UpdatedAt)
}
