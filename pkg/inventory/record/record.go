package record

import (
	"time"

	"github.com/dustin/go-humanize"
)

const (
	PENDING  = "PENDING"
	SELECTED = "SELECTED"
	FETCHED  = "FETCHED"
	UNPACKED = "UNPACKED"
)

func IsValidStatus(status string) bool {
	switch status {
	case PENDING, SELECTED, FETCHED, UNPACKED:
		return true
	}
	return false
}

// Record is one discoverable data package: an SFTP listing entry enriched
// with rvdata fileset metadata and tracked through the pulldown lifecycle.
type Record struct {
	FilesetID      string
	CruiseID       string
	VesselName     string
	InstrumentName string
	InstrumentType string
	DataType       string
	SizeBytes      int64
	FileCount      int
	PackagePath    string
	SourceURL      string
	DateDir        string
	Status         string
	RunID          string
	UpdatedAt      time.Time
}

func New(filesetID string, dateDir string, packagePath string, runID string) *Record {
	return &Record{
		FilesetID:   filesetID,
		DateDir:     dateDir,
		PackagePath: packagePath,
		RunID:       runID,
		Status:      PENDING,
		UpdatedAt:   time.Now().UTC(),
	}
}

func (r *Record) HumanSize() string {
	return humanize.IBytes(uint64(r.SizeBytes))
}
