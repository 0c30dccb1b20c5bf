// Package pipeline wires the four pulldown stages together: harvest,
// inventory build, selection, fetch and unpack. Every collaborator is an
// explicit dependency; the pipeline owns no globals.
package pipeline

import (
	"context"
	"io"

	"github.com/ewhitman/davit/pkg/datatype"
	"github.com/ewhitman/davit/pkg/events"
	"github.com/ewhitman/davit/pkg/events/message"
	"github.com/ewhitman/davit/pkg/fetcher"
	"github.com/ewhitman/davit/pkg/harvester"
	"github.com/ewhitman/davit/pkg/inventory"
	invconfig "github.com/ewhitman/davit/pkg/inventory/config"
	"github.com/ewhitman/davit/pkg/inventory/record"
	"github.com/ewhitman/davit/pkg/landing"
	"github.com/ewhitman/davit/pkg/rvdata"
	"github.com/ewhitman/davit/pkg/selector"
	"github.com/ewhitman/davit/pkg/sftpconn"
	"github.com/ewhitman/davit/pkg/sink"
	"github.com/ewhitman/davit/pkg/unpacker"
	gklog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	// Operator overrides, set from CLI flags.
	DataType  string `yaml:"-"`
	SelectAll bool   `yaml:"-"`
	NoUnpack  bool   `yaml:"-"`

	SFTP      sftpconn.Config  `yaml:"sftp"`
	Harvester harvester.Config `yaml:"harvester"`
	RVData    rvdata.Config    `yaml:"rvdata"`
	Inventory invconfig.Config `yaml:"inventory"`
	Landing   landing.Config   `yaml:"landing"`
	Fetcher   fetcher.Config   `yaml:"fetcher"`
	Unpacker  unpacker.Config  `yaml:"unpacker"`
	Sink      sink.Config      `yaml:"sink"`
	Events    events.Config    `yaml:"events"`
}

type Pipeline struct {
	cfg   Config
	log   gklog.Logger
	runID string

	inv    *inventory.Inventory
	client *rvdata.Client
	mapper *landing.Mapper
	pub    events.Publisher
	reg    prometheus.Registerer

	metrics *metrics
}

func New(ctx context.Context, cfg Config, reg prometheus.Registerer, log gklog.Logger) (*Pipeline, error) {
	runID := uuid.NewString()
	log = gklog.With(log, "service", "pipeline", "run_id", runID)

	reg = prometheus.WrapRegistererWithPrefix("davit_", reg)

	inv, err := inventory.New(ctx, cfg.Inventory, log)
	if err != nil {
		return nil, errors.Wrap(err, "pipeline connect to inventory")
	}

	pub, err := events.NewPublisher(cfg.Events, log)
	if err != nil {
		inv.Dispose(ctx)
		return nil, errors.Wrap(err, "pipeline connect to events")
	}

	return &Pipeline{
		cfg:     cfg,
		log:     log,
		runID:   runID,
		inv:     inv,
		client:  rvdata.NewClient(cfg.RVData),
		mapper:  landing.NewMapper(cfg.Landing),
		pub:     pub,
		reg:     reg,
		metrics: newMetrics(reg),
	}, nil
}

// Run executes the four stages once, strictly forward. in and out carry the
// operator prompts.
func (p *Pipeline) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	conn, err := sftpconn.Dial(p.cfg.SFTP)
	if err != nil {
		return &harvester.ConnectionError{Err: err}
	}
	defer func() { _ = conn.Close() }()

	if err := p.harvest(ctx, conn); err != nil {
		return err
	}

	picked, err := p.selection(ctx, in, out)
	if err != nil {
		return err
	}

	if len(picked) == 0 {
		_ = level.Info(p.log).Log("msg", "nothing selected, nothing to fetch")
		return nil
	}

	if err := p.fetch(ctx, conn, picked); err != nil {
		return err
	}

	if p.cfg.NoUnpack {
		_ = level.Info(p.log).Log("msg", "skipping unpack stage")
		return nil
	}

	return p.Sort(ctx, p.cfg.Landing.Dir)
}

// Sort is the standalone validate+unpack+place pass over a landing dir.
func (p *Pipeline) Sort(ctx context.Context, landingDir string) error {
	writer, err := sink.NewWriter(p.cfg.Sink, p.log)
	if err != nil {
		return errors.Wrap(err, "pipeline connect to sink")
	}

	u := unpacker.New(p.cfg.Unpacker, p.mapper, writer, p.inv, p.pub, p.reg, p.log)
	return u.Run(ctx, landingDir)
}

// Inventory exposes the store for the inventory render command.
func (p *Pipeline) Inventory() *inventory.Inventory {
	return p.inv
}

func (p *Pipeline) Close(ctx context.Context) {
	p.inv.Dispose(ctx)
}

// harvest lists the remote and upserts one inventory record per descriptor.
func (p *Pipeline) harvest(ctx context.Context, conn *sftpconn.Conn) error {
	known, err := p.inv.ListDateDirs(ctx)
	if err != nil {
		return err
	}

	h := harvester.New(p.cfg.Harvester, conn.Client(), p.log)
	descs, err := h.Harvest(ctx, known)
	if err != nil {
		return err
	}

	return p.buildInventory(ctx, descs)
}

// buildInventory queries fileset metadata per descriptor and upserts the
// result. A failing API lookup skips that descriptor and keeps going.
func (p *Pipeline) buildInventory(ctx context.Context, descs []harvester.Descriptor) error {
	p.metrics.descriptorsHarvested.Add(float64(len(descs)))

	for _, desc := range descs {
		fs, err := p.client.GetFileset(ctx, desc.FilesetID)
		if err != nil {
			p.metrics.apiErrors.Inc()
			_ = level.Warn(p.log).Log("msg", "fileset metadata lookup failed, skipping descriptor",
				"fileset", desc.FilesetID, "stage", "inventory", "err", err)
			continue
		}

		rec := record.New(desc.FilesetID, desc.DateDir, desc.Path, p.runID)
		rec.CruiseID = fs.CruiseID
		rec.VesselName = fs.VesselName
		rec.InstrumentName = fs.MakeModelName
		rec.InstrumentType = fs.DeviceName
		rec.DataType = datatype.Classify(fs.DeviceName, fs.MakeModelName)
		rec.SizeBytes = fs.TotalBytes
		rec.FileCount = fs.Files
		rec.SourceURL = fs.URL

		if err := p.inv.Upsert(ctx, rec); err != nil {
			return err
		}

		p.metrics.recordsUpserted.Inc()
		_ = level.Info(p.log).Log("msg", "updated inventory with dataset",
			"fileset", rec.FilesetID, "cruise", rec.CruiseID, "instrument", rec.InstrumentName)
	}

	return nil
}

func (p *Pipeline) selection(ctx context.Context, in io.Reader, out io.Writer) ([]*record.Record, error) {
	budget, err := p.mapper.Budget()
	if err != nil {
		return nil, err
	}
	if budget == 0 {
		return nil, errors.New("not enough free space on the landing filesystem")
	}

	sel := selector.New(in, out, p.log)

	dataType := p.cfg.DataType
	if dataType == "" {
		dataType, err = sel.PromptDataType()
		if err != nil {
			return nil, err
		}
	}

	recs, err := p.inv.GetCandidates(ctx, dataType)
	if err != nil {
		return nil, err
	}

	cands := selector.Candidates(recs, budget)
	if p.cfg.SelectAll {
		return cands, nil
	}

	return sel.PromptPackages(cands)
}

func (p *Pipeline) fetch(ctx context.Context, conn *sftpconn.Conn, picked []*record.Record) error {
	f := fetcher.New(p.cfg.Fetcher, fetcher.SFTPRemote{Client: conn.Client()}, p.log)

	for _, rec := range picked {
		if err := p.inv.UpdateStatus(ctx, rec.FilesetID, record.SELECTED); err != nil {
			return err
		}

		if err := f.Fetch(ctx, rec, p.cfg.Landing.Dir); err != nil {
			_ = level.Error(p.log).Log("msg", "fetch failed",
				"fileset", rec.FilesetID, "stage", "fetch", "err", err)
			continue
		}

		if err := p.inv.UpdateStatus(ctx, rec.FilesetID, record.FETCHED); err != nil {
			return err
		}

		p.metrics.packagesFetched.Inc()
		if err := p.pub.Pub(events.Channel, &message.Message{FilesetID: rec.FilesetID, Status: record.FETCHED}); err != nil {
			_ = level.Warn(p.log).Log("msg", "publish fetched event", "fileset", rec.FilesetID, "err", err)
		}
	}

	p.metrics.bytesFetched.Add(float64(f.BytesFetched()))
	return nil
}
