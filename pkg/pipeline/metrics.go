package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	descriptorsHarvested prometheus.Counter
	recordsUpserted      prometheus.Counter
	apiErrors            prometheus.Counter
	packagesFetched      prometheus.Counter
	bytesFetched         prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		descriptorsHarvested: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "descriptors_harvested_total",
			Help: "Remote tarball descriptors found during harvest.",
		}),
		recordsUpserted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "inventory_upserts_total",
			Help: "Inventory records written from fileset metadata.",
		}),
		apiErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Failed fileset metadata lookups.",
		}),
		packagesFetched: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "packages_fetched_total",
			Help: "Tarballs copied into the landing dir.",
		}),
		bytesFetched: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "bytes_fetched_total",
			Help: "Bytes transferred from the remote.",
		}),
	}
}
