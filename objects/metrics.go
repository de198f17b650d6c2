package objects

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	objectsWritten prometheus.Counter
	objectsDeleted prometheus.Counter
	chunksWritten  prometheus.Counter
	bytesWritten   prometheus.Counter
	bytesRead      prometheus.Counter
	writeErrors    prometheus.Counter
	readErrors     prometheus.Counter
	openStreams    prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	counter := func(name, help string) prometheus.Counter {
		return register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uploads",
			Subsystem: "objects",
			Name:      name,
			Help:      help,
		})).(prometheus.Counter)
	}
	return &metrics{
		objectsWritten: counter("written_total", "Objects stored successfully."),
		objectsDeleted: counter("deleted_total", "Objects deleted."),
		chunksWritten:  counter("chunks_written_total", "Chunk records stored."),
		bytesWritten:   counter("written_bytes_total", "Raw bytes stored."),
		bytesRead:      counter("read_bytes_total", "Raw bytes streamed to readers."),
		writeErrors:    counter("write_errors_total", "Failed writes."),
		readErrors:     counter("read_errors_total", "Missing or corrupt chunks found while streaming."),
		openStreams: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "uploads",
			Subsystem: "objects",
			Name:      "open_streams",
			Help:      "Read streams not yet closed.",
		})).(prometheus.Gauge),
	}
}

// register returns the collector already registered under the same name, if
// any, so that several stores can share a registry.
func register(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}
