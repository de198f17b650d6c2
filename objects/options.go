package objects

import (
	"crypto/rand"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// DefaultChunkSize is 255 KiB, which keeps a chunk record with its header
// under 256 KiB.
const DefaultChunkSize = 255 * 1024

// MaxChunkSize is the largest accepted chunk size. A write holds one chunk
// in memory, and chunk records store the raw length in 32 bits.
const MaxChunkSize = 64 << 20

type Option func(*options)

type options struct {
	chunkSize   int
	compression Compression
	random      io.Reader
	registerer  prometheus.Registerer
	logger      *log.Entry
	now         func() time.Time
}

// WithChunkSize sets the size objects are split into. Values not in
// (0, MaxChunkSize] are ignored.
func WithChunkSize(value int) Option {
	return func(o *options) {
		if value > 0 && value <= MaxChunkSize {
			o.chunkSize = value
		}
	}
}

func WithCompression(value Compression) Option {
	return func(o *options) {
		o.compression = value
	}
}

// WithRandom sets the source of filename tokens and ids. It must be safe
// for concurrent use. The default is crypto/rand.
func WithRandom(value io.Reader) Option {
	return func(o *options) {
		o.random = value
	}
}

// WithRegisterer registers the store's metrics. Without it metrics are
// still collected, but not exported.
func WithRegisterer(value prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = value
	}
}

func WithLogger(value *log.Entry) Option {
	return func(o *options) {
		o.logger = value
	}
}

func WithClock(value func() time.Time) Option {
	return func(o *options) {
		o.now = value
	}
}

func defaultOptions() options {
	return options{
		chunkSize:   DefaultChunkSize,
		compression: CompressionNone,
		random:      rand.Reader,
		logger:      log.NewEntry(log.StandardLogger()),
		now:         time.Now,
	}
}
