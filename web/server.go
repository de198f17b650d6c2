// Package web serves the upload page and the JSON and image endpoints on
// top of an objects.Store.
package web

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nicolagi/uploads/objects"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

//go:embed templates/*.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type Option func(*options)

type options struct {
	registry *prometheus.Registry
	logger   *log.Entry
}

// WithRegistry exposes the registry's metrics at /metrics and adds the
// server's own request metrics to it.
func WithRegistry(value *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = value
	}
}

func WithLogger(value *log.Entry) Option {
	return func(o *options) {
		o.logger = value
	}
}

type Server struct {
	objects  *objects.Store
	opts     options
	requests *prometheus.CounterVec
	h        http.Handler
}

func New(store *objects.Store, opts ...Option) *Server {
	s := &Server{objects: store}
	s.opts.logger = log.NewEntry(log.StandardLogger())
	for _, o := range opts {
		o(&s.opts)
	}
	s.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "uploads",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"method", "route", "code"})
	if s.opts.registry != nil {
		s.opts.registry.MustRegister(s.requests)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(overrideMethod)
	r.Use(s.logRequests)

	r.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.opts.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.registry, promhttp.HandlerOpts{}))
	}
	r.Get("/", s.index)
	r.Post("/upload", s.upload)
	r.Get("/files", s.listFiles)
	r.Get("/files/{filename}", s.getFile)
	r.Delete("/files/{filename}", s.deleteFile)
	r.Get("/image/{filename}", s.image)

	s.h = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.h
}
