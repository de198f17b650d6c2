package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/nicolagi/uploads/objects"
	"github.com/nicolagi/uploads/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
)

func main() {
	defaultConfigFile := os.ExpandEnv("$HOME/lib/uploads/uploadserver.config")
	configFile := flag.String("config", defaultConfigFile, "location of configuration file")
	flag.Parse()

	conf, err := loadConfig(*configFile)
	if err != nil {
		if !os.IsNotExist(err) || *configFile != defaultConfigFile {
			log.WithFields(log.Fields{
				"err":  err,
				"path": *configFile,
			}).Fatal("Could not load configuration")
		}
		log.WithField("path", *configFile).Info("No configuration file, using defaults")
		conf = new(config)
	}
	conf.applyDefaultsForMissingProperties()
	if err := conf.validate(); err != nil {
		log.WithFields(log.Fields{
			"err":  err,
			"path": *configFile,
		}).Fatal("Invalid configuration")
	}

	if conf.Debug {
		log.SetLevel(log.DebugLevel)
	}

	// No ShutdownCleanup: it would exit on interrupt before the server drains.
	if err := agent.Listen(agent.Options{}); err != nil {
		log.WithField("err", err).Warn("Could not start gops agent")
	} else {
		defer agent.Close()
	}

	backend, closeBackend, err := openBackend(conf)
	if err != nil {
		log.WithFields(log.Fields{
			"err":  err,
			"type": conf.Backend.Type,
		}).Fatal("Could not open backend")
	}
	defer closeBackend()
	log.WithFields(log.Fields{
		"type": conf.Backend.Type,
		"path": conf.Backend.Path,
	}).Info("Backend ready")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	// Validated above.
	compression, _ := objects.ParseCompression(conf.Compression)
	store := objects.New(backend,
		objects.WithChunkSize(conf.ChunkSize),
		objects.WithCompression(compression),
		objects.WithRegisterer(reg),
	)
	srv := &http.Server{
		Addr:              conf.Listen,
		Handler:           web.New(store, web.WithRegistry(reg)).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ListenAndServe returns as soon as Shutdown is called; wait for in-flight
	// requests before closing the backend.
	done := make(chan struct{})
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer close(done)
		sig := <-c
		log.WithField("signal", sig).Info("Shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithField("err", err).Warn("Could not shut down the server cleanly")
		}
	}()

	log.WithField("addr", conf.Listen).Info("Listening")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.WithField("err", err).Error("Could not listen and serve")
		return
	}
	<-done
}
