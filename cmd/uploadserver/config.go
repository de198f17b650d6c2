package main

import (
	"fmt"
	"os"

	"github.com/nicolagi/uploads/objects"
	"github.com/rogpeppe/rjson"
)

type config struct {
	Listen      string `json:"listen"`
	Debug       bool   `json:"debug"`
	ChunkSize   int    `json:"chunk_size"`
	Compression string `json:"compression"`

	Backend struct {
		Type string `json:"type"`

		// Properties for "bolt" and "disk" types.
		Path string `json:"path"`

		// Property for "bolt" type.
		Bucket string `json:"bucket"`

		// Properties for "s3" type.
		Profile           string  `json:"profile"`
		Region            string  `json:"region"`
		S3Bucket          string  `json:"s3_bucket"`
		Prefix            string  `json:"prefix"`
		RequestsPerSecond float64 `json:"requests_per_second"`
	} `json:"backend"`
}

func loadConfig(pathname string) (*config, error) {
	f, err := os.Open(pathname)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var c *config
	err = rjson.NewDecoder(f).Decode(&c)
	if err == nil && c == nil {
		c = new(config)
	}
	return c, err
}

func (c *config) applyDefaultsForMissingProperties() {
	if c.Listen == "" {
		c.Listen = ":5000"
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = objects.DefaultChunkSize
	}
	if c.Backend.Type == "" {
		c.Backend.Type = "bolt"
	}
	if c.Backend.Path == "" {
		switch c.Backend.Type {
		case "bolt":
			c.Backend.Path = "$HOME/lib/uploads/uploads.db"
		case "disk":
			c.Backend.Path = "$HOME/lib/uploads/data"
		}
	}
	c.Backend.Path = os.ExpandEnv(c.Backend.Path)
	if c.Backend.Prefix == "" {
		c.Backend.Prefix = "uploads/"
	}
}

func (c *config) validate() error {
	if c.ChunkSize > objects.MaxChunkSize {
		return fmt.Errorf("chunk_size %d exceeds %d", c.ChunkSize, objects.MaxChunkSize)
	}
	if _, err := objects.ParseCompression(c.Compression); err != nil {
		return err
	}
	switch c.Backend.Type {
	case "bolt", "disk", "memory":
	case "s3":
		if c.Backend.S3Bucket == "" || c.Backend.Region == "" {
			return fmt.Errorf("backend type %q requires s3_bucket and region", c.Backend.Type)
		}
	default:
		return fmt.Errorf("unknown backend type: %q", c.Backend.Type)
	}
	return nil
}
