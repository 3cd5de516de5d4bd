// Package config loads the service configuration from an optional HCL file
// with environment overrides.
//
//	listen = ":8443"
//	domain = "backend.example.com"
//
//	tls {
//	  cert_file = "/etc/letsencrypt/live/backend.example.com/fullchain.pem"
//	  key_file  = "/etc/letsencrypt/live/backend.example.com/privkey.pem"
//	}
//
//	graph {
//	  backend  = "neo4j"
//	  uri      = "neo4j+s://graph.example.com:7687"
//	  user     = "neo4j"
//	  password = env.NEO4J_PASSWORD
//	}
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"

	"github.com/agentic-research/genframe/internal/graph"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Listen  string         `hcl:"listen,optional"`
	Domain  string         `hcl:"domain,optional"`
	TLS     *TLSConfig     `hcl:"tls,block"`
	Graph   *GraphConfig   `hcl:"graph,block"`
	Storage *StorageConfig `hcl:"storage,block"`
	Log     *LogConfig     `hcl:"log,block"`
}

type TLSConfig struct {
	CertFile string `hcl:"cert_file,optional"`
	KeyFile  string `hcl:"key_file,optional"`
}

type GraphConfig struct {
	Backend    string `hcl:"backend,optional"`
	URI        string `hcl:"uri,optional"`
	User       string `hcl:"user,optional"`
	Password   string `hcl:"password,optional"`
	SQLitePath string `hcl:"sqlite_path,optional"`
}

type StorageConfig struct {
	ViewsFile     string `hcl:"views_file,optional"`
	ArtifactsFile string `hcl:"artifacts_file,optional"`
	StagingDir    string `hcl:"staging_dir,optional"`
	ExtractRoot   string `hcl:"extract_root,optional"`
	MaxUploadMB   int    `hcl:"max_upload_mb,optional"`
	MaxExtractMB  int    `hcl:"max_extract_mb,optional"`
}

type LogConfig struct {
	Level  string `hcl:"level,optional"`
	Format string `hcl:"format,optional"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen: ":8443",
		TLS:    &TLSConfig{},
		Graph: &GraphConfig{
			Backend: "neo4j",
			URI:     "neo4j://localhost:7687",
			User:    "neo4j",
		},
		Storage: &StorageConfig{
			ViewsFile:     "Views.json",
			ArtifactsFile: "sample_old.json",
			StagingDir:    "uploads",
			ExtractRoot:   "Uploads",
			MaxUploadMB:   512,
			MaxExtractMB:  2048,
		},
		Log: &LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (skipped when empty), fills unset fields from Default,
// applies NEO4J_URI, NEO4J_USER and NEO4J_PASSWORD, and validates.
func Load(path string) (*Config, error) {
	return load(path, os.Environ())
}

func load(path string, environ []string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		ctx := &hcl.EvalContext{
			Variables: map[string]cty.Value{"env": envObject(environ)},
		}
		if err := hclsimple.DecodeFile(path, ctx, cfg); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	cfg.fillDefaults(Default())
	cfg.applyEnv(environ)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envObject(environ []string) cty.Value {
	vars := make(map[string]cty.Value, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok && k != "" {
			vars[k] = cty.StringVal(v)
		}
	}
	if len(vars) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(vars)
}

func (c *Config) fillDefaults(d *Config) {
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.TLS == nil {
		c.TLS = d.TLS
	}
	if c.Graph == nil {
		c.Graph = d.Graph
	} else {
		setDefault(&c.Graph.Backend, d.Graph.Backend)
		setDefault(&c.Graph.URI, d.Graph.URI)
		setDefault(&c.Graph.User, d.Graph.User)
	}
	if c.Storage == nil {
		c.Storage = d.Storage
	} else {
		setDefault(&c.Storage.ViewsFile, d.Storage.ViewsFile)
		setDefault(&c.Storage.ArtifactsFile, d.Storage.ArtifactsFile)
		setDefault(&c.Storage.StagingDir, d.Storage.StagingDir)
		setDefault(&c.Storage.ExtractRoot, d.Storage.ExtractRoot)
		if c.Storage.MaxUploadMB == 0 {
			c.Storage.MaxUploadMB = d.Storage.MaxUploadMB
		}
		if c.Storage.MaxExtractMB == 0 {
			c.Storage.MaxExtractMB = d.Storage.MaxExtractMB
		}
	}
	if c.Log == nil {
		c.Log = d.Log
	} else {
		setDefault(&c.Log.Level, d.Log.Level)
		setDefault(&c.Log.Format, d.Log.Format)
	}
}

func setDefault(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func (c *Config) applyEnv(environ []string) {
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || v == "" {
			continue
		}
		switch k {
		case "NEO4J_URI":
			c.Graph.URI = v
		case "NEO4J_USER":
			c.Graph.User = v
		case "NEO4J_PASSWORD":
			c.Graph.Password = v
		}
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Graph.Backend {
	case "neo4j":
		if c.Graph.URI == "" {
			return fmt.Errorf("%w: graph.uri is required for the neo4j backend", ErrInvalid)
		}
	case "sqlite":
		if c.Graph.SQLitePath == "" {
			return fmt.Errorf("%w: graph.sqlite_path is required for the sqlite backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown graph backend %q", ErrInvalid, c.Graph.Backend)
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return fmt.Errorf("%w: tls needs both cert_file and key_file", ErrInvalid)
	}
	if c.Storage.MaxUploadMB < 0 {
		return fmt.Errorf("%w: storage.max_upload_mb must be positive", ErrInvalid)
	}
	if c.Storage.MaxExtractMB < 0 {
		return fmt.Errorf("%w: storage.max_extract_mb must be positive", ErrInvalid)
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json", ErrInvalid)
	}
	return nil
}

// TLSEnabled reports whether the server should serve HTTPS.
func (c *Config) TLSEnabled() bool {
	return c.TLS.CertFile != "" && c.TLS.KeyFile != ""
}

// GraphOptions converts the graph block for graph.Open.
func (c *Config) GraphOptions() graph.Options {
	return graph.Options{
		Backend:    c.Graph.Backend,
		URI:        c.Graph.URI,
		User:       c.Graph.User,
		Password:   c.Graph.Password,
		SQLitePath: c.Graph.SQLitePath,
	}
}

// MaxUploadBytes is the upload size limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Storage.MaxUploadMB) << 20
}

// MaxExtractBytes caps how far one uploaded archive may expand on disk.
func (c *Config) MaxExtractBytes() int64 {
	return int64(c.Storage.MaxExtractMB) << 20
}
