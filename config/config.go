// Package config loads the ragling configuration file and watches it for
// changes, handing out immutable snapshots by atomic reference swap.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EnrichmentFlags controls which optional enrichment passes run during
// chunking. Any change to these flags invalidates previously-indexed
// documents (see ConfigHash).
type EnrichmentFlags struct {
	ImageDescription bool `yaml:"image_description"`
	Code             bool `yaml:"code"`
	Formula          bool `yaml:"formula"`
	TableStructure   bool `yaml:"table_structure"`
}

// UserConfig is one entry in the configuration's user table.
type UserConfig struct {
	APIKey            string            `yaml:"api_key"`
	SystemCollections []string          `yaml:"system_collections"`
	PathMappings      map[string]string `yaml:"path_mappings"`
}

// Defaults holds the chunking defaults section of the config file.
type Defaults struct {
	ChunkSizeTokens    int `yaml:"chunk_size_tokens"`
	ChunkOverlapTokens int `yaml:"chunk_overlap_tokens"`
}

// Config is an immutable configuration snapshot. A Config value is never
// mutated after construction; reload produces a new snapshot.
type Config struct {
	// GroupName identifies the leader-election and index-database group
	// this process participates in.
	GroupName string `yaml:"group_name"`

	// GroupRoot is the filesystem root under which per-user directories
	// are discovered and watched for indexing.
	GroupRoot string `yaml:"group_root"`

	// IndexDBPath is the path to this group's embedded SQLite database.
	IndexDBPath string `yaml:"index_db_path"`

	// EmbeddingModel is the model id passed to the embedding service.
	EmbeddingModel string `yaml:"embedding_model"`

	// EmbeddingServiceHost is the base URL of the embedding service.
	// Empty means the embedding service's own default.
	EmbeddingServiceHost string `yaml:"embedding_service_host"`

	// EmbeddingDim is the fixed vector dimensionality for this database
	// instance.
	EmbeddingDim int `yaml:"embedding_dim"`

	Defaults   Defaults        `yaml:"defaults"`
	Enrichment EnrichmentFlags `yaml:"enrichment"`

	// Users maps user id to its record. Order is insignificant; iteration
	// order for auth resolution is handled by the auth package.
	Users map[string]UserConfig `yaml:"users"`

	// GlobalCollection, if non-empty, is part of every user's visible
	// collection set, right after the user's own collection.
	GlobalCollection string `yaml:"global_collection"`
}

// LockPath returns the path of this group's leader-election lock file,
// derived from IndexDBPath.
func (c Config) LockPath() string {
	return c.IndexDBPath + ".lock"
}

// Default returns a Config with sensible defaults for local use. Callers
// typically start from Default() and override fields via Load.
func Default() Config {
	return Config{
		GroupName:      "default",
		IndexDBPath:    defaultDBPath(),
		EmbeddingModel: "nomic-embed-text",
		EmbeddingDim:   768,
		Defaults: Defaults{
			ChunkSizeTokens:    512,
			ChunkOverlapTokens: 64,
		},
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ragling.db"
	}
	return filepath.Join(home, ".ragling", "ragling.db")
}

// Load reads and parses a YAML configuration file at path, merging it
// onto Default(). Parse failures are returned to the caller unchanged so
// a watcher can retain its previous snapshot.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Hash returns a short, stable, deterministic digest over the enrichment
// flags plus the embedding model/backend identifier. Any change to these
// fields invalidates previously-indexed documents. It is a 16-hex-digit
// string (the leading 8 bytes of a SHA-256 digest, hex-encoded).
func (c Config) Hash() string {
	h := sha256.New()
	fmt.Fprintf(h, "%t|%t|%t|%t|%s|%s",
		c.Enrichment.ImageDescription, c.Enrichment.Code,
		c.Enrichment.Formula, c.Enrichment.TableStructure,
		c.EmbeddingModel, c.EmbeddingServiceHost,
	)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:8])
}
