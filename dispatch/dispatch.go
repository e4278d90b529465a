// Package dispatch detects what kind of content a directory or file
// belongs to and routes it to the matching indexer.
package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// IndexerType names the kind of content an indexer handles.
type IndexerType string

const (
	TypeProject  IndexerType = "project"
	TypeCode     IndexerType = "code"
	TypeObsidian IndexerType = "obsidian"
	TypeEmail    IndexerType = "email"
	TypeCalibre  IndexerType = "calibre"
	TypeRSS      IndexerType = "rss"
	TypePrune    IndexerType = "prune"
)

// Document is one unit an Indexer produces: enough to drive the bridge
// and chunker plus the persistence keys. Content is the raw text the
// bridge should convert; an Indexer that declines a path (unsupported
// extension) returns no Documents rather than an error.
type Document struct {
	SourcePath    string
	Title         string
	SourceType    IndexerType
	Digest        string
	Content       string
	ExtraMetadata map[string]string
}

// Indexer converts a path into documents for one collection.
type Indexer interface {
	Index(ctx context.Context, path, collectionID string) ([]Document, error)
}

// ForType returns the Indexer responsible for a detected type.
func ForType(t IndexerType) Indexer {
	switch t {
	case TypeObsidian:
		return ObsidianIndexer{}
	case TypeCode:
		return CodeIndexer{}
	default:
		return ProjectIndexer{}
	}
}

// DetectDirectoryType inspects a directory's immediate marker files.
// An Obsidian vault marker (.obsidian/) takes precedence over a git
// marker (.git/) at the same level, since a git-tracked vault is
// primarily notes, not code.
func DetectDirectoryType(dir string) IndexerType {
	if isDir(filepath.Join(dir, ".obsidian")) {
		return TypeObsidian
	}
	if isDir(filepath.Join(dir, ".git")) {
		return TypeCode
	}
	return TypeProject
}

// DetectFileType walks a file's ancestors toward root and returns the
// type of the first directory carrying a marker. Obsidian wins ties at
// a single directory level, matching DetectDirectoryType.
func DetectFileType(path string) IndexerType {
	dir := filepath.Dir(path)
	for {
		hasObsidian := isDir(filepath.Join(dir, ".obsidian"))
		hasGit := isDir(filepath.Join(dir, ".git"))
		if hasObsidian {
			return TypeObsidian
		}
		if hasGit {
			return TypeCode
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return TypeProject
		}
		dir = parent
	}
}

// CollectIndexableDirectories returns the subdirectories of home that
// match a configured username, skipping dot-prefixed names and entries
// that don't exist as directories on disk.
func CollectIndexableDirectories(home string, usernames []string) []string {
	var dirs []string
	for _, username := range usernames {
		if strings.HasPrefix(username, ".") {
			continue
		}
		candidate := filepath.Join(home, username)
		if isDir(candidate) {
			dirs = append(dirs, candidate)
		}
	}
	return dirs
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
