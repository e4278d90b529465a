package dispatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
)

// codeExtensions lists the source-file extensions CodeIndexer reads as
// plaintext. Anything else inside a git-marked directory (binaries,
// build artifacts) is left unindexed.
var codeExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".tsx": true, ".jsx": true,
	".java": true, ".c": true, ".h": true, ".cpp": true, ".hpp": true, ".rs": true,
	".rb": true, ".sh": true, ".md": true, ".markdown": true, ".txt": true,
}

// ObsidianIndexer indexes a single note inside an Obsidian vault.
// Markdown is its only supported extension; anything else (attachments,
// plugin data) yields no Document.
type ObsidianIndexer struct{}

func (ObsidianIndexer) Index(ctx context.Context, path, collectionID string) ([]Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".md" && ext != ".markdown" {
		return nil, nil
	}
	return readTextDocument(path, TypeObsidian, nil)
}

// CodeIndexer indexes a single source file from a git-tracked directory
// as plaintext, tagging it with the detected language.
type CodeIndexer struct{}

func (CodeIndexer) Index(ctx context.Context, path, collectionID string) ([]Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !codeExtensions[ext] {
		return nil, nil
	}
	meta := map[string]string{"language": strings.TrimPrefix(ext, ".")}
	return readTextDocument(path, TypeCode, meta)
}

// ProjectIndexer indexes a single file from an otherwise undistinguished
// directory. Only markdown and plain text are handled directly; richer
// formats (PDF, DOCX, and similar) are the domain of an external
// parser.Parser this tree doesn't implement, so they yield no Document.
type ProjectIndexer struct{}

func (ProjectIndexer) Index(ctx context.Context, path, collectionID string) ([]Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".md" && ext != ".markdown" && ext != ".txt" {
		return nil, nil
	}
	return readTextDocument(path, TypeProject, nil)
}

// readTextDocument reads path whole and returns it as a single Document
// carrying a content digest, suitable for any of the plain-text indexers.
func readTextDocument(path string, sourceType IndexerType, extra map[string]string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(data)

	return []Document{{
		SourcePath:    path,
		Title:         filepath.Base(path),
		SourceType:    sourceType,
		Digest:        hex.EncodeToString(digest[:]),
		Content:       string(data),
		ExtraMetadata: extra,
	}}, nil
}
