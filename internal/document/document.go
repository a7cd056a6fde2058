// Package document loads and parses tax scenario files.
//
// A scenario file is plain text: the first blank-line-separated block is the
// scenario (its first line is the title), every following block is a question.
// Multiple-choice questions carry option lines of the form "a) ...".
package document

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"taxray/internal/logging"
)

// Document represents a loaded corpus file.
type Document struct {
	Content  string
	Source   string // full path
	Filename string
	Metadata map[string]interface{}
}

// Question is a single question block, optionally multiple-choice.
type Question struct {
	Number  int    // 0 when the block carries no explicit number
	Text    string // full block text, options included
	Options map[string]string
}

// IsMultipleChoice reports whether option lines were detected.
func (q Question) IsMultipleChoice() bool {
	return len(q.Options) > 0
}

// Scenario is a parsed scenario file.
type Scenario struct {
	Title     string
	Body      string // first block, title line included
	Questions []Question
	Doc       Document
}

// Loader reads scenario files from a directory tree.
type Loader struct {
	dir string
}

// NewLoader creates a loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// LoadTextFiles walks the docs directory and loads all .txt files.
func (l *Loader) LoadTextFiles() ([]Document, error) {
	timer := logging.StartTimer(logging.CategoryDocument, "LoadTextFiles")
	defer timer.Stop()

	var docs []Document

	err := filepath.WalkDir(l.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".txt") {
			return nil
		}

		doc, err := LoadFile(path)
		if err != nil {
			logging.Get(logging.CategoryDocument).Error("Failed to load %s: %v", path, err)
			return nil // Keep walking; one bad file doesn't sink the batch
		}
		docs = append(docs, doc)
		logging.Document("Loaded text file: %s", path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk docs dir %s: %w", l.dir, err)
	}

	logging.Document("Loaded %d documents from %s", len(docs), l.dir)
	return docs, nil
}

// LoadFile reads a single scenario file.
func LoadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return Document{
		Content:  string(data),
		Source:   path,
		Filename: filepath.Base(path),
		Metadata: map[string]interface{}{
			"source":   path,
			"filename": filepath.Base(path),
			"type":     "text",
		},
	}, nil
}
