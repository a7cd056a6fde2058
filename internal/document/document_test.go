package document

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadTextFiles(t *testing.T) {
	dir := t.TempDir()

	files := map[string]string{
		"scenario1.txt": "Scenario 1\nBody.\n\nQuestion 1\na) Yes\nb) No\n",
		"scenario2.txt": "Scenario 2\nBody.\n",
		"notes.md":      "ignored",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	// Nested files are picked up too
	sub := filepath.Join(dir, "nested")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "scenario3.txt"), []byte("Scenario 3\n"), 0644); err != nil {
		t.Fatal(err)
	}

	docs, err := NewLoader(dir).LoadTextFiles()
	if err != nil {
		t.Fatalf("LoadTextFiles failed: %v", err)
	}

	if len(docs) != 3 {
		t.Fatalf("got %d documents, want 3", len(docs))
	}

	seen := make(map[string]bool)
	for _, d := range docs {
		seen[d.Filename] = true
		if d.Metadata["filename"] != d.Filename {
			t.Errorf("metadata filename mismatch for %s", d.Filename)
		}
	}
	for _, want := range []string{"scenario1.txt", "scenario2.txt", "scenario3.txt"} {
		if !seen[want] {
			t.Errorf("missing document %s", want)
		}
	}
	if seen["notes.md"] {
		t.Error("non-txt file should be skipped")
	}
}

func TestLoadTextFiles_MissingDir(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "nope")).LoadTextFiles()
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
