package document

import (
	"strings"
	"testing"
)

func TestChunk_SmallTextSingleChunk(t *testing.T) {
	chunks := Chunk("short text", 512, 50)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0] != "short text" {
		t.Errorf("chunk = %q", chunks[0])
	}
}

func TestChunk_EmptyText(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\n\t"} {
		if chunks := Chunk(text, 512, 50); chunks != nil {
			t.Errorf("Chunk(%q) = %q, want nil", text, chunks)
		}
	}
}

func TestChunk_Overlap(t *testing.T) {
	text := strings.Repeat("x", 1000)
	chunks := Chunk(text, 400, 100)

	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want >= 2", len(chunks))
	}

	// Each consecutive pair shares the overlap region
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		tail := prev[len(prev)-100:]
		if !strings.HasPrefix(chunks[i], tail) {
			t.Errorf("chunk %d does not start with the previous chunk's tail", i)
		}
	}

	// Reassembly covers the whole text
	last := chunks[len(chunks)-1]
	if !strings.HasSuffix(text, last) {
		t.Error("last chunk is not a suffix of the input")
	}
}

func TestChunk_PrefersParagraphBreak(t *testing.T) {
	para1 := strings.Repeat("a", 300)
	para2 := strings.Repeat("b", 300)
	text := para1 + "\n\n" + para2

	chunks := Chunk(text, 400, 0)

	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want >= 2", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], "\n\n") {
		t.Errorf("first chunk should end at the paragraph break, got tail %q", chunks[0][len(chunks[0])-5:])
	}
}

func TestChunk_PrefersSentenceBreak(t *testing.T) {
	text := strings.Repeat("a", 300) + ". " + strings.Repeat("b", 300)

	chunks := Chunk(text, 400, 0)

	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want >= 2", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], ".") {
		t.Errorf("first chunk should end at the sentence break, got tail %q", chunks[0][len(chunks[0])-5:])
	}
}

func TestChunk_DegenerateParams(t *testing.T) {
	text := strings.Repeat("y", 2000)

	// Overlap >= size must not loop forever
	chunks := Chunk(text, 100, 100)
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}

	// Zero size falls back to the default
	chunks = Chunk("tiny", 0, 0)
	if len(chunks) != 1 || chunks[0] != "tiny" {
		t.Errorf("chunks = %v", chunks)
	}
}
