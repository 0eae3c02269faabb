package knowledge_test

import (
	"strings"
	"testing"

	"github.com/barbourakais/Ai-audio-chatbot/internal/knowledge"
)

const sampleYAML = `
company:
  name: Ox4Labs
  description: Ox4Labs is a technology consultancy focused on applied AI.
  mission: Make production AI boring.
services:
  - name: AI Consulting
    description: Strategy and roadmaps for AI adoption.
    offerings:
      - feasibility studies
      - model selection
  - name: Custom Development
    description: Bespoke machine learning systems built to spec.
process:
  - name: Discovery
    description: We learn your domain and constraints.
  - name: Delivery
    description: We ship in small increments.
contact:
  email: hello@ox4labs.example
  website: https://ox4labs.example
`

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	doc, err := knowledge.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if doc.Company.Name != "Ox4Labs" {
		t.Errorf("company name = %q, want Ox4Labs", doc.Company.Name)
	}
	if len(doc.Services) != 2 {
		t.Fatalf("services = %d, want 2", len(doc.Services))
	}
	if len(doc.Process) != 2 {
		t.Fatalf("process steps = %d, want 2", len(doc.Process))
	}
}

func TestLoadFromReaderUnknownField(t *testing.T) {
	t.Parallel()

	_, err := knowledge.LoadFromReader(strings.NewReader("company:\n  name: X\nbogus: 1\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadFromReaderMissingName(t *testing.T) {
	t.Parallel()

	_, err := knowledge.LoadFromReader(strings.NewReader("company:\n  description: nameless\n"))
	if err == nil || !strings.Contains(err.Error(), "company.name") {
		t.Fatalf("err = %v, want company.name error", err)
	}
}

func TestSections(t *testing.T) {
	t.Parallel()

	doc, err := knowledge.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	secs := doc.Sections()
	wantIDs := []string{
		"company",
		"service/ai-consulting",
		"service/custom-development",
		"process/1-discovery",
		"process/2-delivery",
		"contact",
	}
	if len(secs) != len(wantIDs) {
		t.Fatalf("sections = %d, want %d", len(secs), len(wantIDs))
	}
	for i, want := range wantIDs {
		if secs[i].ID != want {
			t.Errorf("section[%d].ID = %q, want %q", i, secs[i].ID, want)
		}
	}
	if secs[0].Kind != knowledge.KindFact {
		t.Errorf("company kind = %q, want fact", secs[0].Kind)
	}
	if secs[1].Kind != knowledge.KindService {
		t.Errorf("service kind = %q, want service", secs[1].Kind)
	}
	if !strings.Contains(secs[1].Text, "feasibility studies, model selection") {
		t.Errorf("service text missing offerings: %q", secs[1].Text)
	}
	if !strings.Contains(secs[5].Text, "hello@ox4labs.example") {
		t.Errorf("contact text missing email: %q", secs[5].Text)
	}
}

func TestChunkerSplitShortSections(t *testing.T) {
	t.Parallel()

	doc, err := knowledge.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	ch, err := knowledge.NewChunker(512, 50)
	if err != nil {
		t.Fatalf("NewChunker: %v", err)
	}

	chunks := ch.Split(doc)
	// Every section here is under 512 chars, so one chunk each.
	if len(chunks) != len(doc.Sections()) {
		t.Fatalf("chunks = %d, want %d", len(chunks), len(doc.Sections()))
	}
	for _, c := range chunks {
		if c.Ordinal != 0 {
			t.Errorf("chunk %s ordinal = %d, want 0", c.SectionID, c.Ordinal)
		}
		if c.Hash != knowledge.HashText(c.Text) {
			t.Errorf("chunk %s hash mismatch", c.SectionID)
		}
	}
}

func TestChunkerOverlapWithinSection(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("abcdefghij", 30) // 300 chars
	doc := &knowledge.Document{
		Company: knowledge.Company{Name: "X", Description: long},
	}
	ch, err := knowledge.NewChunker(120, 20)
	if err != nil {
		t.Fatalf("NewChunker: %v", err)
	}

	chunks := ch.Split(doc)
	if len(chunks) < 3 {
		t.Fatalf("chunks = %d, want >= 3", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		if prev.SectionID != cur.SectionID {
			continue
		}
		tail := prev.Text[len(prev.Text)-20:]
		if !strings.HasPrefix(cur.Text, tail) {
			t.Errorf("chunk %d does not start with overlap of chunk %d", i, i-1)
		}
		if cur.Ordinal != prev.Ordinal+1 {
			t.Errorf("chunk %d ordinal = %d, want %d", i, cur.Ordinal, prev.Ordinal+1)
		}
	}
}

func TestChunkerNeverCrossesSections(t *testing.T) {
	t.Parallel()

	doc := &knowledge.Document{
		Company: knowledge.Company{Name: "X", Description: strings.Repeat("a", 200)},
		Services: []knowledge.Service{
			{Name: "S", Description: strings.Repeat("b", 200)},
		},
	}
	ch, err := knowledge.NewChunker(150, 30)
	if err != nil {
		t.Fatalf("NewChunker: %v", err)
	}

	for _, c := range ch.Split(doc) {
		if strings.Contains(c.Text, "a") && strings.Contains(c.Text, "b") {
			t.Errorf("chunk %s/%d mixes text from two sections", c.SectionID, c.Ordinal)
		}
	}
}

func TestChunkerDeterministicTexts(t *testing.T) {
	t.Parallel()

	doc, err := knowledge.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	ch, err := knowledge.NewChunker(100, 10)
	if err != nil {
		t.Fatalf("NewChunker: %v", err)
	}

	first := ch.Split(doc)
	second := ch.Split(doc)
	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Text != second[i].Text || first[i].Hash != second[i].Hash {
			t.Errorf("chunk %d differs between runs", i)
		}
		if first[i].ID == second[i].ID {
			t.Errorf("chunk %d reused an ID across runs", i)
		}
	}
}

func TestNewChunkerRejectsBadConfig(t *testing.T) {
	t.Parallel()

	if _, err := knowledge.NewChunker(0, 0); err == nil {
		t.Error("expected error for zero size")
	}
	if _, err := knowledge.NewChunker(100, 100); err == nil {
		t.Error("expected error for overlap >= size")
	}
}
