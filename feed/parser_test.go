package feed

import (
	"os"
	"path/filepath"
	"testing"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	path := filepath.Join("testdata", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return data
}

func TestParse_Basic(t *testing.T) {
	list, err := Parse(loadFixture(t, "feed_basic.xml"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(list.Properties) != 2 {
		t.Fatalf("expected 2 properties, got %d", len(list.Properties))
	}

	p := list.Properties[0]
	if p.Reference.First() != "NS100" {
		t.Fatalf("expected reference NS100, got %q", p.Reference.First())
	}
	if p.OfferingType.First() != "RR" {
		t.Fatalf("expected offering type RR, got %q", p.OfferingType.First())
	}
	if p.PriceYearly().First() != "85,000" {
		t.Fatalf("expected yearly price 85,000, got %q", p.PriceYearly().First())
	}
	urls := p.PhotoURLs()
	if len(urls) != 2 {
		t.Fatalf("expected 2 photo urls, got %d", len(urls))
	}
	if urls[0] != "https://cdn.example.com/ns100-1.jpg" {
		t.Fatalf("unexpected first photo url %q", urls[0])
	}
	if len(p.Agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(p.Agents))
	}
	if p.Agents[0].ID.First() != "AG-7" || p.Agents[0].Name.First() != "Sara Khan" {
		t.Fatalf("unexpected agent %q %q", p.Agents[0].ID.First(), p.Agents[0].Name.First())
	}
	if n := p.Bedroom.Int(); n == nil || *n != 1 {
		t.Fatalf("expected bedroom 1, got %v", n)
	}

	sparse := list.Properties[1]
	if sparse.Reference.First() != "NS200" {
		t.Fatalf("expected reference NS200, got %q", sparse.Reference.First())
	}
	if sparse.Bedroom.Int() != nil {
		t.Fatalf("expected nil bedroom on sparse entry")
	}
	if len(sparse.PhotoURLs()) != 0 {
		t.Fatalf("expected no photo urls on sparse entry")
	}
	if sparse.PriceYearly().First() != "4,200,000" {
		t.Fatalf("expected yearly price 4,200,000, got %q", sparse.PriceYearly().First())
	}
}

func TestParse_WrongRoot(t *testing.T) {
	_, err := Parse(loadFixture(t, "feed_wrong_root.xml"))
	if err == nil {
		t.Fatalf("expected error for non-list root")
	}
}

func TestParse_EmptyList(t *testing.T) {
	list, err := Parse(loadFixture(t, "feed_empty.xml"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(list.Properties) != 0 {
		t.Fatalf("expected 0 properties, got %d", len(list.Properties))
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("<list><property>"))
	if err == nil {
		t.Fatalf("expected error for truncated document")
	}
}

func TestParse_DeclaredCharset(t *testing.T) {
	list, err := Parse(loadFixture(t, "feed_latin1.xml"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(list.Properties) != 1 {
		t.Fatalf("expected 1 property, got %d", len(list.Properties))
	}
	if got := list.Properties[0].Community.First(); got != "Café Quarter" {
		t.Fatalf("expected decoded community Café Quarter, got %q", got)
	}
}
