package policy

import (
	"errors"
	"testing"

	contractx "github.com/resolvehq/resolve/agent/contract"
)

func TestNewIndexParsesEmbeddedCorpus(t *testing.T) {
	t.Parallel()

	ix := NewIndex()
	if len(ix.Entries()) < 5 {
		t.Fatalf("expected several corpus entries, got %d", len(ix.Entries()))
	}
	seen := make(map[string]struct{})
	for _, e := range ix.Entries() {
		if e.Topic == "" || e.Text == "" {
			t.Fatalf("entry with empty topic or text: %+v", e)
		}
		if _, dup := seen[e.Topic]; dup {
			t.Fatalf("duplicate topic %q", e.Topic)
		}
		seen[e.Topic] = struct{}{}
	}
}

func TestLookupTopicKeyword(t *testing.T) {
	t.Parallel()

	ix := NewIndex()
	for query, wantTopic := range map[string]string{
		"What is your return policy?":           "Returns",
		"shipping":                              "Shipping",
		"when do I get my refund":               "Refunds",
		"can I still use my store credit":       "Store Credit",
		"I forgot my order number, please help": "Order Lookup",
	} {
		entry, err := ix.Lookup(query)
		if err != nil {
			t.Fatalf("Lookup(%q) error = %v", query, err)
		}
		if entry.Topic != wantTopic {
			t.Fatalf("Lookup(%q) = %q, want %q", query, entry.Topic, wantTopic)
		}
	}
}

func TestLookupNoMatch(t *testing.T) {
	t.Parallel()

	ix := NewIndex()
	for _, query := range []string{"quantum flux capacitor", "zzzz", "", "a b c"} {
		if _, err := ix.Lookup(query); !errors.Is(err, ErrNoMatch) {
			t.Fatalf("Lookup(%q) error = %v, want ErrNoMatch", query, err)
		}
	}
}

func TestLookupTieBreaksOnDeclarationOrder(t *testing.T) {
	t.Parallel()

	ix := NewIndexFrom([]contractx.PolicyEntry{
		{Topic: "Delivery", Text: "delivery windows and carriers"},
		{Topic: "Delivery Exceptions", Text: "delivery delays and exceptions"},
	})

	entry, err := ix.Lookup("delivery")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if entry.Topic != "Delivery" {
		t.Fatalf("tie went to %q, want first-declared entry", entry.Topic)
	}
}

func TestParseRejectsDuplicateTopics(t *testing.T) {
	t.Parallel()

	_, err := Parse("### A\nbody one\n### A\nbody two")
	if err == nil {
		t.Fatal("expected error for duplicate topic")
	}
}
