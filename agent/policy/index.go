package policy

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	contractx "github.com/resolvehq/resolve/agent/contract"
)

//go:embed corpus.md
var corpusRaw string

var ErrNoMatch = errors.New("no matching policy")

// minRelevance is the lowest overlap score Lookup accepts. A single topic
// hit clears it; a lone body-text hit does not.
const minRelevance = 2

const (
	topicWeight = 3
	textWeight  = 1
)

// Index is an immutable in-memory view of the policy corpus, built once at
// startup and shared for the lifetime of the process.
type Index struct {
	entries []contractx.PolicyEntry
}

// NewIndex parses the embedded corpus. The corpus is authored in-repo, so a
// parse failure is a programming error.
func NewIndex() *Index {
	entries, err := Parse(corpusRaw)
	if err != nil {
		panic(fmt.Sprintf("policy: embedded corpus is invalid: %v", err))
	}
	return &Index{entries: entries}
}

// NewIndexFrom builds an index over explicit entries, preserving order.
func NewIndexFrom(entries []contractx.PolicyEntry) *Index {
	return &Index{entries: append([]contractx.PolicyEntry(nil), entries...)}
}

// Parse splits a corpus of "### Topic" sections into entries. Topics must
// be unique; declaration order is preserved for tie breaking.
func Parse(raw string) ([]contractx.PolicyEntry, error) {
	var entries []contractx.PolicyEntry
	seen := make(map[string]struct{})

	sections := strings.Split(raw, "### ")
	for _, section := range sections {
		section = strings.TrimSpace(section)
		if section == "" {
			continue
		}
		topic, text, ok := strings.Cut(section, "\n")
		if !ok {
			return nil, fmt.Errorf("section %q has no body", section)
		}
		topic = strings.TrimSpace(topic)
		text = strings.TrimSpace(text)
		if topic == "" || text == "" {
			return nil, fmt.Errorf("section with empty topic or body")
		}
		key := strings.ToLower(topic)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate topic %q", topic)
		}
		seen[key] = struct{}{}
		entries = append(entries, contractx.PolicyEntry{Topic: topic, Text: text})
	}

	if len(entries) == 0 {
		return nil, errors.New("corpus has no sections")
	}
	return entries, nil
}

// Entries returns the corpus in declaration order.
func (ix *Index) Entries() []contractx.PolicyEntry {
	return ix.entries
}

// Lookup returns the entry with the highest keyword overlap against the
// query, or ErrNoMatch when nothing scores at least minRelevance. Ties go
// to the entry declared first.
func (ix *Index) Lookup(query string) (contractx.PolicyEntry, error) {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return contractx.PolicyEntry{}, ErrNoMatch
	}

	best := -1
	bestScore := 0
	for i, entry := range ix.entries {
		score := overlapScore(tokens, entry)
		if score > bestScore {
			best = i
			bestScore = score
		}
	}

	if best < 0 || bestScore < minRelevance {
		return contractx.PolicyEntry{}, ErrNoMatch
	}
	return ix.entries[best], nil
}

func overlapScore(tokens []string, entry contractx.PolicyEntry) int {
	topic := strings.ToLower(entry.Topic)
	text := strings.ToLower(entry.Text)

	score := 0
	for _, tok := range tokens {
		if strings.Contains(topic, tok) {
			score += topicWeight
		}
		if strings.Contains(text, tok) {
			score += textWeight
		}
	}
	return score
}

func tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})

	tokens := fields[:0]
	for _, f := range fields {
		// Short words are almost always stop words (is, my, a).
		if len(f) >= 4 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
