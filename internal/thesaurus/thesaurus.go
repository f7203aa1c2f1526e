// Package thesaurus provides the lexical synonym database backing synonym
// perturbation. Entries come from an embedded default lexicon or from a
// user-supplied file with the same format: one headword per line, followed
// by a colon and a comma-separated synonym list. Multi-word synonyms use
// underscores as internal separators (e.g. "a_great_deal").
package thesaurus

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:embed lexicon.txt
var lexiconRaw []byte

// Thesaurus maps lowercase headwords to their synonyms in file order.
// Read-only after construction, safe for concurrent use.
type Thesaurus struct {
	entries map[string][]string
}

// Embedded returns a Thesaurus built from the bundled default lexicon.
func Embedded() *Thesaurus {
	t, err := parse(bytes.NewReader(lexiconRaw))
	if err != nil {
		// The embedded lexicon is validated by tests; a parse failure here
		// means a broken build, not bad user input.
		panic(fmt.Sprintf("thesaurus: embedded lexicon invalid: %v", err))
	}
	return t
}

// Load reads a lexicon from the given path.
func Load(path string) (*Thesaurus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening lexicon %s: %w", path, err)
	}
	defer f.Close()
	t, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing lexicon %s: %w", path, err)
	}
	return t, nil
}

func parse(r io.Reader) (*Thesaurus, error) {
	entries := make(map[string][]string)
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		head, rest, ok := strings.Cut(text, ":")
		if !ok {
			return nil, fmt.Errorf("line %d: missing colon", line)
		}
		head = strings.ToLower(strings.TrimSpace(head))
		if head == "" {
			return nil, fmt.Errorf("line %d: empty headword", line)
		}
		var synonyms []string
		for _, s := range strings.Split(rest, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				synonyms = append(synonyms, s)
			}
		}
		if len(synonyms) == 0 {
			continue
		}
		// First entry wins on duplicate headwords, matching the
		// first-synonym-first-lemma substitution rule.
		if _, exists := entries[head]; !exists {
			entries[head] = synonyms
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading lexicon: %w", err)
	}
	return &Thesaurus{entries: entries}, nil
}

// Synonyms returns the synonym list for word (case-insensitive headword
// lookup), or nil when the word has no entry. The returned slice must not
// be modified.
func (t *Thesaurus) Synonyms(word string) []string {
	return t.entries[strings.ToLower(word)]
}

// Len returns the number of headwords.
func (t *Thesaurus) Len() int {
	return len(t.entries)
}
