package textenc

import (
	"bufio"
	"fmt"
	"os"
	"sort"
)

// Reserved token indices. Index 0 doubles as the padding value bucketed
// batches are filled with.
const (
	PadToken = "<pad>"
	UnkToken = "<unk>"

	PadID = 0
	UnkID = 1
)

// Vocab maps tokens to integer indices. Indices are dense: the reserved
// tokens occupy 0 and 1, corpus tokens follow.
type Vocab struct {
	tokenToID map[string]int
	idToToken []string
}

// BuildVocab constructs a vocabulary from tokenized sentences. Tokens seen
// fewer than minCount times are dropped (and encode as <unk>); minCount < 1
// keeps everything. Tokens are assigned indices by descending frequency,
// ties broken lexicographically, so a fixed corpus always yields the same
// vocabulary.
func BuildVocab(sentences [][]string, minCount int) *Vocab {
	counts := make(map[string]int)
	for _, sent := range sentences {
		for _, tok := range sent {
			counts[tok]++
		}
	}

	type entry struct {
		tok string
		n   int
	}
	entries := make([]entry, 0, len(counts))
	for tok, n := range counts {
		if minCount > 1 && n < minCount {
			continue
		}
		entries = append(entries, entry{tok, n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].n != entries[j].n {
			return entries[i].n > entries[j].n
		}
		return entries[i].tok < entries[j].tok
	})

	v := &Vocab{
		tokenToID: make(map[string]int, len(entries)+2),
		idToToken: make([]string, 0, len(entries)+2),
	}
	v.append(PadToken)
	v.append(UnkToken)
	for _, e := range entries {
		v.append(e.tok)
	}
	return v
}

func (v *Vocab) append(tok string) {
	v.tokenToID[tok] = len(v.idToToken)
	v.idToToken = append(v.idToToken, tok)
}

// Size returns the number of entries including the reserved tokens. This is
// the classifier's input dimension.
func (v *Vocab) Size() int { return len(v.idToToken) }

// Lookup returns the index for a token, or UnkID when absent.
func (v *Vocab) Lookup(token string) int {
	if id, ok := v.tokenToID[token]; ok {
		return id
	}
	return UnkID
}

// Token returns the token at an index, or <unk> when out of range.
func (v *Vocab) Token(id int) string {
	if id < 0 || id >= len(v.idToToken) {
		return UnkToken
	}
	return v.idToToken[id]
}

// Encode maps one tokenized sentence to token indices.
func (v *Vocab) Encode(tokens []string) []int {
	out := make([]int, len(tokens))
	for i, tok := range tokens {
		out[i] = v.Lookup(tok)
	}
	return out
}

// EncodeAll maps tokenized sentences to token index sequences.
func (v *Vocab) EncodeAll(sentences [][]string) [][]int {
	out := make([][]int, len(sentences))
	for i, sent := range sentences {
		out[i] = v.Encode(sent)
	}
	return out
}

// Save writes the vocabulary as a vocab.txt file: one token per line, the
// line number (0-indexed) being the token's index.
func (v *Vocab) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("vocab: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, tok := range v.idToToken {
		if _, err := fmt.Fprintln(w, tok); err != nil {
			f.Close()
			return fmt.Errorf("vocab: write: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("vocab: flush: %w", err)
	}
	return f.Close()
}

// LoadVocab reads a vocab.txt file written by Save. The reserved tokens must
// occupy their fixed indices.
func LoadVocab(path string) (*Vocab, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vocab: %w", err)
	}
	defer f.Close()

	v := &Vocab{tokenToID: make(map[string]int, 4096)}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		v.append(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("vocab: read error: %w", err)
	}
	if v.Size() < 2 || v.idToToken[PadID] != PadToken || v.idToToken[UnkID] != UnkToken {
		return nil, fmt.Errorf("vocab: %s is missing the reserved %s/%s entries", path, PadToken, UnkToken)
	}
	return v, nil
}
