// Package corpus loads labeled text corpora from disk.
package corpus

import (
	"encoding/csv"
	"fmt"
	"os"
)

// Sample is one labeled text example.
type Sample struct {
	Text  string
	Label int
}

// Corpus is a loaded dataset with its label vocabulary. Label ids are
// assigned in order of first appearance in the file.
type Corpus struct {
	Samples []Sample
	Labels  []string
}

// NumClasses returns the number of distinct labels seen.
func (c *Corpus) NumClasses() int { return len(c.Labels) }

// LoadCSV reads a two-column CSV file of text,label rows. A header row is
// recognized by the literal column names "text" and "label" and skipped.
func LoadCSV(path string) (*Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 2

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("corpus: parse %s: %w", path, err)
	}
	if len(records) > 0 && records[0][0] == "text" && records[0][1] == "label" {
		records = records[1:]
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("corpus: %s contains no samples", path)
	}

	c := &Corpus{Samples: make([]Sample, 0, len(records))}
	ids := make(map[string]int)
	for i, rec := range records {
		name := rec[1]
		if name == "" {
			return nil, fmt.Errorf("corpus: %s row %d has an empty label", path, i+1)
		}
		id, ok := ids[name]
		if !ok {
			id = len(c.Labels)
			ids[name] = id
			c.Labels = append(c.Labels, name)
		}
		c.Samples = append(c.Samples, Sample{Text: rec[0], Label: id})
	}
	return c, nil
}

// Texts returns the sample texts in file order.
func (c *Corpus) Texts() []string {
	out := make([]string, len(c.Samples))
	for i, s := range c.Samples {
		out[i] = s.Text
	}
	return out
}

// LabelIDs returns the sample label ids in file order.
func (c *Corpus) LabelIDs() []int {
	out := make([]int, len(c.Samples))
	for i, s := range c.Samples {
		out[i] = s.Label
	}
	return out
}
