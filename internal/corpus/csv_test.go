package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeCSV(t, "text,label\nhello world,spam\nnice to meet you,ham\nbuy now,spam\n")

	c, err := LoadCSV(path)
	require.NoError(t, err)

	require.Len(t, c.Samples, 3)
	assert.Equal(t, []string{"spam", "ham"}, c.Labels)
	assert.Equal(t, 2, c.NumClasses())
	assert.Equal(t, Sample{Text: "hello world", Label: 0}, c.Samples[0])
	assert.Equal(t, Sample{Text: "nice to meet you", Label: 1}, c.Samples[1])
	assert.Equal(t, Sample{Text: "buy now", Label: 0}, c.Samples[2])

	assert.Equal(t, []string{"hello world", "nice to meet you", "buy now"}, c.Texts())
	assert.Equal(t, []int{0, 1, 0}, c.LabelIDs())
}

func TestLoadCSV_NoHeader(t *testing.T) {
	path := writeCSV(t, "first row,a\nsecond row,b\n")

	c, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, c.Samples, 2)
	assert.Equal(t, []string{"a", "b"}, c.Labels)
}

func TestLoadCSV_QuotedText(t *testing.T) {
	path := writeCSV(t, "\"hello, friend\",greeting\n")

	c, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, "hello, friend", c.Samples[0].Text)
}

func TestLoadCSV_Errors(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)

	_, err = LoadCSV(writeCSV(t, "text,label\n"))
	assert.Error(t, err, "header-only file has no samples")

	_, err = LoadCSV(writeCSV(t, "only one field\n"))
	assert.Error(t, err, "rows must have exactly two fields")

	_, err = LoadCSV(writeCSV(t, "some text,\n"))
	assert.Error(t, err, "empty label is rejected")
}
