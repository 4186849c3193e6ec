package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsLink(t *testing.T) {
	assert := assert.New(t)

	fixtures := []struct {
		s   string
		out bool
	}{
		{s: "see https://example.com for details", out: true},
		{s: "http://example.com", out: true},
		{s: "HTTPS://EXAMPLE.COM", out: false},
		{s: "example.com without a scheme", out: false},
		{s: "https:// with nothing after", out: false},
		{s: "", out: false},
	}

	for _, fix := range fixtures {
		assert.Equal(fix.out, ContainsLink(fix.s), fix.s)
	}
}

func TestExtractLinks(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(
		[]string{"https://en.wikipedia.org/wiki/Go", "http://archive.org/x?y=1"},
		ExtractLinks("source: https://en.wikipedia.org/wiki/Go and http://archive.org/x?y=1\nthanks"),
	)
	assert.Nil(ExtractLinks("no links here"))
}

func TestSplitList(t *testing.T) {
	assert := assert.New(t)

	assert.Equal([]string{"Meta", "Discussion"}, SplitList("Meta, Discussion", ","))
	assert.Equal([]string{"a", "b"}, SplitList(" a ;; b ;", ";"))
	assert.Nil(SplitList("  ", ","))
	assert.Equal([]string{"meta", "discussion"}, LowerStrings(SplitList("META,Discussion", ",")))
}

func TestTextLength(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(5, TextLength("hello"))
	assert.Equal(2, TextLength("日本"))
	assert.Equal(0, TextLength(""))
}

func TestDedupeStrings(t *testing.T) {
	assert := assert.New(t)

	assert.Equal([]string{"a", "b"}, DedupeStrings([]string{"a", "b", "a"}))
}

func TestHashOfString(t *testing.T) {
	assert := assert.New(t)

	// hashing function should be consistent over time
	assert.Equal("4e6f69c0e3d10992", HashOfString("dummy-value"))
}
