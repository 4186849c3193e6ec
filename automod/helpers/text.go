package helpers

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/spaolacci/murmur3"
)

func DedupeStrings(in []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range in {
		if !seen[v] {
			out = append(out, v)
			seen[v] = true
		}
	}
	return out
}

// returns a fast, compact hash of a string
//
// current implementation uses murmur3, default seed, and hex encoding
func HashOfString(s string) string {
	val := murmur3.Sum64([]byte(s))
	return fmt.Sprintf("%016x", val)
}

// any http or https URL, up to the next whitespace
var linkRegex = regexp.MustCompile(`https?://[^\s]+`)

func ContainsLink(raw string) bool {
	return linkRegex.MatchString(raw)
}

func ExtractLinks(raw string) []string {
	return linkRegex.FindAllString(raw, -1)
}

// Splits a delimited settings value (eg, "Meta, Discussion") into trimmed, non-empty parts.
func SplitList(raw, sep string) []string {
	var out []string
	for _, part := range strings.Split(raw, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func LowerStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		out = append(out, strings.ToLower(v))
	}
	return out
}

// Length of a string in unicode code points, not bytes.
func TextLength(s string) int {
	return utf8.RuneCountInString(s)
}
