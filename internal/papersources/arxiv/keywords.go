package arxiv

import (
	"regexp"
	"strings"
)

// maxKeywords caps the heuristic keywords kept per paper.
const maxKeywords = 5

var wordRegex = regexp.MustCompile(`\b[a-z]{4,}\b`)

// stopWords are dropped from extracted keywords. The list includes the
// service's home domain terms so they do not crowd out specific ones.
var stopWords = map[string]struct{}{
	"this": {}, "that": {}, "with": {}, "from": {}, "have": {}, "been": {},
	"paper": {}, "study": {}, "method": {}, "model": {}, "data": {}, "using": {},
	"based": {}, "result": {}, "show": {}, "time": {}, "series": {}, "analysis": {},
	"learning": {}, "neural": {}, "network": {},
}

// extractKeywords returns up to five distinct lower-cased words of four or
// more letters from text, in order of first appearance, minus stop words.
func extractKeywords(text string) []string {
	words := wordRegex.FindAllString(strings.ToLower(text), -1)

	seen := make(map[string]struct{}, len(words))
	keywords := make([]string, 0, maxKeywords)
	for _, w := range words {
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		keywords = append(keywords, w)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}

// entityReplacer decodes entities left over after XML decoding, which happens
// when the feed double-escapes markup inside titles and abstracts.
var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&apos;", "'",
	"&#39;", "'",
)

func decodeEntities(s string) string {
	return entityReplacer.Replace(s)
}

// normalizeWhitespace trims and collapses multiple whitespace characters.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
