package analysis

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/helixir/paper-analysis-service/internal/domain"
)

// Placeholders stored for sections the model response does not contain.
const (
	PlaceholderBackground = "暂无背景分析"
	PlaceholderWhat       = "暂无解决方案分析"
	PlaceholderWhy        = "暂无价值分析"
	PlaceholderHow        = "暂无实现方法分析"
	PlaceholderHowWhy     = "暂无方法论证"
)

// summaryFallbackRunes is how much of the raw response stands in for a missing summary.
const summaryFallbackRunes = 500

type section int

const (
	sectionNone section = iota - 1
	sectionBackground
	sectionWhat
	sectionWhy
	sectionHow
	sectionHowWhy
	sectionSummary
	sectionCount
)

// sectionNames is ordered so that "how-why" is tried before "how".
var sectionNames = []struct {
	section section
	names   []string
}{
	{sectionHowWhy, []string{"how-why", "how why", "how_why", "howwhy"}},
	{sectionBackground, []string{"background"}},
	{sectionWhat, []string{"what"}},
	{sectionWhy, []string{"why"}},
	{sectionHow, []string{"how"}},
	{sectionSummary, []string{"summary"}},
}

// ParseResponse splits a model response into the report sections.
//
// A heading is a line naming a section, optionally prefixed by Markdown
// hashes, bold markers or a list number, optionally followed by a
// parenthetical and a colon. A bare section name only counts as a heading
// when it is marked up or followed by a colon. Text after the colon on the
// heading line belongs to the section. Each section runs until the next
// new heading. A heading for a section already seen is kept as a body line
// of the current section, so the first occurrence wins. Missing sections
// get their placeholder and a missing summary falls back to the start of
// the raw response.
func ParseResponse(text string) domain.ReportSections {
	var bodies [sectionCount]strings.Builder
	var seen [sectionCount]bool
	current := sectionNone

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if sec, inline, ok := matchHeading(line); ok && !seen[sec] {
			seen[sec] = true
			current = sec
			if inline != "" {
				bodies[sec].WriteString(inline)
				bodies[sec].WriteByte('\n')
			}
			continue
		}
		if current != sectionNone {
			bodies[current].WriteString(line)
			bodies[current].WriteByte('\n')
		}
	}

	get := func(sec section) string {
		return strings.TrimSpace(bodies[sec].String())
	}

	out := domain.ReportSections{
		Background: orDefault(get(sectionBackground), PlaceholderBackground),
		What:       orDefault(get(sectionWhat), PlaceholderWhat),
		Why:        orDefault(get(sectionWhy), PlaceholderWhy),
		How:        orDefault(get(sectionHow), PlaceholderHow),
		HowWhy:     orDefault(get(sectionHowWhy), PlaceholderHowWhy),
		Summary:    get(sectionSummary),
	}
	if out.Summary == "" {
		out.Summary = truncateRunes(text, summaryFallbackRunes)
	}
	return out
}

// matchHeading reports whether line is a section heading and returns the
// text following the heading's colon, if any.
func matchHeading(line string) (section, string, bool) {
	s := strings.TrimSpace(line)

	marked := false
	if trimmed := strings.TrimLeft(s, "#"); len(trimmed) != len(s) {
		marked = true
		s = strings.TrimSpace(trimmed)
	}
	s = trimListNumber(s)
	if strings.HasPrefix(s, "**") {
		marked = true
		s = strings.TrimSpace(strings.TrimPrefix(s, "**"))
	}

	lower := strings.ToLower(s)
	for _, entry := range sectionNames {
		for _, name := range entry.names {
			if !strings.HasPrefix(lower, name) {
				continue
			}
			// The lowercase prefix has the same byte length for these ASCII names.
			rest := s[len(name):]
			if r, _ := utf8.DecodeRuneInString(rest); r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r) {
				continue
			}
			inline, colon, ok := parseHeadingTail(rest)
			if !ok || (!marked && !colon) {
				return sectionNone, "", false
			}
			return entry.section, inline, true
		}
	}
	return sectionNone, "", false
}

// parseHeadingTail accepts what may follow a section name on its heading
// line: bold markers, a parenthetical, a colon and inline text after it.
func parseHeadingTail(rest string) (inline string, colon bool, ok bool) {
	s := strings.TrimSpace(rest)
	s = strings.TrimSpace(strings.TrimPrefix(s, "**"))

	if strings.HasPrefix(s, "(") || strings.HasPrefix(s, "（") {
		end := strings.IndexAny(s, ")）")
		if end < 0 {
			return "", false, false
		}
		_, size := utf8.DecodeRuneInString(s[end:])
		s = strings.TrimSpace(s[end+size:])
		s = strings.TrimSpace(strings.TrimPrefix(s, "**"))
	}

	switch {
	case strings.HasPrefix(s, ":"):
		s = s[len(":"):]
		colon = true
	case strings.HasPrefix(s, "："):
		s = s[len("："):]
		colon = true
	}
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "**"))

	if !colon && s != "" {
		return "", false, false
	}
	return s, colon, true
}

// trimListNumber drops a leading "1." / "2、" / "3)" list marker.
func trimListNumber(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return s
	}
	rest := s[i:]
	for _, sep := range []string{".", "、", ")"} {
		if strings.HasPrefix(rest, sep) {
			return strings.TrimSpace(rest[len(sep):])
		}
	}
	return s
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
