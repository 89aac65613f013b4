package knowledge

import (
	"strings"
	"unicode/utf8"
)

// Default splitter settings, in characters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// SplitText breaks text into chunks of at most size characters, preferring
// paragraph, then line, then word boundaries. Consecutive chunks share up to
// overlap characters of trailing context.
func SplitText(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	sp := splitter{size: size, overlap: overlap}
	var out []string
	for _, c := range sp.split(text, defaultSeparators) {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

type splitter struct {
	size    int
	overlap int
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

func (sp splitter) split(text string, separators []string) []string {
	sep := ""
	var rest []string
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}

	var parts []string
	if sep == "" {
		parts = splitRunes(text, sp.size)
	} else {
		parts = strings.Split(text, sep)
	}

	var out, pending []string
	for _, p := range parts {
		if p == "" {
			continue
		}
		if runeLen(p) <= sp.size {
			pending = append(pending, p)
			continue
		}
		if len(pending) > 0 {
			out = append(out, sp.merge(pending, sep)...)
			pending = nil
		}
		if len(rest) == 0 {
			out = append(out, p)
			continue
		}
		out = append(out, sp.split(p, rest)...)
	}
	if len(pending) > 0 {
		out = append(out, sp.merge(pending, sep)...)
	}
	return out
}

// merge joins small pieces into chunks up to size, carrying overlap forward.
func (sp splitter) merge(pieces []string, sep string) []string {
	sepLen := runeLen(sep)
	joinCost := func(n int) int {
		if n > 0 {
			return sepLen
		}
		return 0
	}

	var docs, cur []string
	total := 0
	for _, p := range pieces {
		l := runeLen(p)
		if total+l+joinCost(len(cur)) > sp.size && len(cur) > 0 {
			if doc := strings.TrimSpace(strings.Join(cur, sep)); doc != "" {
				docs = append(docs, doc)
			}
			for total > sp.overlap || (total+l+joinCost(len(cur)) > sp.size && total > 0) {
				total -= runeLen(cur[0]) + joinCost(len(cur)-1)
				cur = cur[1:]
			}
		}
		cur = append(cur, p)
		total += l + joinCost(len(cur)-1)
	}
	if doc := strings.TrimSpace(strings.Join(cur, sep)); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func splitRunes(text string, size int) []string {
	runes := []rune(text)
	var out []string
	for len(runes) > 0 {
		n := size
		if n > len(runes) {
			n = len(runes)
		}
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}
