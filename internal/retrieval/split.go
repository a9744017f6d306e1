package retrieval

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 64
)

// separators are tried in order; the empty separator splits into single runes.
var separators = []string{"\n\n", "\n", " ", ""}

// Split breaks text into chunks of at most size runes, preferring paragraph, then line, then
// word boundaries. Adjacent chunks share up to overlap runes of trailing context.
// Chunks are whitespace-trimmed and never empty.
func Split(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	s := splitter{size: size, overlap: overlap}
	return s.split(text, separators)
}

type splitter struct {
	size    int
	overlap int
}

func (s splitter) split(text string, seps []string) []string {
	sep, rest := "", []string(nil)
	for i, c := range seps {
		if c == "" || strings.Contains(text, c) {
			sep, rest = c, seps[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
	} else {
		pieces = strings.Split(text, sep)
	}

	var out, fits []string
	for _, p := range pieces {
		if p == "" {
			continue
		}
		if utf8.RuneCountInString(p) <= s.size {
			fits = append(fits, p)
			continue
		}
		if len(fits) > 0 {
			out = append(out, s.merge(fits, sep)...)
			fits = nil
		}
		out = append(out, s.split(p, rest)...)
	}
	if len(fits) > 0 {
		out = append(out, s.merge(fits, sep)...)
	}
	return out
}

// merge greedily packs pieces joined by sep into chunks, carrying an overlapping tail forward.
func (s splitter) merge(pieces []string, sep string) []string {
	sepLen := utf8.RuneCountInString(sep)
	joined := func(n int) int {
		if n > 0 {
			return sepLen
		}
		return 0
	}

	var (
		out   []string
		cur   []string
		total int
	)
	emit := func() {
		if doc := strings.TrimSpace(strings.Join(cur, sep)); doc != "" {
			out = append(out, doc)
		}
	}

	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if len(cur) > 0 && total+n+joined(len(cur)) > s.size {
			emit()
			for len(cur) > 0 && (total > s.overlap || total+n+joined(len(cur)) > s.size) {
				total -= utf8.RuneCountInString(cur[0]) + joined(len(cur)-1)
				cur = cur[1:]
			}
		}
		total += n + joined(len(cur))
		cur = append(cur, p)
	}
	if len(cur) > 0 {
		emit()
	}
	return out
}

// Head returns the first n runes of text.
func Head(text string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}
