package chunker

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// a pipe with a non-pipe, non-space character on either side
	tableCellRe   = regexp.MustCompile(`\|\s*[^|\s]|[^|\s]\s*\|`)
	orderedItemRe = regexp.MustCompile(`^\d+\.\s`)
)

var bulletMarkers = []string{"- ", "* ", "+ ", "• ", "◦ ", "▪ ", "‣ "}

func isHeadingLine(line string) bool {
	return strings.HasPrefix(line, "#")
}

func isTableLine(line string) bool {
	return strings.Contains(line, "|") && tableCellRe.MatchString(line)
}

func isListLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, m := range bulletMarkers {
		if strings.HasPrefix(trimmed, m) || trimmed == strings.TrimSpace(m) {
			return true
		}
	}
	return orderedItemRe.MatchString(trimmed)
}

func isBlankLine(line string) bool {
	return strings.TrimSpace(line) == ""
}

// hasContent reports whether text has at least one letter or digit
func hasContent(text string) bool {
	return strings.IndexFunc(text, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}

// splitSentences cuts text after '.', '!' or '?' followed by whitespace.
// Terminal punctuation stays with its sentence; the whitespace is dropped.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
		default:
			continue
		}
		if i+1 >= len(runes) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			sentences = append(sentences, s)
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// tableHeaderRows returns how many leading rows of a table form its header.
// A first row with an empty cell (the leading/trailing pipes of a markdown
// row) is paired with the separator row below it.
func tableHeaderRows(rows []string) int {
	if len(rows) == 0 {
		return 0
	}
	for _, cell := range strings.Split(rows[0], "|") {
		if strings.TrimSpace(cell) == "" && len(rows) > 1 {
			return 2
		}
	}
	return 1
}
