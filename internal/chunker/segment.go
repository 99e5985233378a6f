package chunker

import "strings"

// Segment splits document text into ordered semantic blocks.
// Headings are always standalone blocks, blank lines end the current run,
// and a run that starts with table rows stays one table block until the
// next blank line or heading.
func Segment(text string) []Block {
	s := segmenter{}
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		switch {
		case isHeadingLine(line):
			s.flush()
			s.emit(KindHeading, line)
		case isBlankLine(line):
			s.flush()
		case isTableLine(line):
			if !s.inTable && len(s.buf) > 0 {
				s.flush()
			}
			s.inTable = true
			s.buf = append(s.buf, line)
		default:
			s.buf = append(s.buf, line)
		}
	}
	s.flush()
	return s.blocks
}

type segmenter struct {
	blocks  []Block
	buf     []string
	inTable bool
}

func (s *segmenter) flush() {
	if len(s.buf) > 0 {
		kind := KindParagraph
		switch {
		case s.inTable:
			kind = KindTable
		case isListLine(s.buf[0]):
			kind = KindList
		}
		s.emit(kind, strings.Join(s.buf, "\n"))
	}
	s.buf = s.buf[:0]
	s.inTable = false
}

func (s *segmenter) emit(kind BlockKind, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.blocks = append(s.blocks, Block{
		Kind:  kind,
		Text:  text,
		Order: len(s.blocks),
	})
}
