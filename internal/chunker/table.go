package chunker

import "strings"

// splitTable packs table rows greedily under a repeated header prefix so
// every part stays self-describing. A row that does not fit next to the
// header is cut into overlapping windows, each still prefixed by the header.
// When the header leaves no room for a window wider than Overlap, the prefix
// is dropped and rows are packed bare.
func (c *TokenChunker) splitTable(text string) []string {
	rows := strings.Split(text, "\n")
	h := tableHeaderRows(rows)
	header := strings.Join(rows[:h], "\n")

	if h == len(rows) || c.config.MaxTokens-c.tok.Count(header+"\n") <= c.config.Overlap {
		return c.packRows(rows, "")
	}
	return c.packRows(rows[h:], header)
}

// packRows measures every candidate part as it will be emitted, header and
// newlines included.
func (c *TokenChunker) packRows(rows []string, header string) []string {
	prefix := ""
	if header != "" {
		prefix = header + "\n"
	}
	room := c.config.MaxTokens - c.tok.Count(prefix)

	var parts []string
	var buf []string
	flush := func() {
		if len(buf) > 0 {
			parts = append(parts, prefix+strings.Join(buf, "\n"))
		}
		buf = nil
	}

	for _, row := range rows {
		if !hasContent(row) && header != "" {
			continue
		}
		if next := append(buf[:len(buf):len(buf)], row); c.tok.Count(prefix+strings.Join(next, "\n")) <= c.config.MaxTokens {
			buf = next
			continue
		}
		flush()
		if c.tok.Count(prefix+row) <= c.config.MaxTokens {
			buf = []string{row}
			continue
		}
		for _, piece := range c.fitWindows(c.tok.Encode(row), prefix, room) {
			parts = append(parts, prefix+piece)
		}
	}
	flush()
	return parts
}
