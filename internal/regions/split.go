package regions

import "strings"

// splitLines breaks a document into physical lines, dropping a trailing \r
// from each and a leading byte-order mark from the first.
func splitLines(doc string) []string {
	doc = strings.TrimPrefix(doc, "\ufeff")
	lines := strings.Split(doc, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// splitRecord splits one line on commas. A double-quoted field may contain
// commas and a backslash escapes the next character. ok is false when the
// line ends inside an open quote.
func splitRecord(line string) (fields []string, ok bool) {
	var (
		b       strings.Builder
		inQuote bool
		escaped bool
	)
	for _, ch := range line {
		switch {
		case escaped:
			b.WriteRune(ch)
			escaped = false
		case inQuote && ch == '\\':
			escaped = true
		case ch == '"':
			inQuote = !inQuote
		case ch == ',' && !inQuote:
			fields = append(fields, b.String())
			b.Reset()
		default:
			b.WriteRune(ch)
		}
	}
	if inQuote || escaped {
		return nil, false
	}
	return append(fields, b.String()), true
}
