package ingest

import "strings"

// Record maps a header name to the trimmed, quote-stripped field value for
// one data row.
type Record map[string]string

// ParseTable parses a comma-separated export with double-quote field
// escaping. The first non-blank line is the header; blank lines are skipped.
// Missing trailing fields default to "".
func ParseTable(text string) []Record {
	return parseTable(text, func(h string) string { return h })
}

// ParseTableLooseKeys is ParseTable with header names lower-cased and
// whitespace collapsed to underscores, the shape skip-trace result files
// come back in.
func ParseTableLooseKeys(text string) []Record {
	return parseTable(text, func(h string) string {
		return strings.Join(strings.Fields(strings.ToLower(h)), "_")
	})
}

func parseTable(text string, keyFn func(string) string) []Record {
	var header []string
	var out []Record

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := tokenizeLine(line)
		if header == nil {
			header = make([]string, len(fields))
			for i, h := range fields {
				header[i] = keyFn(h)
			}
			continue
		}

		rec := make(Record, len(header))
		for i, name := range header {
			if i < len(fields) {
				rec[name] = fields[i]
			} else {
				rec[name] = ""
			}
		}
		out = append(out, rec)
	}
	return out
}

// tokenizeLine splits one CSV line positionally. A double quote toggles
// quoted mode; commas split only outside quotes. Quotes are stripped and
// fields trimmed after extraction.
func tokenizeLine(line string) []string {
	var fields []string
	var buf strings.Builder
	inQuotes := false

	flush := func() {
		fields = append(fields, strings.TrimSpace(buf.String()))
		buf.Reset()
	}

	for _, r := range strings.TrimRight(line, "\r") {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			flush()
		default:
			buf.WriteRune(r)
		}
	}
	flush()
	return fields
}
