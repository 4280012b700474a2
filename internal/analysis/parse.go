package analysis

import (
	"regexp"
	"strings"

	"leadscout-engine/internal/domain"
)

var sectionHeaders = []string{
	"WHY IT DIDN'T SELL",
	"BERNARD'S ANGLE",
	"TALKING POINTS",
}

var numberedLine = regexp.MustCompile(`^\s*\d+[.)]\s*(.+)$`)

// ParseSections pulls the fixed response sections out of the model text.
// A missing section yields an empty field, never an error: the upstream
// model does not always follow the template.
func ParseSections(text string) domain.Analysis {
	var a domain.Analysis
	a.WhyNotSold = strings.TrimSpace(sectionBody(text, "WHY IT DIDN'T SELL"))
	a.Angle = strings.TrimSpace(sectionBody(text, "BERNARD'S ANGLE"))

	for _, line := range strings.Split(sectionBody(text, "TALKING POINTS"), "\n") {
		if m := numberedLine.FindStringSubmatch(line); m != nil {
			a.TalkingPoints = append(a.TalkingPoints, strings.TrimSpace(m[1]))
		}
	}
	return a
}

// sectionBody returns the text between a header and the next known header
// (or end of text). Header matching is case-insensitive.
func sectionBody(text, header string) string {
	upper := strings.ToUpper(text)
	start := strings.Index(upper, strings.ToUpper(header))
	if start < 0 {
		return ""
	}
	start += len(header)

	end := len(text)
	for _, h := range sectionHeaders {
		if strings.EqualFold(h, header) {
			continue
		}
		if i := strings.Index(upper[start:], strings.ToUpper(h)); i >= 0 && start+i < end {
			end = start + i
		}
	}
	return strings.Trim(text[start:end], " \t\n:*")
}
