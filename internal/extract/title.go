package extract

import (
	"regexp"
	"strings"
)

var (
	bracketYearRe = regexp.MustCompile(`\(\d{4}\)|\[\d{4}\]`)
	suffixYearRe  = regexp.MustCompile(`(?i)\d{4}\s*г\.?($|[^\p{L}\p{N}_])`)
	tokenRe       = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	fourDigitsRe  = regexp.MustCompile(`^\d{4}$`)
	trailingRe    = regexp.MustCompile(`[\s,\-]+$`)
	leadingRe     = regexp.MustCompile(`^[\s,\-]+`)
)

// CleanTitle removes model-year tokens from a listing title ("2021",
// "(2021)", "[2021]", "2021г.") and tidies the separators left behind. If
// nothing remains the original title is returned.
func CleanTitle(title string) string {
	if title == "" {
		return title
	}

	s := bracketYearRe.ReplaceAllString(title, "")
	s = suffixYearRe.ReplaceAllString(s, "$1")
	s = tokenRe.ReplaceAllStringFunc(s, func(tok string) string {
		if fourDigitsRe.MatchString(tok) {
			return ""
		}
		return tok
	})

	s = spaceRe.ReplaceAllString(s, " ")
	s = trailingRe.ReplaceAllString(s, "")
	s = leadingRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if s == "" {
		return title
	}
	return s
}
