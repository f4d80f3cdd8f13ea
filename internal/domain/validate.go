package domain

import (
	"net/mail"
	"regexp"
	"strings"
)

var phonePattern = regexp.MustCompile(`^(\+84)?\d{9,11}$`)

// NormalizePhone strips whitespace, dots and dashes. The boolean reports
// whether the result is 9 to 11 digits with an optional +84 prefix.
func NormalizePhone(raw string) (string, bool) {
	phone := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '.', '-':
			return -1
		}
		return r
	}, raw)
	return phone, phonePattern.MatchString(phone)
}

// ValidEmail is a syntactic check only: a bare addr-spec with a dotted domain.
func ValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return at > 0 && strings.Contains(s[at+1:], ".")
}
