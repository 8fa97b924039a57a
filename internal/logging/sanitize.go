package logging

import (
	"regexp"
	"strings"
)

// MaskEmail keeps the first and last character of each address part,
// e.g. alice@example.com becomes a***e@e*****e.c*m. Values without an
// @ are returned unchanged.
func MaskEmail(s string) string {
	s = strings.TrimSpace(s)
	at := strings.LastIndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return s
	}

	mask := func(part string) string {
		if len(part) <= 1 {
			return "*"
		}
		return part[:1] + strings.Repeat("*", max(0, len(part)-2)) + part[len(part)-1:]
	}

	dParts := strings.Split(s[at+1:], ".")
	for i, p := range dParts {
		dParts[i] = mask(p)
	}
	return mask(s[:at]) + "@" + strings.Join(dParts, ".")
}

var emailRE = regexp.MustCompile(`(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`)

// RedactEmails masks every address found in s.
func RedactEmails(s string) string {
	return emailRE.ReplaceAllStringFunc(s, MaskEmail)
}

// MaskAll masks each address of a recipient list.
func MaskAll(addrs []string) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = MaskEmail(a)
	}
	return out
}

// Bound strips control characters and truncates s to at most n bytes
// without splitting a UTF-8 sequence.
func Bound(s string, n int) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.TrimSpace(s) {
		if r < 32 || r == 127 {
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()
	if n <= 0 || len(out) <= n {
		return out
	}

	cut := n
	for cut > 0 && out[cut]&0xC0 == 0x80 {
		cut--
	}
	return out[:cut]
}
