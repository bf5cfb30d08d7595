package calls

import "strings"

// minMatchDigits keeps very short keys (extensions, "0") from matching everything.
const minMatchDigits = 6

// CleanNumber keeps digits and a leading '+'.
func CleanNumber(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// matchKey drops the '+' and any trunk or international zeros,
// so "0612345678", "+33612345678" and "0033612345678" share a suffix.
func matchKey(s string) string {
	return strings.TrimLeft(strings.TrimPrefix(CleanNumber(s), "+"), "0")
}

// MatchNumber reports whether two phone numbers refer to the same line,
// by containment in either direction after cleaning.
func MatchNumber(a, b string) bool {
	ka, kb := matchKey(a), matchKey(b)
	if len(ka) < minMatchDigits || len(kb) < minMatchDigits {
		return false
	}
	return strings.Contains(ka, kb) || strings.Contains(kb, ka)
}

// MatchesLine reports whether the call was placed from or to line.
func MatchesLine(rec CallRecord, line string) bool {
	return MatchNumber(rec.CallerNumber, line) || MatchNumber(rec.CalleeNumber, line)
}
