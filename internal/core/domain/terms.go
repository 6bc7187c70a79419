package domain

import "strings"

// FindTerm returns the byte offset of term in text, or -1. Both are expected
// lowercased. Latin terms must sit on word boundaries; CJK terms match anywhere.
func FindTerm(text, term string) int {
	if term == "" {
		return -1
	}
	from := 0
	for {
		idx := strings.Index(text[from:], term)
		if idx < 0 {
			return -1
		}
		idx += from
		if !isLatin(term) || (wordBoundary(text, idx-1) && wordBoundary(text, idx+len(term))) {
			return idx
		}
		from = idx + 1
	}
}

// Detect returns the canonical value of the first (longest) term of a that
// occurs in text. Single-letter terms are ignored.
func (a Attribute) Detect(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, term := range a.Terms() {
		if len(term.Surface) < 2 {
			continue
		}
		if FindTerm(lower, term.Surface) >= 0 {
			return term.Canonical, true
		}
	}
	return "", false
}

func isLatin(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func wordBoundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	c := text[i]
	return !((c >= 'a' && c <= 'z') || (c >= '0' && c <= '9'))
}
