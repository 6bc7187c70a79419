package usecase

import (
	"context"
	"strings"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
)

var fashionKeywords = []string{
	"wear", "outfit", "clothes", "clothing", "fashion", "style", "stylish", "apparel", "garment",
	"accessory", "accessories", "wardrobe", "dress", "shirt", "pants", "jeans", "shoes", "jacket",
	"穿", "衣", "搭配", "时尚", "服装", "款式", "裙", "裤", "鞋", "外套",
}

// KeywordTopicGuard classifies a query as in-domain when it mentions a schema
// value or a clothing keyword. It backs up the model-based classifier.
type KeywordTopicGuard struct {
	terms []string
}

func NewKeywordTopicGuard(schema domain.Schema) *KeywordTopicGuard {
	terms := append([]string(nil), fashionKeywords...)
	for _, attr := range schema.Attributes {
		if attr.Type != domain.AttributeString {
			continue
		}
		for _, term := range attr.Terms() {
			// single latin letters (sizes) match too much
			if len(term.Surface) < 2 {
				continue
			}
			terms = append(terms, term.Surface)
		}
	}
	return &KeywordTopicGuard{terms: terms}
}

func (g *KeywordTopicGuard) IsInDomain(_ context.Context, query domain.Query) (bool, error) {
	text := strings.ToLower(query.Text)
	if text == "" {
		return false, nil
	}
	tokens := make(map[string]struct{})
	for _, tok := range splitAlphaNumLower(text) {
		tokens[tok] = struct{}{}
	}
	for _, term := range g.terms {
		if isASCIIWord(term) {
			if _, ok := tokens[term]; ok {
				return true, nil
			}
			continue
		}
		if strings.Contains(text, term) {
			return true, nil
		}
	}
	return false, nil
}

func isASCIIWord(s string) bool {
	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return s != ""
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
