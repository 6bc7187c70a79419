// Package lexicon extracts structured filters from a query by matching
// schema values and simple price phrases, without calling a model.
package lexicon

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
)

var (
	pricePatterns = []struct {
		re  *regexp.Regexp
		key string
	}{
		{regexp.MustCompile(`(?i)\b(?:under|below|less than|cheaper than|up to|max(?:imum)?)\s*\$?\s*(\d+(?:\.\d+)?)`), "lte"},
		{regexp.MustCompile(`(?i)\b(?:over|above|more than|at least|min(?:imum)?)\s*\$?\s*(\d+(?:\.\d+)?)`), "gte"},
		{regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:元|块)?\s*(?:以下|以内)`), "lte"},
		{regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:元|块)?\s*以上`), "gte"},
		{regexp.MustCompile(`(?:低于|少于|不超过)\s*(\d+(?:\.\d+)?)`), "lte"},
		{regexp.MustCompile(`(?:高于|超过|至少)\s*(\d+(?:\.\d+)?)`), "gte"},
	}
	betweenPattern = regexp.MustCompile(`(?i)\bbetween\s*\$?\s*(\d+(?:\.\d+)?)\s*(?:and|-|to)\s*\$?\s*(\d+(?:\.\d+)?)`)
	spaces         = regexp.MustCompile(`\s+`)
)

// Extractor implements ports.FilterExtractor. Its output uses the same JSON
// shape a model would produce, so validation stays in one place.
type Extractor struct {
	priceAttribute string
}

func New() *Extractor {
	return &Extractor{priceAttribute: "price"}
}

type output struct {
	Query  string         `json:"query"`
	Filter map[string]any `json:"filter"`
}

func (e *Extractor) Extract(_ context.Context, query domain.Query, schema domain.Schema) (string, error) {
	residual := query.Text
	lower := strings.ToLower(residual)
	filter := make(map[string]any)

	for _, attr := range schema.Attributes {
		if attr.Type != domain.AttributeString || len(attr.Values) == 0 {
			continue
		}
		for _, term := range attr.Terms() {
			// single-letter sizes collide with ordinary words
			if len(term.Surface) < 2 {
				continue
			}
			pos := domain.FindTerm(lower, term.Surface)
			if pos < 0 {
				continue
			}
			if _, taken := filter[attr.Name]; !taken {
				filter[attr.Name] = term.Canonical
			}
			// colors and similar qualifiers are consumed; the product noun
			// stays in the residual for ranking
			if attr.Name != "category" {
				residual = residual[:pos] + strings.Repeat(" ", len(term.Surface)) + residual[pos+len(term.Surface):]
				lower = strings.ToLower(residual)
			}
			break
		}
	}

	if _, ok := schema.Lookup(e.priceAttribute); ok {
		if rng, span := extractPrice(residual); rng != nil {
			filter[e.priceAttribute] = rng
			residual = strings.Replace(residual, span, " ", 1)
		}
	}

	residual = strings.TrimSpace(spaces.ReplaceAllString(residual, " "))
	raw, err := json.Marshal(output{Query: residual, Filter: filter})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func extractPrice(text string) (map[string]float64, string) {
	if m := betweenPattern.FindStringSubmatch(text); m != nil {
		lo, errLo := strconv.ParseFloat(m[1], 64)
		hi, errHi := strconv.ParseFloat(m[2], 64)
		if errLo == nil && errHi == nil {
			if lo > hi {
				lo, hi = hi, lo
			}
			return map[string]float64{"gte": lo, "lte": hi}, m[0]
		}
	}
	for _, p := range pricePatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		return map[string]float64{p.key: v}, m[0]
	}
	return nil, ""
}
