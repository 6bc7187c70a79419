package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
)

type filterExtractorFake struct {
	raw string
	err error
}

func (f filterExtractorFake) Extract(context.Context, domain.Query, domain.Schema) (string, error) {
	return f.raw, f.err
}

func TestSelfQueryWhiteTShirt(t *testing.T) {
	parser := NewSelfQueryParser(filterExtractorFake{
		raw: "```json\n{\"query\": \"t-shirt\", \"filter\": {\"color\": \"White\", \"category\": \"T-shirt\"}}\n```",
	}, nil)

	parsed := parser.Parse(context.Background(), domain.NewQuery("white T-shirt"), domain.DefaultSchema())

	require.False(t, parsed.Degraded)
	assert.NotEmpty(t, parsed.Residual)
	color, ok := parsed.Predicate.Value("color")
	require.True(t, ok)
	assert.Equal(t, "white", color)
	category, ok := parsed.Predicate.Value("category")
	require.True(t, ok)
	assert.Equal(t, "shirt", category)
	assert.Len(t, parsed.Predicate.Conditions, 2)
}

func TestParseFilterOutputDropsUnknownAndMistypedAttributes(t *testing.T) {
	raw := `{"query": "dress", "filter": {"material": "silk", "price": "cheap", "Brand Name": "Zara", "color": 7, "size": ["huge", "M"]}}`

	parsed, err := ParseFilterOutput(raw, domain.DefaultSchema())
	require.NoError(t, err)

	assert.Equal(t, 3, parsed.Dropped)
	brand, ok := parsed.Predicate.Value("brand")
	require.True(t, ok)
	assert.Equal(t, "zara", brand)
	size, ok := parsed.Predicate.Value("size")
	require.True(t, ok)
	assert.Equal(t, "m", size)
}

func TestParseFilterOutputNumericRanges(t *testing.T) {
	parsed, err := ParseFilterOutput(`{"query":"jacket","filter":{"Product Price":{"gte":20,"lt":100}}}`, domain.DefaultSchema())
	require.NoError(t, err)
	require.Len(t, parsed.Predicate.Conditions, 1)

	cond := parsed.Predicate.Conditions[0]
	assert.Equal(t, "price", cond.Attribute)
	assert.Equal(t, domain.ConditionRange, cond.Kind)
	assert.True(t, cond.Range.Contains(20))
	assert.False(t, cond.Range.Contains(100))

	parsed, err = ParseFilterOutput(`{"query":"jacket","filter":{"price":{"gt":100,"lt":10}}}`, domain.DefaultSchema())
	require.NoError(t, err)
	assert.True(t, parsed.Predicate.IsEmpty(), "unsatisfiable range is dropped")

	parsed, err = ParseFilterOutput(`{"query":"jacket","filter":{"price":{"below":10}}}`, domain.DefaultSchema())
	require.NoError(t, err)
	assert.True(t, parsed.Predicate.IsEmpty(), "unknown range operator is dropped")
}

func TestParseFilterOutputNoFilterMarker(t *testing.T) {
	for _, raw := range []string{"NO_FILTER", `"NO_FILTER"`, `{"query":"shoes","filter":"NO_FILTER"}`, `{"query":"shoes"}`} {
		parsed, err := ParseFilterOutput(raw, domain.DefaultSchema())
		require.NoError(t, err, raw)
		assert.True(t, parsed.Predicate.IsEmpty(), raw)
	}
}

func TestSelfQueryMalformedOutputMeansNoFilter(t *testing.T) {
	cases := map[string]filterExtractorFake{
		"not json":        {raw: "color is white"},
		"broken json":     {raw: `{"query": "shirt", "filter": {"color": }`},
		"filter is array": {raw: `{"query": "shirt", "filter": ["white"]}`},
		"extractor error": {err: errors.New("model timeout")},
	}
	for name, extractor := range cases {
		t.Run(name, func(t *testing.T) {
			parsed := NewSelfQueryParser(extractor, nil).Parse(context.Background(), domain.NewQuery("white shirt"), domain.DefaultSchema())
			assert.True(t, parsed.Degraded)
			assert.True(t, parsed.Predicate.IsEmpty())
			assert.Equal(t, "white shirt", parsed.Residual)
		})
	}
}

func TestSelfQueryEmptyResidualFallsBackToQuery(t *testing.T) {
	parsed := NewSelfQueryParser(filterExtractorFake{raw: `{"query":"","filter":{"color":"black"}}`}, nil).
		Parse(context.Background(), domain.NewQuery("black"), domain.DefaultSchema())
	assert.Equal(t, "black", parsed.Residual)
	assert.False(t, parsed.Predicate.IsEmpty())
}

func TestSelfQueryWithoutExtractor(t *testing.T) {
	parsed := NewSelfQueryParser(nil, nil).Parse(context.Background(), domain.NewQuery("red dress"), domain.DefaultSchema())
	assert.Equal(t, "red dress", parsed.Residual)
	assert.True(t, parsed.Predicate.IsEmpty())
	assert.False(t, parsed.Degraded)
}
