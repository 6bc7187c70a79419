package lexicon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
)

func extract(t *testing.T, text string) string {
	t.Helper()
	raw, err := New().Extract(context.Background(), domain.NewQuery(text), domain.DefaultSchema())
	require.NoError(t, err)
	return raw
}

func TestExtractWhiteTShirt(t *testing.T) {
	assert.JSONEq(t, `{"query":"T-shirt","filter":{"color":"white","category":"shirt"}}`, extract(t, "white T-shirt"))
}

func TestExtractPriceCeiling(t *testing.T) {
	assert.JSONEq(t,
		`{"query":"dress","filter":{"color":"red","category":"dress","price":{"lte":50}}}`,
		extract(t, "red dress under $50"),
	)
}

func TestExtractPriceBetween(t *testing.T) {
	assert.JSONEq(t,
		`{"query":"jacket","filter":{"category":"jacket","price":{"gte":20,"lte":80}}}`,
		extract(t, "jacket between 80 and 20"),
	)
}

func TestExtractChinese(t *testing.T) {
	assert.JSONEq(t,
		`{"query":"连衣裙","filter":{"color":"red","category":"dress","price":{"lte":300}}}`,
		extract(t, "红色连衣裙 300元以下"),
	)
}

func TestExtractIgnoresSubwordsAndSingleLetters(t *testing.T) {
	// "tee" inside "teeth" and the size "m" in "I'm" must not match
	assert.JSONEq(t, `{"query":"I'm looking for teeth whitening","filter":{}}`, extract(t, "I'm looking for teeth whitening"))
}

func TestExtractSizeWord(t *testing.T) {
	assert.JSONEq(t,
		`{"query":"sweater","filter":{"category":"sweater","size":"l"}}`,
		extract(t, "large sweater"),
	)
}
