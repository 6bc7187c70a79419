package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestFilterPredicateMatches(t *testing.T) {
	pred := FilterPredicate{Conditions: []Condition{
		NewMatch("color", "white"),
		NewMatch("size", "m"),
		NewRange("price", Range{Lt: ptr(50)}),
	}}

	assert.True(t, pred.Matches(map[string]any{
		"color": "White",
		"size":  []any{"S", "M"},
		"price": 39.9,
	}))
	assert.False(t, pred.Matches(map[string]any{
		"color": "white",
		"size":  []string{"L"},
		"price": 10.0,
	}), "size list must contain the value")
	assert.False(t, pred.Matches(map[string]any{
		"color": "white",
		"size":  "m",
		"price": 50.0,
	}), "lt bound is exclusive")
	assert.False(t, pred.Matches(map[string]any{"color": "white", "size": "m"}), "missing attribute")
}

func TestEmptyPredicateMatchesEverything(t *testing.T) {
	assert.True(t, FilterPredicate{}.Matches(nil))
	assert.Equal(t, "<none>", FilterPredicate{}.String())
}

func TestRangeContainsStringMetadata(t *testing.T) {
	pred := FilterPredicate{Conditions: []Condition{NewRange("price", Range{Gte: ptr(10), Lte: ptr(20)})}}
	assert.True(t, pred.Matches(map[string]any{"price": "15"}))
	assert.False(t, pred.Matches(map[string]any{"price": "n/a"}))
	assert.Equal(t, "price>=10<=20", pred.String())
}

func TestSchemaLookupAndCanonical(t *testing.T) {
	schema := DefaultSchema()

	attr, ok := schema.Lookup("Brand Name")
	assert.True(t, ok)
	assert.Equal(t, "brand", attr.Name)

	attr, ok = schema.Lookup("category")
	assert.True(t, ok)
	v, ok := attr.Canonical("T-Shirt")
	assert.True(t, ok)
	assert.Equal(t, "shirt", v)
	v, ok = attr.Canonical("T恤")
	assert.True(t, ok)
	assert.Equal(t, "shirt", v)
	_, ok = attr.Canonical("spaceship")
	assert.False(t, ok)

	_, ok = schema.Lookup("material")
	assert.False(t, ok)
}

func TestSchemaMergeAddsObservedValues(t *testing.T) {
	schema := DefaultSchema().Merge(map[string][]string{"color": {"teal", "white"}})
	attr, _ := schema.Lookup("color")
	v, ok := attr.Canonical("teal")
	assert.True(t, ok)
	assert.Equal(t, "teal", v)
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, LanguageChinese, DetectLanguage("推荐一些夏季连衣裙"))
	assert.Equal(t, LanguageEnglish, DetectLanguage("white T-shirt"))
	assert.Equal(t, LanguageEnglish, NewQuery("   ").Language)
}

func TestMessageFallsBackToEnglish(t *testing.T) {
	assert.Equal(t, Message(MessageNoMatch, LanguageEnglish), Message(MessageNoMatch, Language("fr")))
	assert.Contains(t, Message(MessageEmptyQuestion, LanguageChinese), "question")
}

func TestStageErrorUnwraps(t *testing.T) {
	err := &StageError{Stage: "generate", Err: WrapError(ErrGenerationFailure, "generate answer", assert.AnError)}
	assert.True(t, IsKind(err, ErrGenerationFailure))
	assert.Equal(t, "generate", FailedStage(err))
}

func TestFindTermRespectsWordBoundaries(t *testing.T) {
	assert.Equal(t, 6, FindTerm("plain tee", "tee"))
	assert.Equal(t, -1, FindTerm("teeth whitening", "tee"))
	assert.Equal(t, 2, FindTerm("a t-shirt", "t-shirt"))
	assert.Equal(t, 6, FindTerm("红色连衣裙", "连衣裙"))
	assert.Equal(t, -1, FindTerm("anything", ""))
}

func TestAttributeDetectPrefersLongestTerm(t *testing.T) {
	category, ok := DefaultSchema().Lookup("category")
	require.True(t, ok)

	v, ok := category.Detect("Navy blue T-Shirts for summer")
	require.True(t, ok)
	assert.Equal(t, "shirt", v)

	v, ok = category.Detect("半身裙 新款")
	require.True(t, ok)
	assert.Equal(t, "skirt", v)

	_, ok = category.Detect("gift card")
	assert.False(t, ok)
}
