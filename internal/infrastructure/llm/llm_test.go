package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/fashion-recommender/internal/core/domain"
)

type completerFake struct {
	name    string
	out     string
	err     error
	calls   int
	prompts []string
}

func (f *completerFake) Name() string { return f.name }

func (f *completerFake) Complete(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	return f.out, f.err
}

func (f *completerFake) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	return f.Complete(ctx, prompt)
}

func TestParseYesNo(t *testing.T) {
	cases := []struct {
		raw      string
		inDomain bool
		ok       bool
	}{
		{raw: `{"score": "Yes"}`, inDomain: true, ok: true},
		{raw: `{"score": "No"}`, inDomain: false, ok: true},
		{raw: `{"on_topic": true}`, inDomain: true, ok: true},
		{raw: "Yes.", inDomain: true, ok: true},
		{raw: " no ", inDomain: false, ok: true},
		{raw: "是", inDomain: true, ok: true},
		{raw: "否", inDomain: false, ok: true},
		{raw: "maybe", inDomain: false, ok: false},
		{raw: `{"unrelated": "Yes"}`, inDomain: false, ok: false},
	}
	for _, tc := range cases {
		inDomain, ok := parseYesNo(tc.raw)
		assert.Equal(t, tc.ok, ok, tc.raw)
		assert.Equal(t, tc.inDomain, inDomain, tc.raw)
	}
}

func TestAssistantIsInDomain(t *testing.T) {
	fake := &completerFake{out: `{"score":"No"}`}
	assistant := NewAssistant(fake, nil)

	inDomain, err := assistant.IsInDomain(context.Background(), domain.NewQuery("what's the weather today"))
	require.NoError(t, err)
	assert.False(t, inDomain)
	assert.Contains(t, fake.prompts[0], "what's the weather today")

	fake.out = "I cannot tell"
	_, err = assistant.IsInDomain(context.Background(), domain.NewQuery("hello"))
	assert.Error(t, err)
}

func TestAssistantExtractListsSchema(t *testing.T) {
	fake := &completerFake{out: `{"query":"t-shirt","filter":{"color":"white"}}`}
	raw, err := NewAssistant(fake, nil).Extract(context.Background(), domain.NewQuery("white T-shirt"), domain.DefaultSchema())
	require.NoError(t, err)
	assert.Equal(t, fake.out, raw)
	assert.Contains(t, fake.prompts[0], "- color (string)")
	assert.Contains(t, fake.prompts[0], "- price (number)")
	assert.Contains(t, fake.prompts[0], "User query: white T-shirt")
}

func TestAssistantGeneratePrompts(t *testing.T) {
	fake := &completerFake{out: "  Try the white tee.  "}
	assistant := NewAssistant(fake, nil)

	answer, err := assistant.Generate(context.Background(), domain.GenerationRequest{
		Query: domain.NewQuery("white T-shirt"),
		Documents: []domain.ScoredDocument{{
			Document: domain.Document{ID: "42", Text: "Plain white tee", Metadata: map[string]any{"brand": "Acme", "price": 19.5}},
			Score:    0.9,
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Try the white tee.", answer)
	assert.Contains(t, fake.prompts[0], "id=42 brand=Acme price=19.5")
	assert.Contains(t, fake.prompts[0], "Reply in English.")

	_, err = assistant.Generate(context.Background(), domain.GenerationRequest{
		Query:   domain.NewQuery("红色连衣裙"),
		NoMatch: true,
	})
	require.NoError(t, err)
	assert.Contains(t, fake.prompts[1], "no products matching")
	assert.Contains(t, fake.prompts[1], "in Chinese")

	_, err = assistant.Generate(context.Background(), domain.GenerationRequest{
		Query:    domain.NewQuery("what's the weather today"),
		OffTopic: true,
	})
	require.NoError(t, err)
	assert.Contains(t, fake.prompts[2], "outside fashion")
	assert.Contains(t, fake.prompts[2], "User question: what's the weather today")
}

func TestFallbackCompleterUsesNextProvider(t *testing.T) {
	primary := &completerFake{name: "openrouter", err: errors.New("503")}
	secondary := &completerFake{name: "ollama", out: "ok"}
	chain := NewFallbackCompleter(nil, primary, secondary)

	out, err := chain.Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestFallbackCompleterAggregatesErrors(t *testing.T) {
	chain := NewFallbackCompleter(nil,
		&completerFake{name: "openrouter", err: errors.New("unauthorized")},
		&completerFake{name: "ollama", err: errors.New("connection refused")},
	)
	_, err := chain.CompleteJSON(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openrouter: unauthorized")
	assert.Contains(t, err.Error(), "ollama: connection refused")

	_, err = NewFallbackCompleter(nil).Complete(context.Background(), "hi")
	assert.Error(t, err)
}

func TestFallbackCompleterStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	secondary := &completerFake{name: "ollama", out: "ok"}
	chain := NewFallbackCompleter(nil, &completerFake{name: "openrouter", err: context.Canceled}, secondary)

	_, err := chain.Complete(ctx, "hi")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, secondary.calls)
}
