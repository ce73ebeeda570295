package prompts

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilders_FinalMessageCarriesInput(t *testing.T) {
	tests := []struct {
		name   string
		prompt Prompt
		kind   Kind
		want   string
	}{
		{"extract", Extract("pt has htn"), KindExtract, "pt has htn"},
		{"simplify", Simplify("tummy ache"), KindSimplify, "tummy ache"},
		{"generalize", Generalize("tummy ache"), KindGeneralize, "tummy ache"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.prompt.Kind)
			last := tt.prompt.Last()
			assert.Equal(t, RoleUser, last.Role)
			assert.Equal(t, tt.want, last.Content)
			assert.Equal(t, RoleSystem, tt.prompt.Messages[0].Role)
			assert.Zero(t, tt.prompt.MaxTokens)
		})
	}
}

func TestRating(t *testing.T) {
	p := Rating("tummy ache", "Abdominal pain", "Child with tummy ache since morning.")
	assert.Equal(t, KindRating, p.Kind)
	assert.Equal(t, RatingMaxTokens, p.MaxTokens)
	assert.Equal(t,
		"Clinician's term: tummy ache\nSNOMED term: Abdominal pain\nContext: Child with tummy ache since morning.",
		p.Last().Content)
}

func TestBuilders_DoNotShareState(t *testing.T) {
	a := Simplify("first")
	b := Simplify("second")
	a.Messages[1].Content = "mutated"

	assert.Equal(t, "first", a.Last().Content)
	assert.Equal(t, "second", b.Last().Content)
	assert.NotEqual(t, "mutated", Simplify("third").Messages[1].Content)
}

func TestBuilders_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			term := strings.Repeat("x", i+3)
			p := Generalize(term)
			assert.Equal(t, term, p.Last().Content)
		}(i)
	}
	wg.Wait()
}

func TestSystemAndConversation(t *testing.T) {
	p := Extract("fever")
	assert.NotEmpty(t, p.System())
	conv := p.Conversation()
	require.NotEmpty(t, conv)
	for _, m := range conv {
		assert.NotEqual(t, RoleSystem, m.Role)
	}
	assert.Equal(t, len(p.Messages)-1, len(conv))
}

func TestFlatten(t *testing.T) {
	out := Flatten(Simplify("T2DM"))
	assert.True(t, strings.HasSuffix(out, "User: T2DM\n\nAssistant:"))
	assert.Contains(t, out, "Assistant: type 2 diabetes mellitus")
}

func TestLast_Empty(t *testing.T) {
	assert.Equal(t, Message{}, Prompt{}.Last())
}
