package term_resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ClinTerm-Intelligence/internal/domain/coding"
	"github.com/turtacn/ClinTerm-Intelligence/internal/intelligence/prompts"
	"github.com/turtacn/ClinTerm-Intelligence/internal/testutil"
)

type mockTermResolver struct{ mock.Mock }

func (m *mockTermResolver) Resolve(ctx context.Context, term, lineContext string) coding.Resolution {
	return m.Called(ctx, term, lineContext).Get(0).(coding.Resolution)
}

func (m *mockTermResolver) ResolveBatch(ctx context.Context, terms []string, lineContext string) []coding.Resolution {
	return m.Called(ctx, terms, lineContext).Get(0).([]coding.Resolution)
}

func TestProcessLine_ResolvesExtractedTerms(t *testing.T) {
	line := "Pt reports fever and cough"
	oracle := newStubOracle()
	oracle.extract[line] = `Sure! [{"text":"fever"},{"text":"cough"}]`

	fever := snomed("386661006", "Fever")
	resolver := new(mockTermResolver)
	resolver.On("ResolveBatch", mock.Anything, []string{"fever", "cough"}, line).Return([]coding.Resolution{
		{Term: "fever", Candidate: &fever, Rating: 5, Strategy: coding.StrategyDirect, Resolved: true},
		coding.Unresolved("cough"),
	})
	m := &recordingMetrics{}
	p := NewLineProcessor(oracle, resolver, time.Second, nil, m)

	res := p.ProcessLine(context.Background(), "  "+line+"\n")

	assert.False(t, res.Malformed)
	assert.Equal(t, line, res.Line)
	assert.Equal(t, []string{"fever", "cough"}, res.Terms)
	require.Len(t, res.Resolutions, 2)
	assert.Equal(t, "386661006", res.Resolutions["fever"].ConceptID())
	assert.False(t, res.Resolutions["cough"].Resolved)
	assert.Equal(t, 1, res.ResolvedCount())
	assert.Equal(t, []string{ExtractionOK}, m.extract)
	resolver.AssertExpectations(t)
}

func TestProcessLine_MalformedReply(t *testing.T) {
	line := "Patient seems fine."
	oracle := newStubOracle()
	oracle.extract[line] = "No clinical terms here."
	resolver := new(mockTermResolver)
	logger := testutil.NewMockLogger()
	p := NewLineProcessor(oracle, resolver, time.Second, logger, nil)

	res := p.ProcessLine(context.Background(), line)

	assert.True(t, res.Malformed)
	assert.Empty(t, res.Terms)
	assert.Empty(t, res.Resolutions)
	assert.True(t, logger.HasMessage("warn", "malformed extraction reply"))
	resolver.AssertNotCalled(t, "ResolveBatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessLine_EmptyArrayIsNotMalformed(t *testing.T) {
	oracle := newStubOracle()
	oracle.extract["Vitals stable."] = "[]"
	resolver := new(mockTermResolver)
	resolver.On("ResolveBatch", mock.Anything, []string{}, "Vitals stable.").Return([]coding.Resolution{})
	p := NewLineProcessor(oracle, resolver, time.Second, nil, nil)

	res := p.ProcessLine(context.Background(), "Vitals stable.")
	assert.False(t, res.Malformed)
	assert.Empty(t, res.Terms)
}

func TestProcessLine_BlankLineSkipsOracle(t *testing.T) {
	oracle := newStubOracle()
	p := NewLineProcessor(oracle, new(mockTermResolver), time.Second, nil, nil)

	res := p.ProcessLine(context.Background(), "   \t ")
	assert.Empty(t, res.Line)
	assert.False(t, res.Malformed)
	assert.Zero(t, oracle.count(prompts.KindExtract))
}

func TestProcessLine_OracleFailure(t *testing.T) {
	oracle := newStubOracle()
	oracle.err = errors.New("connection refused")
	m := &recordingMetrics{}
	p := NewLineProcessor(oracle, new(mockTermResolver), time.Second, nil, m)

	res := p.ProcessLine(context.Background(), "fever since Tuesday")
	assert.False(t, res.Malformed)
	assert.Empty(t, res.Terms)
	assert.Equal(t, []string{ExtractionError}, m.extract)
}

func TestProcessLine_EndToEnd(t *testing.T) {
	line := "Hx of Myocardial Infarction"
	term := newStubTerminology().with("Myocardial Infarction", snomed("22298006", "Myocardial infarction"))
	oracle := newStubOracle()
	oracle.extract[line] = `[{"text":"Myocardial Infarction"}]`
	r := newTestResolver(term, oracle, testConfig())
	p := NewLineProcessor(oracle, r, time.Second, nil, nil)

	res := p.ProcessLine(context.Background(), line)
	ordered := res.Ordered()
	require.Len(t, ordered, 1)
	assert.Equal(t, "22298006", ordered[0].ConceptID())
	assert.Equal(t, coding.StrategyDirect, ordered[0].Strategy)
}

func TestNormalizeLine(t *testing.T) {
	assert.Equal(t, "caf\u00e9", NormalizeLine(" cafe\u0301 "))
}
