package term_resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/turtacn/ClinTerm-Intelligence/internal/domain/coding"
	"github.com/turtacn/ClinTerm-Intelligence/internal/intelligence/prompts"
)

func TestRate_ExactMatchSkipsOracle(t *testing.T) {
	oracle := newStubOracle()
	r := NewRatingEvaluator(oracle, time.Second, nil, nil)

	assert.Equal(t, coding.RatingExact, r.Rate(context.Background(), "Myocardial Infarction", "Myocardial infarction", "ctx"))
	assert.Zero(t, oracle.count(prompts.KindRating))
}

func TestRate_ParsesReply(t *testing.T) {
	tests := []struct {
		reply string
		want  coding.Rating
	}{
		{"1", 1},
		{"4", 4},
		{"5\n", 5},
		{"0", 0},
		{"7", 0},
		{"I would say 4", 0},
		{"", 0},
	}
	for _, tt := range tests {
		oracle := newStubOracle()
		oracle.ratings["Abdominal pain"] = tt.reply
		r := NewRatingEvaluator(oracle, time.Second, nil, nil)

		got := r.Rate(context.Background(), "tummy ache", "Abdominal pain", "ctx")
		assert.Equal(t, tt.want, got, "reply=%q", tt.reply)
		assert.Equal(t, 1, oracle.count(prompts.KindRating))
	}
}

func TestRate_OracleErrorIsZero(t *testing.T) {
	oracle := newStubOracle()
	oracle.err = errors.New("503")
	r := NewRatingEvaluator(oracle, time.Second, nil, nil)
	assert.Equal(t, coding.RatingNone, r.Rate(context.Background(), "a", "b", "c"))
}

type recordingMetrics struct {
	noopMetrics
	ratings []coding.Rating
	oracle  []bool
	res     []coding.Resolution
	extract []string
	lookups []string
}

func (m *recordingMetrics) RecordRating(r coding.Rating, oracleCalled bool) {
	m.ratings = append(m.ratings, r)
	m.oracle = append(m.oracle, oracleCalled)
}

func (m *recordingMetrics) RecordResolution(res coding.Resolution) { m.res = append(m.res, res) }

func (m *recordingMetrics) RecordExtraction(outcome string, _ int) {
	m.extract = append(m.extract, outcome)
}

func (m *recordingMetrics) RecordLookup(outcome string, _ time.Duration) {
	m.lookups = append(m.lookups, outcome)
}

func TestRate_RecordsMetrics(t *testing.T) {
	oracle := newStubOracle()
	oracle.ratings["Gastric pain"] = "3"
	m := &recordingMetrics{}
	r := NewRatingEvaluator(oracle, time.Second, nil, m)

	r.Rate(context.Background(), "pain", "PAIN", "")
	r.Rate(context.Background(), "stomach pain", "Gastric pain", "")

	assert.Equal(t, []coding.Rating{5, 3}, m.ratings)
	assert.Equal(t, []bool{false, true}, m.oracle)
}
