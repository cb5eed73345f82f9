package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/models"
)

func section(questions ...models.QuestionGrade) models.RawSection {
	return models.RawSection{Questions: questions}
}

func q(id string, awarded, max float64) models.QuestionGrade {
	return models.QuestionGrade{QuestionID: id, AwardedMarks: awarded, MaxMarks: max}
}

func TestAggregateDropsLowestAtThreshold(t *testing.T) {
	raw := models.RawGrade{
		Sections: map[string]models.RawSection{
			"A": section(q("q1", 4, 5), q("q2", 5, 5), q("q3", 3, 5)),
		},
	}

	result, err := Aggregate(raw, DefaultConfig(), models.ModeLiberal)
	require.NoError(t, err)

	sec := result.Sections["A"]
	assert.Equal(t, []string{"q3"}, sec.DiscardedQuestions)
	assert.Equal(t, []string{"q1", "q2"}, sec.RetainedQuestions)
	assert.Equal(t, 9.0, sec.SectionTotal)
	assert.Equal(t, 10.0, sec.SectionMax, "max of the dropped question must not count")

	assert.Equal(t, 9.0, result.GrandTotal)
	assert.Equal(t, 10.0, result.MaxPossible)
	assert.Equal(t, 90.0, result.Percentage)
	assert.Equal(t, "O", result.Grade)
	assert.Equal(t, VerdictPass, result.Result)
}

func TestAggregateDropsLowestAboveThreshold(t *testing.T) {
	raw := models.RawGrade{
		Sections: map[string]models.RawSection{
			"A": section(q("q1", 4, 5), q("q2", 5, 5), q("q3", 3, 5), q("q4", 2, 5)),
		},
	}

	result, err := Aggregate(raw, DefaultConfig(), models.ModeLiberal)
	require.NoError(t, err)

	sec := result.Sections["A"]
	assert.Equal(t, []string{"q4"}, sec.DiscardedQuestions, "only the single lowest is dropped")
	assert.Equal(t, []string{"q1", "q2", "q3"}, sec.RetainedQuestions)
	assert.Equal(t, 12.0, sec.SectionTotal)
	assert.Equal(t, 15.0, sec.SectionMax)
}

func TestAggregateNoDropBelowThreshold(t *testing.T) {
	raw := models.RawGrade{
		Sections: map[string]models.RawSection{
			"A": section(q("q1", 3, 5), q("q2", 1, 5)),
		},
	}

	result, err := Aggregate(raw, DefaultConfig(), models.ModeLiberal)
	require.NoError(t, err)

	sec := result.Sections["A"]
	assert.Empty(t, sec.DiscardedQuestions)
	assert.Equal(t, 4.0, sec.SectionTotal)
	assert.Equal(t, 10.0, sec.SectionMax)
}

func TestAggregateTieBreakDiscardsLaterID(t *testing.T) {
	raw := models.RawGrade{
		Sections: map[string]models.RawSection{
			"A": section(q("q3", 4, 5), q("q1", 2, 5), q("q2", 2, 5)),
		},
	}

	result, err := Aggregate(raw, DefaultConfig(), models.ModeLiberal)
	require.NoError(t, err)

	sec := result.Sections["A"]
	assert.Equal(t, []string{"q2"}, sec.DiscardedQuestions)
	assert.Equal(t, []string{"q1", "q3"}, sec.RetainedQuestions)
	assert.Equal(t, 6.0, sec.SectionTotal)
}

func TestAggregateTieBreakIgnoresInputOrder(t *testing.T) {
	first := models.RawGrade{
		Sections: map[string]models.RawSection{
			"A": section(q("q1", 2, 5), q("q2", 2, 5), q("q3", 4, 5)),
		},
	}
	second := models.RawGrade{
		Sections: map[string]models.RawSection{
			"A": section(q("q2", 2, 5), q("q3", 4, 5), q("q1", 2, 5)),
		},
	}

	a, err := Aggregate(first, DefaultConfig(), models.ModeLiberal)
	require.NoError(t, err)
	b, err := Aggregate(second, DefaultConfig(), models.ModeLiberal)
	require.NoError(t, err)

	assert.Equal(t, a.Sections["A"].DiscardedQuestions, b.Sections["A"].DiscardedQuestions)
	assert.Equal(t, a.GrandTotal, b.GrandTotal)
}

func TestAggregateIsDeterministic(t *testing.T) {
	raw := models.RawGrade{
		Sections: map[string]models.RawSection{
			"A": section(q("q1", 4, 5), q("q2", 5, 5), q("q3", 3, 5)),
			"B": section(q("q4", 7, 10), q("q5", 6, 10), q("q6", 9, 10)),
		},
	}

	first, err := Aggregate(raw, DefaultConfig(), models.ModeStrict)
	require.NoError(t, err)
	second, err := Aggregate(raw, DefaultConfig(), models.ModeStrict)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAggregateMultipleSections(t *testing.T) {
	raw := models.RawGrade{
		Sections: map[string]models.RawSection{
			"A": section(q("q1", 4, 5), q("q2", 5, 5), q("q3", 3, 5)),
			"B": section(q("q4", 7, 10), q("q5", 6, 10), q("q6", 9, 10)),
		},
	}

	result, err := Aggregate(raw, DefaultConfig(), models.ModeLiberal)
	require.NoError(t, err)

	// A drops q3 (9/10), B drops q5 (16/20).
	assert.Equal(t, 25.0, result.GrandTotal)
	assert.Equal(t, 30.0, result.MaxPossible)
	assert.Equal(t, []string{"q5"}, result.Sections["B"].DiscardedQuestions)
}

func TestAggregatePassThresholdBoundary(t *testing.T) {
	raw := models.RawGrade{
		Sections: map[string]models.RawSection{
			"A": section(q("q1", 3, 6), q("q2", 2, 4)),
		},
	}

	result, err := Aggregate(raw, DefaultConfig(), models.ModeLiberal)
	require.NoError(t, err)

	assert.Equal(t, 5.0, result.GrandTotal)
	assert.Equal(t, 10.0, result.MaxPossible)
	assert.Equal(t, VerdictPass, result.Result, "exactly at threshold must pass")
	assert.Equal(t, "C", result.Grade)
}

func TestAggregateUpstreamVerdictWins(t *testing.T) {
	raw := models.RawGrade{
		Sections: map[string]models.RawSection{
			"A": section(q("q1", 5, 5), q("q2", 5, 5)),
		},
		Verdict: VerdictFail,
	}

	result, err := Aggregate(raw, DefaultConfig(), models.ModeLiberal)
	require.NoError(t, err)

	assert.Equal(t, VerdictFail, result.Result)
	assert.Equal(t, 100.0, result.Percentage)
}

func TestAggregateRejectsMalformedGrades(t *testing.T) {
	tests := []struct {
		name string
		raw  models.RawGrade
	}{
		{
			name: "awarded exceeds max",
			raw: models.RawGrade{Sections: map[string]models.RawSection{
				"A": section(q("q1", 6, 5)),
			}},
		},
		{
			name: "non-positive max",
			raw: models.RawGrade{Sections: map[string]models.RawSection{
				"A": section(q("q1", 0, 0)),
			}},
		},
		{
			name: "negative awarded",
			raw: models.RawGrade{Sections: map[string]models.RawSection{
				"A": section(q("q1", -1, 5)),
			}},
		},
		{
			name: "empty question id",
			raw: models.RawGrade{Sections: map[string]models.RawSection{
				"A": section(q("", 3, 5)),
			}},
		},
		{
			name: "unknown section",
			raw: models.RawGrade{Sections: map[string]models.RawSection{
				"Z": section(q("q1", 3, 5)),
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Aggregate(tt.raw, DefaultConfig(), models.ModeLiberal)
			require.Error(t, err)
		})
	}
}

func TestLetterGradeLadder(t *testing.T) {
	tests := []struct {
		percentage float64
		grade      string
	}{
		{95, "O"},
		{90, "O"},
		{85, "A+"},
		{75, "A"},
		{65, "B+"},
		{57, "B"},
		{52, "C"},
		{47, "D"},
		{30, "F"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.grade, letterGrade(tt.percentage), "percentage %v", tt.percentage)
	}
}

func TestOverallFeedbackMentionsDroppedQuestion(t *testing.T) {
	raw := models.RawGrade{
		Sections: map[string]models.RawSection{
			"A": section(q("q1", 4, 5), q("q2", 5, 5), q("q3", 3, 5)),
		},
	}

	result, err := Aggregate(raw, DefaultConfig(), models.ModeLiberal)
	require.NoError(t, err)

	assert.Contains(t, result.OverallFeedback, "dropped q3")
	assert.Contains(t, result.OverallFeedback, "Final Score: 9/10")
	assert.Contains(t, result.OverallFeedback, "Result: PASS")
}
