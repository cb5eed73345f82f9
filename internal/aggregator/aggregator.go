// Package aggregator turns raw per-question grades into section and grand
// totals under the drop-lowest rule. It is pure: no I/O, no hidden state,
// identical inputs always produce identical results.
package aggregator

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/models"
)

const (
	VerdictPass = "PASS"
	VerdictFail = "FAIL"

	DefaultPassThreshold = 0.5
	DefaultDropThreshold = 3
)

type Config struct {
	// Specs configures the drop policy per section. A section present in the
	// raw grade but absent here is an aggregation error.
	Specs map[string]models.SectionSpec
	// PassThreshold is the grand total / max possible ratio required to
	// pass. An explicit upstream verdict takes precedence over it.
	PassThreshold float64
}

func DefaultConfig() Config {
	return Config{
		Specs: map[string]models.SectionSpec{
			"A": {DropThreshold: DefaultDropThreshold},
			"B": {DropThreshold: DefaultDropThreshold},
			"C": {DropThreshold: DefaultDropThreshold},
		},
		PassThreshold: DefaultPassThreshold,
	}
}

// Aggregate applies the drop-lowest rule per section and computes the grand
// total, pass verdict, letter grade and overall feedback. Malformed input
// (awarded > max, non-positive max, unknown section) fails loudly; marks are
// never clamped. The mode only records how grading was requested upstream,
// the arithmetic is identical for both modes.
func Aggregate(raw models.RawGrade, cfg Config, mode models.GradingMode) (models.AggregatedResult, error) {
	result := models.AggregatedResult{
		Sections: make(map[string]models.SectionResult, len(raw.Sections)),
		Mode:     mode,
	}

	names := make([]string, 0, len(raw.Sections))
	for name := range raw.Sections {
		names = append(names, name)
	}
	sort.Strings(names)

	var feedback []string

	for _, name := range names {
		spec, ok := cfg.Specs[name]
		if !ok {
			return models.AggregatedResult{}, fmt.Errorf("no section spec for section %q", name)
		}

		section, err := aggregateSection(name, raw.Sections[name], spec)
		if err != nil {
			return models.AggregatedResult{}, err
		}

		result.Sections[name] = section
		result.GrandTotal += section.SectionTotal
		result.MaxPossible += section.SectionMax

		if len(section.DiscardedQuestions) > 0 {
			feedback = append(feedback, fmt.Sprintf(
				"Section %s: %s/%s (dropped %s, lowest score)",
				name, formatMarks(section.SectionTotal), formatMarks(section.SectionMax),
				strings.Join(section.DiscardedQuestions, ", "),
			))
		} else {
			feedback = append(feedback, fmt.Sprintf(
				"Section %s: %s/%s",
				name, formatMarks(section.SectionTotal), formatMarks(section.SectionMax),
			))
		}
	}

	if result.MaxPossible > 0 {
		result.Percentage = math.Round(result.GrandTotal/result.MaxPossible*1000) / 10
	}
	result.Grade = letterGrade(result.Percentage)
	result.Result = verdict(raw.Verdict, result.GrandTotal, result.MaxPossible, cfg.PassThreshold)
	result.OverallFeedback = overallFeedback(result, feedback)

	return result, nil
}

func aggregateSection(name string, raw models.RawSection, spec models.SectionSpec) (models.SectionResult, error) {
	questions := append([]models.QuestionGrade(nil), raw.Questions...)
	sort.Slice(questions, func(i, j int) bool {
		return questions[i].QuestionID < questions[j].QuestionID
	})

	for _, q := range questions {
		if q.QuestionID == "" {
			return models.SectionResult{}, fmt.Errorf("section %s: question with empty id", name)
		}
		if q.MaxMarks <= 0 {
			return models.SectionResult{}, fmt.Errorf("section %s, question %s: max marks must be positive, got %v", name, q.QuestionID, q.MaxMarks)
		}
		if q.AwardedMarks < 0 {
			return models.SectionResult{}, fmt.Errorf("section %s, question %s: negative awarded marks %v", name, q.QuestionID, q.AwardedMarks)
		}
		if q.AwardedMarks > q.MaxMarks {
			return models.SectionResult{}, fmt.Errorf("section %s, question %s: awarded %v exceeds max %v", name, q.QuestionID, q.AwardedMarks, q.MaxMarks)
		}
	}

	threshold := spec.DropThreshold
	if threshold <= 0 {
		threshold = DefaultDropThreshold
	}

	dropped := ""
	if len(questions) >= threshold {
		dropped = lowestScoring(questions)
	}

	section := models.SectionResult{
		RetainedQuestions:  []string{},
		DiscardedQuestions: []string{},
		Questions:          questions,
	}
	for _, q := range questions {
		if q.QuestionID == dropped {
			section.DiscardedQuestions = append(section.DiscardedQuestions, q.QuestionID)
			continue
		}
		section.RetainedQuestions = append(section.RetainedQuestions, q.QuestionID)
		section.SectionTotal += q.AwardedMarks
		section.SectionMax += q.MaxMarks
	}

	return section, nil
}

// lowestScoring picks the question to discard: lowest awarded marks wins,
// and an exact tie goes to the lexicographically later id so the choice
// never depends on input ordering.
func lowestScoring(questions []models.QuestionGrade) string {
	lowest := questions[0]
	for _, q := range questions[1:] {
		switch {
		case q.AwardedMarks < lowest.AwardedMarks:
			lowest = q
		case q.AwardedMarks == lowest.AwardedMarks && q.QuestionID > lowest.QuestionID:
			lowest = q
		}
	}
	return lowest.QuestionID
}

func verdict(upstream string, grand, maxPossible, passThreshold float64) string {
	switch upstream {
	case VerdictPass, VerdictFail:
		return upstream
	}
	if maxPossible <= 0 {
		return VerdictFail
	}
	if grand/maxPossible >= passThreshold {
		return VerdictPass
	}
	return VerdictFail
}

func letterGrade(percentage float64) string {
	switch {
	case percentage >= 90:
		return "O"
	case percentage >= 80:
		return "A+"
	case percentage >= 70:
		return "A"
	case percentage >= 60:
		return "B+"
	case percentage >= 55:
		return "B"
	case percentage >= 50:
		return "C"
	case percentage >= 45:
		return "D"
	default:
		return "F"
	}
}

func overallFeedback(result models.AggregatedResult, sectionLines []string) string {
	parts := []string{
		"Result: " + result.Result,
		performanceComment(result.Percentage),
		"",
		"Section breakdown:",
	}
	for _, line := range sectionLines {
		parts = append(parts, "  - "+line)
	}
	parts = append(parts, "", fmt.Sprintf(
		"Final Score: %s/%s (%.1f%%)",
		formatMarks(result.GrandTotal), formatMarks(result.MaxPossible), result.Percentage,
	))
	return strings.Join(parts, "\n")
}

func performanceComment(percentage float64) string {
	switch {
	case percentage >= 80:
		return "Excellent performance. Strong understanding of concepts."
	case percentage >= 60:
		return "Good performance with solid grasp of fundamentals."
	case percentage >= 50:
		return "Average performance. Some concepts need more attention."
	case percentage >= 40:
		return "Below average. Focus on understanding core concepts."
	default:
		return "Needs significant improvement. Review all topics thoroughly."
	}
}

func formatMarks(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}
