package models

// SectionResult is one section's total after the drop-lowest rule.
// RetainedQuestions and DiscardedQuestions are disjoint and together cover
// every question the student answered in the section.
type SectionResult struct {
	RetainedQuestions  []string        `json:"retained_questions"`
	DiscardedQuestions []string        `json:"discarded_questions"`
	Questions          []QuestionGrade `json:"questions"`
	SectionTotal       float64         `json:"section_total"`
	SectionMax         float64         `json:"section_max"`
}

// AggregatedResult is the final score record attached to a completed job.
// The JSON field names are a stable contract for consumers.
type AggregatedResult struct {
	Sections map[string]SectionResult `json:"sections"`
	// GrandTotal is the sum of all section totals.
	GrandTotal float64 `json:"grand_total"`
	// MaxPossible excludes the max marks of dropped questions.
	MaxPossible     float64     `json:"max_marks"`
	Percentage      float64     `json:"percentage"`
	Grade           string      `json:"grade"`
	Result          string      `json:"result"` // PASS | FAIL
	OverallFeedback string      `json:"overall_feedback"`
	Mode            GradingMode `json:"mode"`
}

func (r AggregatedResult) Passed() bool {
	return r.Result == "PASS"
}

func (r AggregatedResult) Clone() AggregatedResult {
	out := r
	out.Sections = make(map[string]SectionResult, len(r.Sections))
	for name, s := range r.Sections {
		cp := s
		cp.RetainedQuestions = append([]string(nil), s.RetainedQuestions...)
		cp.DiscardedQuestions = append([]string(nil), s.DiscardedQuestions...)
		cp.Questions = append([]QuestionGrade(nil), s.Questions...)
		out.Sections[name] = cp
	}
	return out
}
