package models

type GradingMode string

const (
	// ModeStrict requests integral, no-partial-credit grading upstream.
	// Used for short-answer and true/false items.
	ModeStrict GradingMode = "strict"
	// ModeLiberal allows any awarded value between 0 and the question max.
	ModeLiberal GradingMode = "liberal"
)

func (gm GradingMode) String() string {
	return string(gm)
}

func IsValidGradingMode(mode string) bool {
	return mode == "strict" || mode == "liberal"
}

// QuestionGrade is one question's grade as reported by the grading service.
type QuestionGrade struct {
	QuestionID   string  `json:"question_id"`
	AwardedMarks float64 `json:"awarded_marks"`
	MaxMarks     float64 `json:"max_marks"`
	Remarks      string  `json:"remarks,omitempty"`
}

// RawSection lists the questions the student actually answered in a section.
type RawSection struct {
	Questions []QuestionGrade `json:"questions"`
}

// RawGrade is the grading service's per-question output for one student,
// grouped by section. Consumed, never produced, by this service.
type RawGrade struct {
	Sections map[string]RawSection `json:"sections"`
	// Verdict is an optional explicit pass/fail from upstream. When set it
	// takes precedence over the computed pass threshold.
	Verdict string `json:"verdict,omitempty"`
}

// SectionSpec configures the drop policy for one section.
type SectionSpec struct {
	// DropThreshold is the answered-question count at which the
	// lowest-scoring question is discarded from the section total.
	DropThreshold int `json:"drop_threshold"`
}
