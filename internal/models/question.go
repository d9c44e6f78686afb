package models

// Difficulty levels scheduled across a paper.
const (
	DifficultyBasic        = "basic"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// Question is one multiple-choice question. Exactly four options, exactly one
// correct option (A-D). DiagramCode and ImagePath are mutually exclusive; both
// empty means the question ships without a figure.
type Question struct {
	ID            string   `json:"question_id"`
	Text          string   `json:"question_text"`
	Options       []string `json:"options"`
	CorrectOption string   `json:"correct_option"`
	Difficulty    string   `json:"difficulty"`
	NeedsDiagram  bool     `json:"needs_diagram"`
	DiagramCode   string   `json:"diagram_code,omitempty"`
	ImagePath     string   `json:"image_path,omitempty"`
}

// ValidationResult is the validator's verdict on a single candidate question.
// Corrected, when present, is a replacement candidate that should be
// re-validated before being accepted.
type ValidationResult struct {
	IsValid   bool      `json:"is_valid"`
	Feedback  string    `json:"feedback"`
	Corrected *Question `json:"corrected_question,omitempty"`
}

// ValidOption reports whether s is one of the four option letters.
func ValidOption(s string) bool {
	switch s {
	case "A", "B", "C", "D":
		return true
	}
	return false
}
