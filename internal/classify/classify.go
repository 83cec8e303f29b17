// Package classify maps a raw shell command and its working directory to a
// semantic type, an intent, a complexity score and a project type. All
// functions are deterministic and never fail; unmatched input falls through
// to defaults.
package classify

// Result is the classification of one command.
type Result struct {
	SemanticType string
	Intent       string
	Complexity   int
	ProjectType  string
}

// Classifier combines the rule tables with a project type detector.
type Classifier struct {
	detector *Detector
}

// New creates a Classifier. A nil detector uses the builtin markers.
func New(detector *Detector) *Classifier {
	if detector == nil {
		detector = NewDetector()
	}
	return &Classifier{detector: detector}
}

// Classify classifies command as run in cwd.
func (c *Classifier) Classify(command, cwd string) Result {
	return Result{
		SemanticType: SemanticType(command),
		Intent:       Intent(command),
		Complexity:   Complexity(command),
		ProjectType:  c.detector.Detect(cwd),
	}
}
