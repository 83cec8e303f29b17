package classify

import "github.com/anivar/termbrain-sub001/internal/cmdutil"

// Complexity bounds.
const (
	MinComplexity = 1
	MaxComplexity = 5
)

// Complexity scores a command from 1 to 5: one per pipe, one per
// redirection, one for command substitution and two for a control-flow
// keyword, on top of a base of one.
func Complexity(command string) int {
	score := MinComplexity
	score += cmdutil.CountPipes(command)
	score += cmdutil.CountRedirections(command)
	if cmdutil.HasSubstitution(command) {
		score++
	}
	if cmdutil.HasControlFlow(command) {
		score += 2
	}
	if score > MaxComplexity {
		return MaxComplexity
	}
	return score
}
