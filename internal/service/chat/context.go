package chat

import (
	"strings"

	"github.com/intelli-123/observability-copilot/internal/domain"
)

// DefaultContextBudget bounds the context handed to the model, in characters.
const DefaultContextBudget = 25000

// Builder concatenates aggregated log records into one bounded text blob.
type Builder struct {
	budget int
}

// NewBuilder constructs a Builder; a non-positive budget falls back to the
// default.
func NewBuilder(budget int) Builder {
	if budget <= 0 {
		budget = DefaultContextBudget
	}
	return Builder{budget: budget}
}

// Budget returns the configured character budget.
func (b Builder) Budget() int {
	return b.budget
}

// BuildContext renders each section under a header identifying its target,
// joined by blank lines, truncated to the budget measured from the start.
func (b Builder) BuildContext(sections []domain.ContextSection) string {
	blocks := make([]string, 0, len(sections))
	for _, section := range sections {
		blocks = append(blocks, "### "+section.Title+"\n"+section.Body)
	}
	return b.Truncate(strings.Join(blocks, "\n\n"))
}

// Truncate clips text to the budget, counting characters from the start.
func (b Builder) Truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= b.budget {
		return text
	}
	return string(runes[:b.budget])
}
