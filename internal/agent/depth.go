package agent

import (
	"errors"
	"fmt"
)

// MaxJSONDepth bounds the nesting accepted in agent responses.
const MaxJSONDepth = 100

// ErrTooDeep is returned when a decoded document nests beyond the limit.
var ErrTooDeep = errors.New("agent: document nesting exceeds limit")

// ValidateDepth walks a decoded JSON value (maps, slices and scalars) with
// an explicit stack and fails once any container sits deeper than maxDepth.
// The top-level value is depth 1.
func ValidateDepth(v any, maxDepth int) error {
	type frame struct {
		value any
		depth int
	}
	stack := []frame{{value: v, depth: 1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch node := f.value.(type) {
		case map[string]any:
			if f.depth > maxDepth {
				return fmt.Errorf("%w: depth %d > %d", ErrTooDeep, f.depth, maxDepth)
			}
			for _, child := range node {
				stack = append(stack, frame{value: child, depth: f.depth + 1})
			}
		case []any:
			if f.depth > maxDepth {
				return fmt.Errorf("%w: depth %d > %d", ErrTooDeep, f.depth, maxDepth)
			}
			for _, child := range node {
				stack = append(stack, frame{value: child, depth: f.depth + 1})
			}
		}
	}
	return nil
}
