package pathfind

import "errors"

var (
	// ErrNoPathExists means the goal is unreachable under the current
	// obstacles. It is a routine outcome, not a failure of the planner.
	ErrNoPathExists = errors.New("pathfind: no path exists")
	// ErrInvalidGoal means no free cell exists within repair range of the goal.
	ErrInvalidGoal          = errors.New("pathfind: no valid goal")
	ErrSearchBudgetExceeded = errors.New("pathfind: search budget exceeded")
	ErrEmptyFrontier        = errors.New("pathfind: pop from empty frontier")
)
