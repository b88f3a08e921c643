package protocol

import (
	"context"
	"errors"

	"gridnav.ai/internal/sim/footprint"
	"gridnav.ai/internal/sim/grid"
	"gridnav.ai/internal/sim/pathfind"
	"gridnav.ai/internal/sim/planner"
)

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Search outcomes.
	ErrNoPath      = "E_NO_PATH"
	ErrInvalidGoal = "E_INVALID_GOAL"
	ErrBudget      = "E_BUDGET"
	ErrOutOfBounds = "E_OUT_OF_BOUNDS"

	// Board mutations.
	ErrConflict = "E_CONFLICT"
	ErrBlocked  = "E_BLOCKED"
	ErrNotFound = "E_NOT_FOUND"

	ErrBadRequest = "E_BAD_REQUEST"
	ErrRateLimit  = "E_RATE_LIMIT"
	ErrCanceled   = "E_CANCELED"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrNoPath:          {},
	ErrInvalidGoal:     {},
	ErrBudget:          {},
	ErrOutOfBounds:     {},
	ErrConflict:        {},
	ErrBlocked:         {},
	ErrNotFound:        {},
	ErrBadRequest:      {},
	ErrRateLimit:       {},
	ErrCanceled:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// CodeFor maps planner and board errors to wire codes. nil maps to "".
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, pathfind.ErrNoPathExists):
		return ErrNoPath
	case errors.Is(err, pathfind.ErrInvalidGoal):
		return ErrInvalidGoal
	case errors.Is(err, pathfind.ErrSearchBudgetExceeded):
		return ErrBudget
	case errors.Is(err, grid.ErrOutOfBounds):
		return ErrOutOfBounds
	case errors.Is(err, grid.ErrOccupied):
		return ErrConflict
	case errors.Is(err, grid.ErrNotCrossable):
		return ErrBlocked
	case errors.Is(err, grid.ErrUnknownID):
		return ErrNotFound
	case errors.Is(err, planner.ErrQueueTimeout):
		return ErrRateLimit
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrCanceled
	case errors.Is(err, pathfind.ErrEmptyFrontier):
		return ErrInternal
	case errors.Is(err, footprint.ErrTooLarge):
		return ErrBadRequest
	default:
		return ErrBadRequest
	}
}
