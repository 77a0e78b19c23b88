package optimizer

import "errors"

var (
	// ErrMissingPlayerData means a requested player has no row in the attribute table.
	ErrMissingPlayerData = errors.New("missing player data")
	// ErrInvalidConstraintConfiguration is returned before solving for bad inputs.
	ErrInvalidConstraintConfiguration = errors.New("invalid constraint configuration")
	// ErrInfeasible means no roster satisfies every constraint.
	ErrInfeasible = errors.New("no possible roster configuration")
	// ErrNumericInstability means NaN, infinite or negative attributes reached the solver.
	ErrNumericInstability = errors.New("numeric instability in player attributes")
	// ErrTimeout means the solve deadline expired before a roster was proven optimal.
	ErrTimeout = errors.New("optimization timed out")
	// ErrEmptyRoster is returned when win probability is evaluated with zero production on both ends.
	ErrEmptyRoster = errors.New("win probability undefined for empty roster")
)
