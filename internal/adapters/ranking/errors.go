package ranking

import "errors"

// Sentinel kinds for ranking store errors.
var (
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
	ErrLockNotHeld  = errors.New("lock not held by caller")
)
