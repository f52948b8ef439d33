package loadcheck

import (
	"errors"
	"fmt"
)

// ErrInconsistent is returned when the ranking violates an ordering rule.
var ErrInconsistent = errors.New("inconsistent ranking")

// verifyTop checks the top list is ordered by score with contiguous ranks
// starting at 1, and that every listed score is the last one submitted.
func verifyTop(top []Entry, final map[string]int64) error {
	for i, e := range top {
		if e.Rank != int64(i)+1 {
			return fmt.Errorf("%w: position %d has rank %d", ErrInconsistent, i, e.Rank)
		}
		if i > 0 && e.Score > top[i-1].Score {
			return fmt.Errorf("%w: rank %d score %d above rank %d score %d",
				ErrInconsistent, e.Rank, e.Score, top[i-1].Rank, top[i-1].Score)
		}
		if want, ok := final[e.PlayerID]; ok && want != e.Score {
			return fmt.Errorf("%w: %s listed with %d, last submitted %d", ErrInconsistent, e.PlayerID, e.Score, want)
		}
	}
	return nil
}

// verifyRank checks a single rank lookup against the submitted score and
// the top list it must agree with.
func verifyRank(e Entry, want int64, top []Entry) error {
	if e.Score != want {
		return fmt.Errorf("%w: %s ranked with %d, last submitted %d", ErrInconsistent, e.PlayerID, e.Score, want)
	}
	if e.Rank < 1 {
		return fmt.Errorf("%w: %s has rank %d", ErrInconsistent, e.PlayerID, e.Rank)
	}
	if int(e.Rank) <= len(top) && top[e.Rank-1].PlayerID != e.PlayerID {
		return fmt.Errorf("%w: %s claims rank %d held by %s", ErrInconsistent, e.PlayerID, e.Rank, top[e.Rank-1].PlayerID)
	}
	return nil
}
