// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf16"

	"github.com/okian/ladder/internal/domain/scoring"
)

// MaxPlayerIDLength bounds participant identities, counted in UTF-16 code units.
const MaxPlayerIDLength = 255

// Sentinel kinds for validation failures.
var (
	ErrValidation      = errors.New("validation failed")
	ErrInvalidPlayerID = fmt.Errorf("%w: invalid player id", ErrValidation)
	ErrInvalidScore    = fmt.Errorf("%w: invalid score", ErrValidation)
)

// Player is a participant and its raw score. Rank is derived at read time
// and zero when unknown.
type Player struct {
	PlayerID  string
	Score     int64
	Rank      int64
	UpdatedAt time.Time
}

// ValidatePlayerID checks id is non-empty and within MaxPlayerIDLength.
func ValidatePlayerID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPlayerID)
	}
	if n := len(utf16.Encode([]rune(id))); n > MaxPlayerIDLength {
		return fmt.Errorf("%w: length %d exceeds %d", ErrInvalidPlayerID, n, MaxPlayerIDLength)
	}
	return nil
}

// ValidateScore checks score can be encoded into a composite key.
func ValidateScore(score int64) error {
	if score < 0 {
		return fmt.Errorf("%w: %d is negative", ErrInvalidScore, score)
	}
	if score > scoring.MaxRawScore {
		return fmt.Errorf("%w: %d exceeds %d", ErrInvalidScore, score, scoring.MaxRawScore)
	}
	return nil
}

// ScoreChange is published after a score update is applied to the ranking.
type ScoreChange struct {
	PlayerID  string    `json:"player_id"`
	Score     int64     `json:"score"`
	UpdatedAt time.Time `json:"updated_at"`
}
