// Package scoring encodes raw scores into composite ranking keys.
//
// A composite key orders participants by raw score descending and, for equal
// raw scores, by update time ascending: whoever reached a score first ranks
// higher. The key is a single int64 so it can live in any ordered store,
// including Redis sorted sets whose scores are IEEE-754 doubles.
//
//	composite = raw*Scale - ticks
//
// ticks counts whole Tick intervals since Epoch and lies in [0, Scale),
// which covers updates until September 2055. Two updates at least one Tick
// apart always produce distinct keys. Keys must stay exactly representable
// as float64 (|x| <= 2^53), which bounds raw scores by MaxRawScore.
package scoring

import (
	"errors"
	"fmt"
	"time"
)

const (
	// Scale separates the score term from the time term.
	Scale int64 = 10_000_000_000

	// Tick is the resolution of the time term.
	Tick = 100 * time.Millisecond

	// maxExactFloat is the largest integer a float64 holds without rounding.
	maxExactFloat int64 = 1 << 53

	// MaxRawScore is the largest raw score whose composite key survives a
	// round trip through a float64 sorted-set score.
	MaxRawScore = maxExactFloat / Scale // 900_719
)

// Epoch is tick zero. Earlier times encode as tick zero.
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Sentinel kinds for codec errors.
var (
	ErrScoreOutOfRange = errors.New("raw score out of range")
	ErrTimeOutOfRange  = errors.New("update time out of range")
)

// Composite is the orderable ranking key.
type Composite int64

// Encode builds the composite key for raw at the given tick.
func Encode(raw int64, ticks int64) (Composite, error) {
	if raw < 0 || raw > MaxRawScore {
		return 0, fmt.Errorf("%w: %d not in [0, %d]", ErrScoreOutOfRange, raw, MaxRawScore)
	}
	if ticks < 0 || ticks >= Scale {
		return 0, fmt.Errorf("%w: tick %d", ErrTimeOutOfRange, ticks)
	}
	return Composite(raw*Scale - ticks), nil
}

// Ticks converts at to whole ticks since Epoch, clamping earlier times to 0.
func Ticks(at time.Time) int64 {
	ms := at.UnixMilli() - Epoch.UnixMilli()
	if ms < 0 {
		return 0
	}
	return ms / Tick.Milliseconds()
}

// EncodeTime is Encode with at converted by Ticks.
func EncodeTime(raw int64, at time.Time) (Composite, error) {
	return Encode(raw, Ticks(at))
}

// Decode recovers the raw score. The time term lies in [0, Scale), so the
// raw score is the ceiling of composite/Scale. Integer division truncates
// toward zero, which makes the expression below correct for the negative
// keys produced by a raw score of zero as well.
func Decode(c Composite) int64 {
	return (int64(c) + Scale - 1) / Scale
}

// DecodeTime recovers the tick folded into c.
func DecodeTime(c Composite) int64 {
	return Decode(c)*Scale - int64(c)
}

// DecodeAt recovers the update time folded into c, truncated to a Tick.
func DecodeAt(c Composite) time.Time {
	return Epoch.Add(time.Duration(DecodeTime(c)) * Tick)
}

// Bounds returns the smallest and largest composite keys that decode to raw.
func Bounds(raw int64) (lo, hi Composite) {
	return Composite(raw*Scale - (Scale - 1)), Composite(raw * Scale)
}

// Float returns c as a sorted-set score.
func (c Composite) Float() float64 {
	return float64(c)
}

// FromFloat converts a sorted-set score back to a composite key.
func FromFloat(f float64) Composite {
	if f < 0 {
		return Composite(int64(f - 0.5))
	}
	return Composite(int64(f + 0.5))
}
