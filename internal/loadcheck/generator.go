package loadcheck

import (
	"math/rand/v2"

	"github.com/google/uuid"
)

// generate returns cfg.Updates rounds of submissions over cfg.NumPlayers
// players, and the last score sent to each player.
func generate(cfg *Config, r *rand.Rand) ([]Submission, map[string]int64) {
	ids := make([]string, cfg.NumPlayers)
	for i := range ids {
		ids[i] = uuid.NewString()
	}

	subs := make([]Submission, 0, cfg.NumPlayers*cfg.Updates)
	final := make(map[string]int64, cfg.NumPlayers)
	for range cfg.Updates {
		for _, id := range ids {
			// A narrow range forces plenty of ties.
			s := r.Int64N(cfg.MaxScore + 1)
			subs = append(subs, Submission{PlayerID: id, Score: s})
			final[id] = s
		}
	}
	return subs, final
}
