// Package loadcheck drives a running leaderboard over HTTP and verifies the
// ranking it reports.
package loadcheck

import "time"

// Config holds configuration for a load check run.
type Config struct {
	BaseURL    string        // Base URL of the service
	NumPlayers int           // Distinct players to submit
	MaxScore   int64         // Scores are drawn from [0, MaxScore]
	Updates    int           // Score submissions per player
	TopN       int           // Entries to fetch from the top list
	Workers    int           // Concurrent submitters
	Timeout    time.Duration // HTTP request timeout
}

// Submission is a single score write.
type Submission struct {
	PlayerID string `json:"-"`
	Score    int64  `json:"score"`
}

// Entry mirrors the leaderboard read shape.
type Entry struct {
	Rank     int64  `json:"rank"`
	PlayerID string `json:"player_id"`
	Score    int64  `json:"score"`
}

type topResponse struct {
	Players []Entry `json:"players"`
	Total   int     `json:"total"`
}

// Stats holds run statistics.
type Stats struct {
	Submitted  int
	Successful int
	Failed     int
	Verified   int
	Duration   time.Duration
}
