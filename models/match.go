package models

import (
	"time"

	"github.com/google/uuid"
)

type MatchStatus string

const (
	MatchPending   MatchStatus = "pending"
	MatchCompleted MatchStatus = "completed"
)

// Match groups four seeded participants of one round. Matches are
// created in bulk when the tournament starts; the winner and the game
// session reference are filled in later by the game-session service.
type Match struct {
	ID            int         `json:"id"`
	TournamentID  int         `json:"tournament_id"`
	Round         int         `json:"round"`
	MatchNumber   int         `json:"match_number"`
	Status        MatchStatus `json:"status"`
	WinnerUserID  *int        `json:"winner_user_id,omitempty"`
	GameSessionID *uuid.UUID  `json:"game_session_id,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`

	Players []MatchPlayer `json:"players,omitempty"`
}

// MatchPlayer pins a user to a seed slot (1-4) inside a match.
// Immutable once written.
type MatchPlayer struct {
	ID           int       `json:"id"`
	MatchID      int       `json:"match_id"`
	UserID       int       `json:"user_id"`
	SeedPosition int       `json:"seed_position"`
	CreatedAt    time.Time `json:"created_at"`
}
