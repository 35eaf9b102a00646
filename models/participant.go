package models

import "time"

type ParticipantStatus string

const (
	ParticipantRegistered ParticipantStatus = "registered"
	ParticipantActive     ParticipantStatus = "active"
	ParticipantEliminated ParticipantStatus = "eliminated"
)

// Participant is one user registered for one tournament. A user can
// hold at most one participant row per tournament, enforced by a
// unique constraint in the database.
type Participant struct {
	ID            int               `json:"id"`
	TournamentID  int               `json:"tournament_id"`
	UserID        int               `json:"user_id"`
	Status        ParticipantStatus `json:"status"`
	FinalPosition *int              `json:"final_position,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}
