package models

import "time"

// TournamentStatus mirrors the status ENUM in the database.
type TournamentStatus string

const (
	StatusRegistration TournamentStatus = "registration"
	StatusInProgress   TournamentStatus = "in_progress"
	StatusCompleted    TournamentStatus = "completed"
)

// Bracket sizes the platform supports. A size-16 bracket plays two
// rounds of four-player matches, a size-64 bracket plays three.
const (
	BracketSizeSmall = 16
	BracketSizeLarge = 64

	PlayersPerMatch = 4
)

// PrizeSlot is one line of the prize distribution table: the finishing
// position and the percentage of the prize pool it earns.
type PrizeSlot struct {
	Position   int     `json:"position"`
	Percentage float64 `json:"percentage"`
}

// Tournament is the aggregate root. Participants and matches are
// loaded on demand and are not mapped directly from the row.
type Tournament struct {
	ID                    int              `json:"id"`
	Name                  string           `json:"name"`
	Description           *string          `json:"description,omitempty"`
	BracketSize           int              `json:"bracket_size"`
	EntryFee              float64          `json:"entry_fee"`
	CommissionRate        float64          `json:"commission_rate"`
	PrizePool             float64          `json:"prize_pool"`
	PrizeDistributionType string           `json:"prize_distribution_type"`
	PrizeDistribution     []PrizeSlot      `json:"prize_distribution"`
	TotalRounds           int              `json:"total_rounds"`
	CurrentRound          int              `json:"current_round"`
	RegistrationStart     time.Time        `json:"registration_start"`
	RegistrationEnd       time.Time        `json:"registration_end"`
	StartTime             *time.Time       `json:"start_time,omitempty"`
	StartWhenFull         bool             `json:"start_when_full"`
	JoinCodeHash          *string          `json:"-"`
	BannerKey             *string          `json:"-"`
	BannerURL             *string          `json:"banner_url,omitempty"`
	Status                TournamentStatus `json:"status"`
	CreatedBy             int              `json:"created_by"`
	CreatedAt             time.Time        `json:"created_at"`

	// Related entities, populated by the service layer.
	Participants []Participant `json:"participants,omitempty"`
	Matches      []Match       `json:"matches,omitempty"`

	// Set on list reads only.
	ParticipantCount *int `json:"participant_count,omitempty"`
}

// Private reports whether joining requires a join code.
func (t *Tournament) Private() bool {
	return t.JoinCodeHash != nil && *t.JoinCodeHash != ""
}

// TotalRoundsForSize returns the number of four-player rounds a full
// bracket of the given size plays, or 0 for an unsupported size.
func TotalRoundsForSize(size int) int {
	switch size {
	case BracketSizeSmall:
		return 2
	case BracketSizeLarge:
		return 3
	default:
		return 0
	}
}

// ValidBracketSize reports whether the platform supports the size.
func ValidBracketSize(size int) bool {
	return size == BracketSizeSmall || size == BracketSizeLarge
}

var allowedTransitions = map[TournamentStatus][]TournamentStatus{
	StatusRegistration: {StatusInProgress},
	StatusInProgress:   {StatusCompleted},
	StatusCompleted:    {},
}

// CanTransition reports whether the lifecycle permits moving from
// current to next. Transitions are monotonic; there is no way back.
func CanTransition(current, next TournamentStatus) bool {
	for _, allowed := range allowedTransitions[current] {
		if next == allowed {
			return true
		}
	}
	return false
}
