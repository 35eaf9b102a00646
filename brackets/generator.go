package brackets

import (
	"context"

	"github.com/Dosada05/arena-tournaments/models"
)

type GenerateBracketParams struct {
	Tournament   *models.Tournament
	Participants []*models.Participant
}

// Seed is one slot inside a generated group: the user holding it and
// the 1-based position assigned by shuffle order.
type Seed struct {
	UserID       int
	SeedPosition int
}

// BracketGroup describes one first-round match before it is persisted.
type BracketGroup struct {
	Round       int
	MatchNumber int
	Seeds       []Seed
}

type BracketGenerator interface {
	GenerateBracket(ctx context.Context, params GenerateBracketParams) ([]*BracketGroup, error)

	GetName() string
}
