package brackets

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/Dosada05/arena-tournaments/models"
)

// GroupStageGenerator partitions a full roster into groups of four.
// The shuffle is a uniform Fisher-Yates permutation, so the grouping
// is intentionally different on every invocation and no seed is
// exposed to callers.
type GroupStageGenerator struct {
	shuffle func(n int, swap func(i, j int))
}

func NewGroupStageGenerator() BracketGenerator {
	return &GroupStageGenerator{shuffle: rand.Shuffle}
}

func (g *GroupStageGenerator) GetName() string {
	return "GroupStage"
}

func (g *GroupStageGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) ([]*BracketGroup, error) {
	participants := params.Participants
	n := len(participants)

	if n == 0 {
		return nil, errors.New("cannot generate bracket with zero participants")
	}
	if n%models.PlayersPerMatch != 0 {
		return nil, fmt.Errorf("participant count %d is not a multiple of %d", n, models.PlayersPerMatch)
	}

	shuffled := make([]*models.Participant, n)
	copy(shuffled, participants)
	g.shuffle(n, func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	groups := make([]*BracketGroup, 0, n/models.PlayersPerMatch)
	for i := 0; i < n; i += models.PlayersPerMatch {
		group := &BracketGroup{
			Round:       1,
			MatchNumber: i/models.PlayersPerMatch + 1,
			Seeds:       make([]Seed, 0, models.PlayersPerMatch),
		}
		for j := 0; j < models.PlayersPerMatch; j++ {
			group.Seeds = append(group.Seeds, Seed{
				UserID:       shuffled[i+j].UserID,
				SeedPosition: j + 1,
			})
		}
		groups = append(groups, group)
	}
	return groups, nil
}
