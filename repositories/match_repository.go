package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Dosada05/arena-tournaments/models"
	"github.com/lib/pq"
)

var (
	ErrMatchNotFound          = errors.New("match not found")
	ErrMatchNumberConflict    = errors.New("match number already exists for this round")
	ErrMatchPlayerSeedInvalid = errors.New("match player seed position conflict or out of range")
)

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, m *models.Match) error
	// CreatePlayers batch-inserts the seeded players of one or more
	// matches in a single statement.
	CreatePlayers(ctx context.Context, exec SQLExecutor, players []*models.MatchPlayer) error
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.Match, error)
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, m *models.Match) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO tournament_matches (tournament_id, round, match_number, status, winner_user_id, game_session_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		m.TournamentID,
		m.Round,
		m.MatchNumber,
		m.Status,
		m.WinnerUserID,
		m.GameSessionID,
	).Scan(&m.ID, &m.CreatedAt)

	return r.handleMatchError(err)
}

func (r *postgresMatchRepository) CreatePlayers(ctx context.Context, exec SQLExecutor, players []*models.MatchPlayer) error {
	if len(players) == 0 {
		return nil
	}
	executor := r.getExecutor(exec)

	var sb strings.Builder
	sb.WriteString(`INSERT INTO match_players (match_id, user_id, seed_position) VALUES `)
	args := make([]interface{}, 0, len(players)*3)
	for i, p := range players {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 3
		fmt.Fprintf(&sb, "($%d, $%d, $%d)", base+1, base+2, base+3)
		args = append(args, p.MatchID, p.UserID, p.SeedPosition)
	}
	sb.WriteString(` RETURNING id, created_at`)

	rows, err := executor.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return r.handleMatchError(err)
	}
	defer rows.Close()

	for i := 0; rows.Next(); i++ {
		if i >= len(players) {
			return errors.New("unexpected extra row from match player insert")
		}
		if scanErr := rows.Scan(&players[i].ID, &players[i].CreatedAt); scanErr != nil {
			return fmt.Errorf("failed to scan inserted match player: %w", scanErr)
		}
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("error iterating inserted match players: %w", err)
	}
	return nil
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.Match, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, tournament_id, round, match_number, status, winner_user_id, game_session_id, created_at
		FROM tournament_matches
		WHERE tournament_id = $1
		ORDER BY round ASC, match_number ASC`

	rows, err := executor.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches by tournament: %w", err)
	}
	defer rows.Close()

	matches := make([]models.Match, 0)
	byID := make(map[int]int) // match id -> index into matches
	for rows.Next() {
		var m models.Match
		if scanErr := rows.Scan(&m.ID, &m.TournamentID, &m.Round, &m.MatchNumber, &m.Status, &m.WinnerUserID, &m.GameSessionID, &m.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", scanErr)
		}
		m.Players = make([]models.MatchPlayer, 0, models.PlayersPerMatch)
		byID[m.ID] = len(matches)
		matches = append(matches, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating match rows: %w", err)
	}
	if len(matches) == 0 {
		return matches, nil
	}

	playerQuery := `
		SELECT mp.id, mp.match_id, mp.user_id, mp.seed_position, mp.created_at
		FROM match_players mp
		JOIN tournament_matches m ON m.id = mp.match_id
		WHERE m.tournament_id = $1
		ORDER BY mp.match_id ASC, mp.seed_position ASC`

	playerRows, err := executor.QueryContext(ctx, playerQuery, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list match players: %w", err)
	}
	defer playerRows.Close()

	for playerRows.Next() {
		var p models.MatchPlayer
		if scanErr := playerRows.Scan(&p.ID, &p.MatchID, &p.UserID, &p.SeedPosition, &p.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan match player row: %w", scanErr)
		}
		if idx, ok := byID[p.MatchID]; ok {
			matches[idx].Players = append(matches[idx].Players, p)
		}
	}
	if err = playerRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating match player rows: %w", err)
	}
	return matches, nil
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505":
			switch pqErr.Constraint {
			case "tournament_matches_tournament_id_round_match_number_key":
				return ErrMatchNumberConflict
			case "match_players_match_id_seed_position_key", "match_players_match_id_user_id_key":
				return ErrMatchPlayerSeedInvalid
			}
		case "23514":
			if pqErr.Constraint == "match_players_seed_position_check" {
				return ErrMatchPlayerSeedInvalid
			}
		}
	}
	return err
}
