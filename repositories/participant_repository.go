package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/arena-tournaments/models"
	"github.com/lib/pq"
)

var (
	ErrParticipantNotFound          = errors.New("participant not found")
	ErrParticipantConflict          = errors.New("participant conflict: user already registered for this tournament")
	ErrParticipantTournamentInvalid = errors.New("participant references an invalid tournament")
)

type ParticipantRepository interface {
	// Create inserts a participant row. The unique constraint on
	// (tournament_id, user_id) is the last line of defense against
	// concurrent duplicate joins; violations surface as
	// ErrParticipantConflict.
	Create(ctx context.Context, exec SQLExecutor, p *models.Participant) error
	FindByUserAndTournament(ctx context.Context, exec SQLExecutor, userID, tournamentID int) (*models.Participant, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Participant, error)
	CountByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error)
	UpdateStatusByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, status models.ParticipantStatus) error
}

type postgresParticipantRepository struct {
	db *sql.DB
}

func NewPostgresParticipantRepository(db *sql.DB) ParticipantRepository {
	return &postgresParticipantRepository{db: db}
}

func (r *postgresParticipantRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresParticipantRepository) Create(ctx context.Context, exec SQLExecutor, p *models.Participant) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO tournament_participants (tournament_id, user_id, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		p.TournamentID,
		p.UserID,
		p.Status,
	).Scan(&p.ID, &p.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505": // unique_violation
				if pqErr.Constraint == "tournament_participants_tournament_id_user_id_key" {
					return ErrParticipantConflict
				}
			case "23503": // foreign_key_violation
				if pqErr.Constraint == "tournament_participants_tournament_id_fkey" {
					return ErrParticipantTournamentInvalid
				}
			}
		}
		return fmt.Errorf("failed to create participant: %w", err)
	}
	return nil
}

func (r *postgresParticipantRepository) FindByUserAndTournament(ctx context.Context, exec SQLExecutor, userID, tournamentID int) (*models.Participant, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, tournament_id, user_id, status, final_position, created_at
		FROM tournament_participants
		WHERE user_id = $1 AND tournament_id = $2`

	p := &models.Participant{}
	err := executor.QueryRowContext(ctx, query, userID, tournamentID).Scan(
		&p.ID, &p.TournamentID, &p.UserID, &p.Status, &p.FinalPosition, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("failed to find participant: %w", err)
	}
	return p, nil
}

func (r *postgresParticipantRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Participant, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, tournament_id, user_id, status, final_position, created_at
		FROM tournament_participants
		WHERE tournament_id = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := executor.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants by tournament: %w", err)
	}
	defer rows.Close()

	participants := make([]*models.Participant, 0)
	for rows.Next() {
		var p models.Participant
		if scanErr := rows.Scan(&p.ID, &p.TournamentID, &p.UserID, &p.Status, &p.FinalPosition, &p.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", scanErr)
		}
		participants = append(participants, &p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participant rows: %w", err)
	}
	return participants, nil
}

func (r *postgresParticipantRepository) CountByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	executor := r.getExecutor(exec)
	query := `SELECT COUNT(*) FROM tournament_participants WHERE tournament_id = $1`
	var count int
	if err := executor.QueryRowContext(ctx, query, tournamentID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}
	return count, nil
}

func (r *postgresParticipantRepository) UpdateStatusByTournament(ctx context.Context, exec SQLExecutor, tournamentID int, status models.ParticipantStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournament_participants SET status = $1 WHERE tournament_id = $2`
	if _, err := executor.ExecContext(ctx, query, status, tournamentID); err != nil {
		return fmt.Errorf("failed to update participant statuses: %w", err)
	}
	return nil
}
