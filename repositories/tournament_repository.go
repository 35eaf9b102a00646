package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Dosada05/arena-tournaments/models"
	"github.com/lib/pq"
)

var (
	ErrTournamentNotFound           = errors.New("tournament not found")
	ErrTournamentInvalidSize        = errors.New("bracket size violates database constraint")
	ErrTournamentInvalidRound       = errors.New("current round exceeds total rounds")
	ErrTournamentNegativePrizePool  = errors.New("prize pool cannot be negative")
	ErrTournamentInvalidStatusValue = errors.New("status violates database constraint")
)

type ListTournamentsFilter struct {
	Status *models.TournamentStatus
	Limit  int
	Offset int
}

type TournamentRepository interface {
	Create(ctx context.Context, t *models.Tournament) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	// GetByIDForUpdate locks the tournament row for the lifetime of the
	// surrounding transaction. Join and Start serialize on this lock.
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error)
	Count(ctx context.Context, status *models.TournamentStatus) (int, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error
	UpdateBannerKey(ctx context.Context, id int, bannerKey *string) error
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tournamentColumns = `
	id, name, description, bracket_size, entry_fee, commission_rate,
	prize_pool, prize_distribution_type, prize_distribution,
	total_rounds, current_round, registration_start, registration_end,
	start_time, start_when_full, join_code_hash, banner_key, status,
	created_by, created_at`

func (r *postgresTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	distribution, err := json.Marshal(t.PrizeDistribution)
	if err != nil {
		return fmt.Errorf("failed to marshal prize distribution: %w", err)
	}

	query := `
		INSERT INTO tournaments (
			name, description, bracket_size, entry_fee, commission_rate,
			prize_pool, prize_distribution_type, prize_distribution,
			total_rounds, current_round, registration_start, registration_end,
			start_time, start_when_full, join_code_hash, status, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created_at`

	err = r.db.QueryRowContext(ctx, query,
		t.Name, t.Description, t.BracketSize, t.EntryFee, t.CommissionRate,
		t.PrizePool, t.PrizeDistributionType, distribution,
		t.TotalRounds, t.CurrentRound, t.RegistrationStart, t.RegistrationEnd,
		t.StartTime, t.StartWhenFull, t.JoinCodeHash, t.Status, t.CreatedBy,
	).Scan(&t.ID, &t.CreatedAt)

	return r.handleTournamentError(err)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1`
	return r.queryOne(ctx, r.getExecutor(exec), query, id)
}

func (r *postgresTournamentRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1 FOR UPDATE`
	return r.queryOne(ctx, r.getExecutor(exec), query, id)
}

func (r *postgresTournamentRepository) queryOne(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) (*models.Tournament, error) {
	t := &models.Tournament{}
	err := scanTournament(exec.QueryRowContext(ctx, query, args...), t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to get tournament: %w", err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error) {
	query := `
		SELECT
			t.id, t.name, t.description, t.bracket_size, t.entry_fee, t.commission_rate,
			t.prize_pool, t.prize_distribution_type, t.prize_distribution,
			t.total_rounds, t.current_round, t.registration_start, t.registration_end,
			t.start_time, t.start_when_full, t.join_code_hash, t.banner_key, t.status,
			t.created_by, t.created_at,
			COUNT(p.id) AS participant_count
		FROM tournaments t
		LEFT JOIN tournament_participants p ON p.tournament_id = t.id
		WHERE 1=1`

	args := []interface{}{}
	argID := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND t.status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}

	query += " GROUP BY t.id ORDER BY t.created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	defer rows.Close()

	tournaments := make([]models.Tournament, 0)
	for rows.Next() {
		var t models.Tournament
		var count int
		if scanErr := scanTournamentWith(rows, &t, &count); scanErr != nil {
			return nil, fmt.Errorf("failed to scan tournament row: %w", scanErr)
		}
		t.ParticipantCount = &count
		tournaments = append(tournaments, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tournament rows: %w", err)
	}
	return tournaments, nil
}

func (r *postgresTournamentRepository) Count(ctx context.Context, status *models.TournamentStatus) (int, error) {
	query := `SELECT COUNT(*) FROM tournaments`
	args := []interface{}{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	var total int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count tournaments: %w", err)
	}
	return total, nil
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error {
	executor := r.getExecutor(exec)
	query := `UPDATE tournaments SET status = $1 WHERE id = $2`
	result, err := executor.ExecContext(ctx, query, status, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateBannerKey(ctx context.Context, id int, bannerKey *string) error {
	query := `UPDATE tournaments SET banner_key = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, bannerKey, id)
	if err != nil {
		return fmt.Errorf("failed to update tournament banner key: %w", err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTournament(row rowScanner, t *models.Tournament) error {
	return scanTournamentInto(row, t, nil)
}

func scanTournamentWith(row rowScanner, t *models.Tournament, count *int) error {
	return scanTournamentInto(row, t, count)
}

func scanTournamentInto(row rowScanner, t *models.Tournament, count *int) error {
	var distribution []byte
	dest := []interface{}{
		&t.ID, &t.Name, &t.Description, &t.BracketSize, &t.EntryFee, &t.CommissionRate,
		&t.PrizePool, &t.PrizeDistributionType, &distribution,
		&t.TotalRounds, &t.CurrentRound, &t.RegistrationStart, &t.RegistrationEnd,
		&t.StartTime, &t.StartWhenFull, &t.JoinCodeHash, &t.BannerKey, &t.Status,
		&t.CreatedBy, &t.CreatedAt,
	}
	if count != nil {
		dest = append(dest, count)
	}
	if err := row.Scan(dest...); err != nil {
		return err
	}
	if len(distribution) > 0 {
		if err := json.Unmarshal(distribution, &t.PrizeDistribution); err != nil {
			return fmt.Errorf("failed to unmarshal prize distribution: %w", err)
		}
	}
	if t.PrizeDistribution == nil {
		t.PrizeDistribution = []models.PrizeSlot{}
	}
	return nil
}

func (r *postgresTournamentRepository) handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23514" {
		switch pqErr.Constraint {
		case "tournaments_bracket_size_check":
			return ErrTournamentInvalidSize
		case "tournaments_current_round_check":
			return ErrTournamentInvalidRound
		case "tournaments_prize_pool_check":
			return ErrTournamentNegativePrizePool
		case "tournaments_status_check":
			return ErrTournamentInvalidStatusValue
		}
	}
	return err
}
