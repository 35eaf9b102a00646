package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/Dosada05/arena-tournaments/brackets"
	"github.com/Dosada05/arena-tournaments/models"
	"github.com/Dosada05/arena-tournaments/repositories"
	"github.com/Dosada05/arena-tournaments/storage"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

type CreateTournamentInput struct {
	Name                  string
	Description           *string
	BracketSize           int
	EntryFee              float64
	CommissionRate        float64
	RegistrationStart     time.Time
	RegistrationEnd       time.Time
	StartTime             *time.Time
	StartWhenFull         bool
	JoinCode              string
	PrizeDistributionType string
	PrizeDistribution     []models.PrizeSlot
}

type JoinTournamentInput struct {
	TournamentID int
	JoinCode     string
}

type ListTournamentsFilter struct {
	Status *models.TournamentStatus
	Limit  int
	Offset int
}

type TournamentService interface {
	Create(ctx context.Context, creatorID int, input CreateTournamentInput) (*models.Tournament, error)
	Join(ctx context.Context, userID int, input JoinTournamentInput) (*models.Participant, error)
	Start(ctx context.Context, userID, tournamentID int) ([]models.Match, error)
	Get(ctx context.Context, tournamentID int) (*models.Tournament, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, int, error)
	UploadBanner(ctx context.Context, userID, tournamentID int, contentType string, body io.Reader) (*models.Tournament, error)
}

type tournamentService struct {
	txRunner        repositories.TxRunner
	tournamentRepo  repositories.TournamentRepository
	participantRepo repositories.ParticipantRepository
	matchRepo       repositories.MatchRepository
	generator       brackets.BracketGenerator
	uploader        storage.FileUploader
	hub             *brackets.Hub
	logger          *slog.Logger
}

func NewTournamentService(
	txRunner repositories.TxRunner,
	tournamentRepo repositories.TournamentRepository,
	participantRepo repositories.ParticipantRepository,
	matchRepo repositories.MatchRepository,
	generator brackets.BracketGenerator,
	uploader storage.FileUploader,
	hub *brackets.Hub,
	logger *slog.Logger,
) TournamentService {
	return &tournamentService{
		txRunner:        txRunner,
		tournamentRepo:  tournamentRepo,
		participantRepo: participantRepo,
		matchRepo:       matchRepo,
		generator:       generator,
		uploader:        uploader,
		hub:             hub,
		logger:          logger,
	}
}

func (s *tournamentService) Create(ctx context.Context, creatorID int, input CreateTournamentInput) (*models.Tournament, error) {
	if err := validateCreateInput(&input); err != nil {
		return nil, err
	}

	tournament := &models.Tournament{
		Name:                  input.Name,
		Description:           input.Description,
		BracketSize:           input.BracketSize,
		EntryFee:              input.EntryFee,
		CommissionRate:        input.CommissionRate,
		PrizePool:             computePrizePool(input.EntryFee, input.BracketSize, input.CommissionRate),
		PrizeDistributionType: input.PrizeDistributionType,
		PrizeDistribution:     input.PrizeDistribution,
		TotalRounds:           models.TotalRoundsForSize(input.BracketSize),
		CurrentRound:          1,
		RegistrationStart:     input.RegistrationStart,
		RegistrationEnd:       input.RegistrationEnd,
		StartTime:             input.StartTime,
		StartWhenFull:         input.StartWhenFull,
		Status:                models.StatusRegistration,
		CreatedBy:             creatorID,
	}
	if tournament.PrizeDistribution == nil {
		tournament.PrizeDistribution = []models.PrizeSlot{}
	}
	if tournament.PrizeDistributionType == "" {
		tournament.PrizeDistributionType = "standard"
	}

	if input.JoinCode != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(input.JoinCode), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash join code: %w", err)
		}
		hashStr := string(hash)
		tournament.JoinCodeHash = &hashStr
	}

	if err := s.tournamentRepo.Create(ctx, tournament); err != nil {
		return nil, fmt.Errorf("failed to create tournament: %w", err)
	}

	s.logger.InfoContext(ctx, "tournament created",
		slog.Int("tournament_id", tournament.ID),
		slog.Int("bracket_size", tournament.BracketSize),
		slog.Int("created_by", creatorID),
	)
	s.populateBannerURL(tournament)
	return tournament, nil
}

// Join registers the user inside a single transaction: the tournament
// row lock serializes concurrent joins, the count check runs under the
// lock, and the unique constraint backstops duplicates.
func (s *tournamentService) Join(ctx context.Context, userID int, input JoinTournamentInput) (*models.Participant, error) {
	participant := &models.Participant{
		TournamentID: input.TournamentID,
		UserID:       userID,
		Status:       models.ParticipantRegistered,
	}

	var rosterFull bool
	var startWhenFull bool
	err := s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		tournament, err := s.tournamentRepo.GetByIDForUpdate(ctx, exec, input.TournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}

		if tournament.Status != models.StatusRegistration {
			return ErrRegistrationClosed
		}
		if tournament.Private() {
			if input.JoinCode == "" {
				return ErrJoinCodeInvalid
			}
			if bcrypt.CompareHashAndPassword([]byte(*tournament.JoinCodeHash), []byte(input.JoinCode)) != nil {
				return ErrJoinCodeInvalid
			}
		}

		if _, err := s.participantRepo.FindByUserAndTournament(ctx, exec, userID, input.TournamentID); err == nil {
			return ErrAlreadyRegistered
		} else if !errors.Is(err, repositories.ErrParticipantNotFound) {
			return err
		}

		count, err := s.participantRepo.CountByTournament(ctx, exec, input.TournamentID)
		if err != nil {
			return err
		}
		if count >= tournament.BracketSize {
			return ErrTournamentFull
		}

		if err := s.participantRepo.Create(ctx, exec, participant); err != nil {
			if errors.Is(err, repositories.ErrParticipantConflict) {
				return ErrAlreadyRegistered
			}
			return err
		}

		rosterFull = count+1 == tournament.BracketSize
		startWhenFull = tournament.StartWhenFull
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Note: no funds are held at join time; the entry fee is settled by
	// the wallet service when the tournament pays out.
	s.logger.InfoContext(ctx, "participant joined",
		slog.Int("tournament_id", input.TournamentID),
		slog.Int("user_id", userID),
	)
	if rosterFull && startWhenFull {
		// The roster is full and auto-start was requested, but starting
		// still requires an explicit start call by the creator.
		s.logger.InfoContext(ctx, "roster full with start_when_full set, waiting for explicit start",
			slog.Int("tournament_id", input.TournamentID),
		)
	}

	s.broadcast(input.TournamentID, brackets.EventParticipantJoined, participant)
	return participant, nil
}

// Start locks the tournament row, validates the caller and the roster,
// generates the first-round bracket, and flips the status, all in one
// transaction. A crash leaves either everything or nothing.
func (s *tournamentService) Start(ctx context.Context, userID, tournamentID int) ([]models.Match, error) {
	var matches []models.Match
	err := s.txRunner.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		tournament, err := s.tournamentRepo.GetByIDForUpdate(ctx, exec, tournamentID)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				return ErrTournamentNotFound
			}
			return err
		}

		if tournament.CreatedBy != userID {
			return ErrForbiddenOperation
		}
		if tournament.Status != models.StatusRegistration {
			return ErrTournamentNotStartable
		}
		if !models.CanTransition(tournament.Status, models.StatusInProgress) {
			return ErrTournamentNotStartable
		}

		participants, err := s.participantRepo.ListByTournament(ctx, exec, tournamentID)
		if err != nil {
			return err
		}
		if len(participants) < tournament.BracketSize {
			return ErrNotEnoughParticipants
		}

		groups, err := s.generator.GenerateBracket(ctx, brackets.GenerateBracketParams{
			Tournament:   tournament,
			Participants: participants,
		})
		if err != nil {
			return fmt.Errorf("failed to generate bracket for tournament %d: %w", tournamentID, err)
		}

		matches = make([]models.Match, 0, len(groups))
		allPlayers := make([]*models.MatchPlayer, 0, len(groups)*models.PlayersPerMatch)
		for _, group := range groups {
			match := models.Match{
				TournamentID: tournamentID,
				Round:        group.Round,
				MatchNumber:  group.MatchNumber,
				Status:       models.MatchPending,
			}
			if err := s.matchRepo.Create(ctx, exec, &match); err != nil {
				return fmt.Errorf("failed to create match %d: %w", group.MatchNumber, err)
			}
			for _, seed := range group.Seeds {
				allPlayers = append(allPlayers, &models.MatchPlayer{
					MatchID:      match.ID,
					UserID:       seed.UserID,
					SeedPosition: seed.SeedPosition,
				})
			}
			matches = append(matches, match)
		}
		if err := s.matchRepo.CreatePlayers(ctx, exec, allPlayers); err != nil {
			return fmt.Errorf("failed to create match players: %w", err)
		}
		for i := range matches {
			for _, p := range allPlayers {
				if p.MatchID == matches[i].ID {
					matches[i].Players = append(matches[i].Players, *p)
				}
			}
		}

		if err := s.participantRepo.UpdateStatusByTournament(ctx, exec, tournamentID, models.ParticipantActive); err != nil {
			return err
		}
		if err := s.tournamentRepo.UpdateStatus(ctx, exec, tournamentID, models.StatusInProgress); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "tournament started",
		slog.Int("tournament_id", tournamentID),
		slog.Int("matches", len(matches)),
	)
	s.broadcast(tournamentID, brackets.EventTournamentStarted, matches)
	return matches, nil
}

func (s *tournamentService) Get(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}

	g, gCtx := errgroup.WithContext(ctx)
	var participants []*models.Participant
	var matches []models.Match
	g.Go(func() error {
		var err error
		participants, err = s.participantRepo.ListByTournament(gCtx, nil, tournamentID)
		return err
	})
	g.Go(func() error {
		var err error
		matches, err = s.matchRepo.ListByTournament(gCtx, nil, tournamentID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load tournament %d details: %w", tournamentID, err)
	}

	tournament.Participants = dereferenceParticipants(participants)
	tournament.Matches = matches
	s.populateBannerURL(tournament)
	return tournament, nil
}

func (s *tournamentService) List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	g, gCtx := errgroup.WithContext(ctx)
	var tournaments []models.Tournament
	var total int
	g.Go(func() error {
		var err error
		tournaments, err = s.tournamentRepo.List(gCtx, repositories.ListTournamentsFilter{
			Status: filter.Status,
			Limit:  filter.Limit,
			Offset: filter.Offset,
		})
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.tournamentRepo.Count(gCtx, filter.Status)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("failed to list tournaments: %w", err)
	}

	for i := range tournaments {
		s.populateBannerURL(&tournaments[i])
	}
	return tournaments, total, nil
}

func (s *tournamentService) UploadBanner(ctx context.Context, userID, tournamentID int, contentType string, body io.Reader) (*models.Tournament, error) {
	if s.uploader == nil {
		return nil, ErrUploaderUnavailable
	}

	tournament, err := s.tournamentRepo.GetByID(ctx, nil, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	if tournament.CreatedBy != userID {
		return nil, ErrForbiddenOperation
	}

	ext, err := extensionForContentType(contentType)
	if err != nil {
		return nil, ErrUnsupportedContentType
	}
	key := "tournaments/" + strconv.Itoa(tournamentID) + "/banner-" + uuid.NewString() + ext

	result, err := s.uploader.Upload(ctx, key, contentType, body)
	if err != nil {
		return nil, fmt.Errorf("failed to upload tournament banner: %w", err)
	}
	if err := s.tournamentRepo.UpdateBannerKey(ctx, tournamentID, &result.Key); err != nil {
		return nil, err
	}

	if tournament.BannerKey != nil && *tournament.BannerKey != "" {
		if delErr := s.uploader.Delete(ctx, *tournament.BannerKey); delErr != nil {
			s.logger.WarnContext(ctx, "failed to delete previous banner",
				slog.Int("tournament_id", tournamentID),
				slog.String("key", *tournament.BannerKey),
				slog.Any("error", delErr),
			)
		}
	}

	tournament.BannerKey = &result.Key
	s.populateBannerURL(tournament)
	return tournament, nil
}

func (s *tournamentService) broadcast(tournamentID int, eventType string, payload interface{}) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastToRoom(roomForTournament(tournamentID), brackets.TournamentEvent{
		Type:         eventType,
		TournamentID: tournamentID,
		Payload:      payload,
	})
}

func (s *tournamentService) populateBannerURL(t *models.Tournament) {
	if t == nil || s.uploader == nil || t.BannerKey == nil || *t.BannerKey == "" {
		return
	}
	if url := s.uploader.GetPublicURL(*t.BannerKey); url != "" {
		t.BannerURL = &url
	}
}
