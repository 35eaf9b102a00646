package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/arena-tournaments/brackets"
	"github.com/Dosada05/arena-tournaments/models"
	"github.com/Dosada05/arena-tournaments/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// fakeStore backs the repository fakes with plain maps. The mutex in
// fakeTxRunner serializes transactional sections the way the row lock
// does in Postgres.
type fakeStore struct {
	mu           sync.Mutex
	tournaments  map[int]*models.Tournament
	participants map[int]*models.Participant
	matches      map[int]*models.Match
	players      map[int]*models.MatchPlayer
	nextID       int
	clock        time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tournaments:  make(map[int]*models.Tournament),
		participants: make(map[int]*models.Participant),
		matches:      make(map[int]*models.Match),
		players:      make(map[int]*models.MatchPlayer),
		clock:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *fakeStore) id() int {
	s.nextID++
	return s.nextID
}

func (s *fakeStore) now() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

type fakeTxRunner struct {
	mu sync.Mutex
}

func (f *fakeTxRunner) RunInTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(nil)
}

type fakeTournamentRepo struct{ store *fakeStore }

func (r *fakeTournamentRepo) Create(ctx context.Context, t *models.Tournament) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	t.ID = r.store.id()
	t.CreatedAt = r.store.now()
	clone := *t
	r.store.tournaments[t.ID] = &clone
	return nil
}

func (r *fakeTournamentRepo) get(id int) (*models.Tournament, error) {
	t, ok := r.store.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	clone := *t
	return &clone, nil
}

func (r *fakeTournamentRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.get(id)
}

func (r *fakeTournamentRepo) GetByIDForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.get(id)
}

func (r *fakeTournamentRepo) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	all := make([]models.Tournament, 0)
	for _, t := range r.store.tournaments {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		clone := *t
		count := 0
		for _, p := range r.store.participants {
			if p.TournamentID == t.ID {
				count++
			}
		}
		clone.ParticipantCount = &count
		all = append(all, clone)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if filter.Offset > 0 {
		if filter.Offset >= len(all) {
			return []models.Tournament{}, nil
		}
		all = all[filter.Offset:]
	}
	if filter.Limit > 0 && len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	return all, nil
}

func (r *fakeTournamentRepo) Count(ctx context.Context, status *models.TournamentStatus) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	count := 0
	for _, t := range r.store.tournaments {
		if status == nil || t.Status == *status {
			count++
		}
	}
	return count, nil
}

func (r *fakeTournamentRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.TournamentStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	t, ok := r.store.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = status
	return nil
}

func (r *fakeTournamentRepo) UpdateBannerKey(ctx context.Context, id int, bannerKey *string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	t, ok := r.store.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.BannerKey = bannerKey
	return nil
}

type fakeParticipantRepo struct{ store *fakeStore }

func (r *fakeParticipantRepo) Create(ctx context.Context, exec repositories.SQLExecutor, p *models.Participant) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.participants {
		if existing.TournamentID == p.TournamentID && existing.UserID == p.UserID {
			return repositories.ErrParticipantConflict
		}
	}
	p.ID = r.store.id()
	p.CreatedAt = r.store.now()
	clone := *p
	r.store.participants[p.ID] = &clone
	return nil
}

func (r *fakeParticipantRepo) FindByUserAndTournament(ctx context.Context, exec repositories.SQLExecutor, userID, tournamentID int) (*models.Participant, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, p := range r.store.participants {
		if p.TournamentID == tournamentID && p.UserID == userID {
			clone := *p
			return &clone, nil
		}
	}
	return nil, repositories.ErrParticipantNotFound
}

func (r *fakeParticipantRepo) ListByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) ([]*models.Participant, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	result := make([]*models.Participant, 0)
	for _, p := range r.store.participants {
		if p.TournamentID == tournamentID {
			clone := *p
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *fakeParticipantRepo) CountByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	count := 0
	for _, p := range r.store.participants {
		if p.TournamentID == tournamentID {
			count++
		}
	}
	return count, nil
}

func (r *fakeParticipantRepo) UpdateStatusByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, status models.ParticipantStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, p := range r.store.participants {
		if p.TournamentID == tournamentID {
			p.Status = status
		}
	}
	return nil
}

type fakeMatchRepo struct{ store *fakeStore }

func (r *fakeMatchRepo) Create(ctx context.Context, exec repositories.SQLExecutor, m *models.Match) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	m.ID = r.store.id()
	m.CreatedAt = r.store.now()
	clone := *m
	clone.Players = nil
	r.store.matches[m.ID] = &clone
	return nil
}

func (r *fakeMatchRepo) CreatePlayers(ctx context.Context, exec repositories.SQLExecutor, players []*models.MatchPlayer) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, p := range players {
		p.ID = r.store.id()
		p.CreatedAt = r.store.now()
		clone := *p
		r.store.players[p.ID] = &clone
	}
	return nil
}

func (r *fakeMatchRepo) ListByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) ([]models.Match, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	result := make([]models.Match, 0)
	for _, m := range r.store.matches {
		if m.TournamentID != tournamentID {
			continue
		}
		clone := *m
		clone.Players = make([]models.MatchPlayer, 0, models.PlayersPerMatch)
		for _, p := range r.store.players {
			if p.MatchID == m.ID {
				clone.Players = append(clone.Players, *p)
			}
		}
		sort.Slice(clone.Players, func(i, j int) bool { return clone.Players[i].SeedPosition < clone.Players[j].SeedPosition })
		result = append(result, clone)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Round != result[j].Round {
			return result[i].Round < result[j].Round
		}
		return result[i].MatchNumber < result[j].MatchNumber
	})
	return result, nil
}

type fixture struct {
	store   *fakeStore
	service TournamentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newFakeStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewTournamentService(
		&fakeTxRunner{},
		&fakeTournamentRepo{store: store},
		&fakeParticipantRepo{store: store},
		&fakeMatchRepo{store: store},
		brackets.NewGroupStageGenerator(),
		nil,
		nil,
		logger,
	)
	return &fixture{store: store, service: svc}
}

func validCreateInput(size int) CreateTournamentInput {
	return CreateTournamentInput{
		Name:              "Friday Night Bracket",
		BracketSize:       size,
		EntryFee:          10,
		CommissionRate:    10,
		RegistrationStart: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		RegistrationEnd:   time.Date(2025, 6, 7, 0, 0, 0, 0, time.UTC),
		PrizeDistribution: []models.PrizeSlot{
			{Position: 1, Percentage: 50},
			{Position: 2, Percentage: 30},
			{Position: 3, Percentage: 20},
		},
	}
}

func (f *fixture) createTournament(t *testing.T, creatorID, size int) *models.Tournament {
	t.Helper()
	tournament, err := f.service.Create(context.Background(), creatorID, validCreateInput(size))
	require.NoError(t, err)
	return tournament
}

func (f *fixture) fillRoster(t *testing.T, tournamentID, size int) {
	t.Helper()
	for i := 0; i < size; i++ {
		_, err := f.service.Join(context.Background(), 1000+i, JoinTournamentInput{TournamentID: tournamentID})
		require.NoError(t, err)
	}
}

func TestCreate_ComputesDerivedFields(t *testing.T) {
	tests := []struct {
		size       int
		wantRounds int
		wantPool   float64
	}{
		{16, 2, 144}, // 10 * 16 * 0.9
		{64, 3, 576}, // 10 * 64 * 0.9
	}
	for _, tt := range tests {
		f := newFixture(t)
		tournament := f.createTournament(t, 1, tt.size)

		assert.Equal(t, tt.wantRounds, tournament.TotalRounds)
		assert.InDelta(t, tt.wantPool, tournament.PrizePool, 1e-9)
		assert.Equal(t, 1, tournament.CurrentRound)
		assert.Equal(t, models.StatusRegistration, tournament.Status)
		assert.Equal(t, 1, tournament.CreatedBy)
	}
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CreateTournamentInput)
		wantErr error
	}{
		{"size 8", func(in *CreateTournamentInput) { in.BracketSize = 8 }, ErrInvalidBracketSize},
		{"size 32", func(in *CreateTournamentInput) { in.BracketSize = 32 }, ErrInvalidBracketSize},
		{"size 100", func(in *CreateTournamentInput) { in.BracketSize = 100 }, ErrInvalidBracketSize},
		{"empty name", func(in *CreateTournamentInput) { in.Name = "   " }, ErrTournamentNameRequired},
		{"negative fee", func(in *CreateTournamentInput) { in.EntryFee = -1 }, ErrInvalidEntryFee},
		{"commission over 100", func(in *CreateTournamentInput) { in.CommissionRate = 101 }, ErrInvalidCommissionRate},
		{"reversed window", func(in *CreateTournamentInput) {
			in.RegistrationStart, in.RegistrationEnd = in.RegistrationEnd, in.RegistrationStart
		}, ErrInvalidRegistrationWindow},
		{"distribution over 100 percent", func(in *CreateTournamentInput) {
			in.PrizeDistribution = []models.PrizeSlot{{Position: 1, Percentage: 80}, {Position: 2, Percentage: 30}}
		}, ErrInvalidPrizeDistribution},
		{"duplicate distribution position", func(in *CreateTournamentInput) {
			in.PrizeDistribution = []models.PrizeSlot{{Position: 1, Percentage: 40}, {Position: 1, Percentage: 40}}
		}, ErrInvalidPrizeDistribution},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			input := validCreateInput(16)
			tt.mutate(&input)
			_, err := f.service.Create(context.Background(), 1, input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreate_JoinCodeIsHashed(t *testing.T) {
	f := newFixture(t)
	input := validCreateInput(16)
	input.JoinCode = "4242"
	tournament, err := f.service.Create(context.Background(), 1, input)
	require.NoError(t, err)

	require.True(t, tournament.Private())
	assert.NotEqual(t, "4242", *tournament.JoinCodeHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*tournament.JoinCodeHash), []byte("4242")))
}

func TestJoin_Success(t *testing.T) {
	f := newFixture(t)
	tournament := f.createTournament(t, 1, 16)

	participant, err := f.service.Join(context.Background(), 42, JoinTournamentInput{TournamentID: tournament.ID})
	require.NoError(t, err)
	assert.Equal(t, tournament.ID, participant.TournamentID)
	assert.Equal(t, 42, participant.UserID)
	assert.Equal(t, models.ParticipantRegistered, participant.Status)
	assert.NotZero(t, participant.ID)
}

func TestJoin_TournamentNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Join(context.Background(), 42, JoinTournamentInput{TournamentID: 999})
	assert.ErrorIs(t, err, ErrTournamentNotFound)
}

func TestJoin_DuplicateRejected(t *testing.T) {
	f := newFixture(t)
	tournament := f.createTournament(t, 1, 16)

	_, err := f.service.Join(context.Background(), 42, JoinTournamentInput{TournamentID: tournament.ID})
	require.NoError(t, err)

	_, err = f.service.Join(context.Background(), 42, JoinTournamentInput{TournamentID: tournament.ID})
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestJoin_FullRosterRejected(t *testing.T) {
	f := newFixture(t)
	tournament := f.createTournament(t, 1, 16)
	f.fillRoster(t, tournament.ID, 16)

	// A brand-new user is rejected once capacity is reached.
	_, err := f.service.Join(context.Background(), 9999, JoinTournamentInput{TournamentID: tournament.ID})
	assert.ErrorIs(t, err, ErrTournamentFull)
}

func TestJoin_ClosedAfterStart(t *testing.T) {
	f := newFixture(t)
	tournament := f.createTournament(t, 1, 16)
	f.fillRoster(t, tournament.ID, 16)

	_, err := f.service.Start(context.Background(), 1, tournament.ID)
	require.NoError(t, err)

	_, err = f.service.Join(context.Background(), 9999, JoinTournamentInput{TournamentID: tournament.ID})
	assert.ErrorIs(t, err, ErrRegistrationClosed)
}

func TestJoin_JoinCodeEnforced(t *testing.T) {
	f := newFixture(t)
	input := validCreateInput(16)
	input.JoinCode = "secret"
	tournament, err := f.service.Create(context.Background(), 1, input)
	require.NoError(t, err)

	_, err = f.service.Join(context.Background(), 42, JoinTournamentInput{TournamentID: tournament.ID})
	assert.ErrorIs(t, err, ErrJoinCodeInvalid)

	_, err = f.service.Join(context.Background(), 42, JoinTournamentInput{TournamentID: tournament.ID, JoinCode: "wrong"})
	assert.ErrorIs(t, err, ErrJoinCodeInvalid)

	_, err = f.service.Join(context.Background(), 42, JoinTournamentInput{TournamentID: tournament.ID, JoinCode: "secret"})
	assert.NoError(t, err)
}

func TestStart_ForbiddenForNonCreator(t *testing.T) {
	f := newFixture(t)
	tournament := f.createTournament(t, 1, 16)
	f.fillRoster(t, tournament.ID, 16)

	_, err := f.service.Start(context.Background(), 2, tournament.ID)
	assert.ErrorIs(t, err, ErrForbiddenOperation)
}

func TestStart_NotEnoughParticipants(t *testing.T) {
	f := newFixture(t)
	tournament := f.createTournament(t, 1, 16)
	f.fillRoster(t, tournament.ID, 15)

	_, err := f.service.Start(context.Background(), 1, tournament.ID)
	assert.ErrorIs(t, err, ErrNotEnoughParticipants)
}

func TestStart_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Start(context.Background(), 1, 999)
	assert.ErrorIs(t, err, ErrTournamentNotFound)
}

func TestStart_GeneratesBracketAndFlipsStatus(t *testing.T) {
	f := newFixture(t)
	tournament := f.createTournament(t, 1, 16)
	f.fillRoster(t, tournament.ID, 16)

	matches, err := f.service.Start(context.Background(), 1, tournament.ID)
	require.NoError(t, err)
	require.Len(t, matches, 4)

	seenUsers := make(map[int]bool)
	for i, match := range matches {
		assert.Equal(t, 1, match.Round)
		assert.Equal(t, i+1, match.MatchNumber)
		assert.Equal(t, models.MatchPending, match.Status)
		require.Len(t, match.Players, 4)

		seenSeeds := make(map[int]bool)
		for _, player := range match.Players {
			assert.False(t, seenUsers[player.UserID], "user %d seeded twice", player.UserID)
			seenUsers[player.UserID] = true
			seenSeeds[player.SeedPosition] = true
		}
		for pos := 1; pos <= 4; pos++ {
			assert.True(t, seenSeeds[pos], "match %d missing seed %d", match.MatchNumber, pos)
		}
	}
	assert.Len(t, seenUsers, 16)

	reloaded, err := f.service.Get(context.Background(), tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, reloaded.Status)
	for _, p := range reloaded.Participants {
		assert.Equal(t, models.ParticipantActive, p.Status)
	}
}

func TestStart_SecondCallRejected(t *testing.T) {
	f := newFixture(t)
	tournament := f.createTournament(t, 1, 16)
	f.fillRoster(t, tournament.ID, 16)

	_, err := f.service.Start(context.Background(), 1, tournament.ID)
	require.NoError(t, err)

	_, err = f.service.Start(context.Background(), 1, tournament.ID)
	assert.ErrorIs(t, err, ErrTournamentNotStartable)
}

func TestStart_ConcurrentCallsProduceSingleBracket(t *testing.T) {
	f := newFixture(t)
	tournament := f.createTournament(t, 1, 16)
	f.fillRoster(t, tournament.ID, 16)

	// Both calls race into the transaction; the lock serializes them
	// and the status check inside the transaction rejects the loser.
	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Start(context.Background(), 1, tournament.ID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, rejections int
	for err := range results {
		if err == nil {
			successes++
		} else if errors.Is(err, ErrTournamentNotStartable) {
			rejections++
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, rejections)

	reloaded, err := f.service.Get(context.Background(), tournament.ID)
	require.NoError(t, err)
	assert.Len(t, reloaded.Matches, 4, "a double start must not double the bracket")
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Get(context.Background(), 12345)
	assert.ErrorIs(t, err, ErrTournamentNotFound)
}

func TestGet_ReturnsNestedEntities(t *testing.T) {
	f := newFixture(t)
	tournament := f.createTournament(t, 1, 16)
	f.fillRoster(t, tournament.ID, 16)
	_, err := f.service.Start(context.Background(), 1, tournament.ID)
	require.NoError(t, err)

	full, err := f.service.Get(context.Background(), tournament.ID)
	require.NoError(t, err)
	assert.Len(t, full.Participants, 16)
	require.Len(t, full.Matches, 4)
	for _, m := range full.Matches {
		assert.Len(t, m.Players, 4)
	}
}

func TestList_FiltersAndCounts(t *testing.T) {
	f := newFixture(t)
	var ids []int
	for i := 0; i < 5; i++ {
		ids = append(ids, f.createTournament(t, 1, 16).ID)
	}
	f.fillRoster(t, ids[0], 16)
	_, err := f.service.Start(context.Background(), 1, ids[0])
	require.NoError(t, err)

	status := models.StatusRegistration
	tournaments, total, err := f.service.List(context.Background(), ListTournamentsFilter{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, tournaments, 4)
	for i, tour := range tournaments {
		assert.Equal(t, models.StatusRegistration, tour.Status)
		if i > 0 {
			assert.False(t, tour.CreatedAt.After(tournaments[i-1].CreatedAt), "list must be most-recent-first")
		}
	}

	// Pagination: total reflects the full matching count regardless of
	// limit and offset.
	paged, total, err := f.service.List(context.Background(), ListTournamentsFilter{Status: &status, Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, paged, 2)
}

func TestList_AnnotatesParticipantCount(t *testing.T) {
	f := newFixture(t)
	tournament := f.createTournament(t, 1, 16)
	f.fillRoster(t, tournament.ID, 3)

	tournaments, _, err := f.service.List(context.Background(), ListTournamentsFilter{})
	require.NoError(t, err)
	require.Len(t, tournaments, 1)
	require.NotNil(t, tournaments[0].ParticipantCount)
	assert.Equal(t, 3, *tournaments[0].ParticipantCount)
}
