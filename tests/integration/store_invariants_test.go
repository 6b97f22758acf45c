package integration

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sproutmarket/guard/internal/models"
	"github.com/sproutmarket/guard/internal/repositories"
)

var testDB *TestDB

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(0)
	}

	ctx := context.Background()
	db, err := SetupTestDatabase(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up test database: %v\n", err)
		os.Exit(1)
	}
	testDB = db

	code := m.Run()
	_ = testDB.Teardown(ctx)
	os.Exit(code)
}

func resetTables(t *testing.T) {
	t.Helper()
	require.NoError(t, testDB.CleanupTables(context.Background()))
}

func seedChallenge(t *testing.T, repo *repositories.OtpChallengeRepository, target string) *models.OtpChallenge {
	t.Helper()
	now := time.Now()
	challenge := &models.OtpChallenge{
		VerificationKey: uuid.New().String(),
		Target:          target,
		Purpose:         models.OtpPurposeLogin,
		CodeHash:        "ab12cd34",
		IssuedAt:        now,
		ExpiresAt:       now.Add(5 * time.Minute),
	}
	require.NoError(t, repo.Replace(context.Background(), challenge))
	return challenge
}

func TestOtpChallengeConsume_ExactlyOnce(t *testing.T) {
	resetTables(t)
	repo := repositories.NewOtpChallengeRepository(testDB.DB)
	ctx := context.Background()

	challenge := seedChallenge(t, repo, "kid@example.com")

	var wg sync.WaitGroup
	results := make(chan bool, 20)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumed, err := repo.Consume(ctx, challenge.VerificationKey)
			if err == nil && consumed {
				results <- true
			}
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for range results {
		winners++
	}
	assert.Equal(t, 1, winners)
}

func TestOtpChallengeReplace_InvalidatesPrior(t *testing.T) {
	resetTables(t)
	repo := repositories.NewOtpChallengeRepository(testDB.DB)
	ctx := context.Background()

	first := seedChallenge(t, repo, "kid@example.com")
	second := seedChallenge(t, repo, "kid@example.com")

	stale, err := repo.GetByKey(ctx, first.VerificationKey)
	require.NoError(t, err)
	assert.True(t, stale.IsConsumed())

	live, err := repo.GetByKey(ctx, second.VerificationKey)
	require.NoError(t, err)
	assert.False(t, live.IsConsumed())
}

func TestOtpChallengeReplace_PurposesIndependent(t *testing.T) {
	resetTables(t)
	repo := repositories.NewOtpChallengeRepository(testDB.DB)
	ctx := context.Background()

	now := time.Now()
	registration := &models.OtpChallenge{
		VerificationKey: uuid.New().String(),
		Target:          "kid@example.com",
		Purpose:         models.OtpPurposeRegistration,
		CodeHash:        "ef56ab78",
		IssuedAt:        now,
		ExpiresAt:       now.Add(5 * time.Minute),
	}
	require.NoError(t, repo.Replace(ctx, registration))

	// A login challenge for the same target must not touch it.
	seedChallenge(t, repo, "kid@example.com")

	got, err := repo.GetByKey(ctx, registration.VerificationKey)
	require.NoError(t, err)
	assert.False(t, got.IsConsumed())
}

func TestOtpChallengeDeleteExpired(t *testing.T) {
	resetTables(t)
	repo := repositories.NewOtpChallengeRepository(testDB.DB)
	ctx := context.Background()

	now := time.Now()
	expired := &models.OtpChallenge{
		VerificationKey: uuid.New().String(),
		Target:          "old@example.com",
		Purpose:         models.OtpPurposeLogin,
		CodeHash:        "00ff11ee",
		IssuedAt:        now.Add(-10 * time.Minute),
		ExpiresAt:       now.Add(-5 * time.Minute),
	}
	require.NoError(t, repo.Replace(ctx, expired))
	live := seedChallenge(t, repo, "kid@example.com")

	deleted, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.GetByKey(ctx, expired.VerificationKey)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = repo.GetByKey(ctx, live.VerificationKey)
	assert.NoError(t, err)
}

func TestSpendReservation_AtomicUnderConcurrency(t *testing.T) {
	resetTables(t)
	repo := repositories.NewSpendRepository(testDB.DB)
	ctx := context.Background()

	childID := uuid.New().String()
	day := time.Now()

	var wg sync.WaitGroup
	admitted := make(chan struct{}, 30)

	// Limit 1000 cents, 30 concurrent 100-cent reservations: exactly 10 fit.
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := repo.ReserveSpend(ctx, childID, day, 100, 1000)
			if err == nil && ok {
				admitted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for range admitted {
		count++
	}
	assert.Equal(t, 10, count)

	// The counter sits exactly at the limit.
	ok, total, err := repo.ReserveSpend(ctx, childID, day, 1, 1000)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(1000), total)
}

func TestSpendReservation_ReleaseRestoresHeadroom(t *testing.T) {
	resetTables(t)
	repo := repositories.NewSpendRepository(testDB.DB)
	ctx := context.Background()

	childID := uuid.New().String()
	day := time.Now()

	ok, total, err := repo.ReserveSpend(ctx, childID, day, 1000, 1000)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1000), total)

	require.NoError(t, repo.ReleaseSpend(ctx, childID, day, 400))

	ok, total, err = repo.ReserveSpend(ctx, childID, day, 400, 1000)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1000), total)
}

func TestSpendReservation_DaysIndependent(t *testing.T) {
	resetTables(t)
	repo := repositories.NewSpendRepository(testDB.DB)
	ctx := context.Background()

	childID := uuid.New().String()
	today := time.Now()
	tomorrow := today.Add(24 * time.Hour)

	ok, _, err := repo.ReserveSpend(ctx, childID, today, 1000, 1000)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, err = repo.ReserveSpend(ctx, childID, tomorrow, 1000, 1000)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestParentalControlsRoundTrip(t *testing.T) {
	resetTables(t)
	repo := repositories.NewParentalControlsRepository(testDB.DB)
	ctx := context.Background()

	_, child, err := SeedChildWithParent(ctx, testDB.Pool)
	require.NoError(t, err)

	controls := &models.ParentalControls{
		ChildID:           child.ID,
		DailySpendLimit:   1500,
		AllowedCategories: []string{"books", "crafts"},
		TimeRestrictions: models.TimeRestrictions{
			Start: models.TimeOfDay(8 * 60),
			End:   models.TimeOfDay(20 * 60),
		},
	}
	require.NoError(t, repo.Upsert(ctx, controls))

	got, err := repo.GetByChildID(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), got.DailySpendLimit)
	assert.Equal(t, []string{"books", "crafts"}, got.AllowedCategories)
	assert.Equal(t, models.TimeOfDay(8*60), got.TimeRestrictions.Start)
	assert.Equal(t, models.TimeOfDay(20*60), got.TimeRestrictions.End)

	// Upsert replaces the existing row.
	controls.DailySpendLimit = 500
	controls.AllowedCategories = nil
	require.NoError(t, repo.Upsert(ctx, controls))

	got, err = repo.GetByChildID(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.DailySpendLimit)
	assert.Empty(t, got.AllowedCategories)
}

func TestParentalControls_NotConfigured(t *testing.T) {
	resetTables(t)
	repo := repositories.NewParentalControlsRepository(testDB.DB)

	_, err := repo.GetByChildID(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTotpSecretLifecycle(t *testing.T) {
	resetTables(t)
	repo := repositories.NewTotpSecretRepository(testDB.DB)
	ctx := context.Background()

	account, err := SeedAccount(ctx, testDB.Pool, "totp@example.com", "Sufficient1!", models.RoleParent)
	require.NoError(t, err)

	require.NoError(t, repo.Create(ctx, &models.TotpSecret{
		AccountID: account.ID,
		Secret:    "JBSWY3DPEHPK3PXP",
	}))

	// Duplicate enrollment is a conflict at the storage layer.
	err = repo.Create(ctx, &models.TotpSecret{AccountID: account.ID, Secret: "OTHER"})
	assert.ErrorIs(t, err, models.ErrConflict)

	require.NoError(t, repo.MarkConfirmed(ctx, account.ID))

	got, err := repo.GetByAccountID(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, got.Confirmed)
	assert.NotNil(t, got.ConfirmedAt)

	// Confirming twice affects zero rows.
	assert.ErrorIs(t, repo.MarkConfirmed(ctx, account.ID), models.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, account.ID))
	_, err = repo.GetByAccountID(ctx, account.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAccountRepository_Lookups(t *testing.T) {
	resetTables(t)
	repo := repositories.NewAccountRepository(testDB.DB)
	ctx := context.Background()

	seeded, err := SeedAccount(ctx, testDB.Pool, "lookup@example.com", "Sufficient1!", models.RoleParent)
	require.NoError(t, err)

	byEmail, err := repo.GetByEmail(ctx, "lookup@example.com")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, byEmail.ID)

	byID, err := repo.GetByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, "lookup@example.com", byID.Email)

	_, err = repo.GetByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
