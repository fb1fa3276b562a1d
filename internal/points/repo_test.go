package points

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jwoolee/beautylink-backend/pkg/db"
	"github.com/jwoolee/beautylink-backend/pkg/db/models"
	"github.com/jwoolee/beautylink-backend/pkg/enums"
	"github.com/jwoolee/beautylink-backend/pkg/pagination"
)

func setupPointsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	transactions := `
CREATE TABLE IF NOT EXISTS point_transactions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  amount INTEGER NOT NULL,
  remaining INTEGER NOT NULL DEFAULT 0,
  kind TEXT NOT NULL,
  status TEXT NOT NULL,
  available_from DATETIME,
  expires_at DATETIME,
  source_payment_id TEXT,
  source_reservation_id TEXT,
  referred_user_id TEXT,
  reverses_transaction_id TEXT,
  reason TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  CHECK (remaining >= 0)
);`
	uniqueEffect := `
CREATE UNIQUE INDEX IF NOT EXISTS ux_point_transactions_source_effect
  ON point_transactions (source_payment_id, kind, user_id)
  WHERE source_payment_id IS NOT NULL;`
	balances := `
CREATE TABLE IF NOT EXISTS point_balances (
  user_id TEXT PRIMARY KEY,
  available INTEGER NOT NULL DEFAULT 0,
  pending INTEGER NOT NULL DEFAULT 0,
  total_earned INTEGER NOT NULL DEFAULT 0,
  frozen_at DATETIME,
  updated_at DATETIME
);`
	allocations := `
CREATE TABLE IF NOT EXISTS point_redemption_allocations (
  id TEXT PRIMARY KEY,
  redemption_id TEXT NOT NULL,
  credit_transaction_id TEXT NOT NULL,
  amount INTEGER NOT NULL,
  created_at DATETIME,
  CHECK (amount > 0)
);`
	for _, stmt := range []string{transactions, uniqueEffect, balances, allocations} {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

func seedCredit(t *testing.T, conn *gorm.DB, entry *models.PointTransaction) *models.PointTransaction {
	t.Helper()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	require.NoError(t, conn.Create(entry).Error)
	return entry
}

func availableCredit(userID uuid.UUID, amount int64, expiresAt time.Time) *models.PointTransaction {
	return &models.PointTransaction{
		ID:        uuid.New(),
		UserID:    userID,
		Amount:    amount,
		Remaining: amount,
		Kind:      enums.PointKindEarnedService,
		Status:    enums.PointStatusAvailable,
		ExpiresAt: &expiresAt,
	}
}

func TestCreateEntries_DuplicateEffectHitsUniqueIndex(t *testing.T) {
	conn := setupPointsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	paymentID := uuid.New()
	userID := uuid.New()
	build := func() *models.PointTransaction {
		return &models.PointTransaction{
			ID:              uuid.New(),
			UserID:          userID,
			Amount:          500,
			Remaining:       500,
			Kind:            enums.PointKindEarnedService,
			Status:          enums.PointStatusPending,
			SourcePaymentID: &paymentID,
		}
	}

	require.NoError(t, repo.CreateEntries(ctx, []*models.PointTransaction{build()}))

	err := repo.CreateEntries(ctx, []*models.PointTransaction{build()})
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, ""))
}

func TestCreateEntries_DebitsBypassUniqueIndex(t *testing.T) {
	conn := setupPointsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	userID := uuid.New()
	// Two redemption debits for the same user carry no payment reference and
	// must both insert.
	for i := 0; i < 2; i++ {
		debit := &models.PointTransaction{
			ID:     uuid.New(),
			UserID: userID,
			Amount: -100,
			Kind:   enums.PointKindRedeemed,
			Status: enums.PointStatusUsed,
		}
		require.NoError(t, repo.CreateEntries(ctx, []*models.PointTransaction{debit}))
	}
}

func TestMarkAvailable_TransitionsOnce(t *testing.T) {
	conn := setupPointsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	availableFrom := time.Now().Add(-time.Hour).UTC()
	entry := seedCredit(t, conn, &models.PointTransaction{
		UserID:        uuid.New(),
		Amount:        300,
		Remaining:     300,
		Kind:          enums.PointKindEarnedService,
		Status:        enums.PointStatusPending,
		AvailableFrom: &availableFrom,
	})

	now := time.Now().UTC()
	ok, err := repo.MarkAvailable(ctx, entry.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)

	// A concurrent sweeper pass observes zero affected rows.
	ok, err = repo.MarkAvailable(ctx, entry.ID, now)
	require.NoError(t, err)
	assert.False(t, ok)

	reloaded, err := repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PointStatusAvailable, reloaded.Status)
}

func TestMarkExpired_KeepsForfeitedRemaining(t *testing.T) {
	conn := setupPointsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	entry := seedCredit(t, conn, availableCredit(uuid.New(), 400, time.Now().Add(-time.Hour)))
	entry.Remaining = 150
	require.NoError(t, conn.Model(entry).Update("remaining", 150).Error)

	// A stale observation of remaining is refused; the sweep retries with
	// the fresh value.
	ok, err := repo.MarkExpired(ctx, entry.ID, 400, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.MarkExpired(ctx, entry.ID, 150, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, ok)

	reloaded, err := repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PointStatusExpired, reloaded.Status)
	assert.Equal(t, int64(150), reloaded.Remaining)
}

func TestMarkReversed_RequiresObservedStatus(t *testing.T) {
	conn := setupPointsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	entry := seedCredit(t, conn, &models.PointTransaction{
		UserID:    uuid.New(),
		Amount:    200,
		Remaining: 200,
		Kind:      enums.PointKindEarnedService,
		Status:    enums.PointStatusPending,
	})

	// Stale observation: caller saw available but the row is pending.
	ok, err := repo.MarkReversed(ctx, entry.ID, enums.PointStatusAvailable, 200)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.MarkReversed(ctx, entry.ID, enums.PointStatusPending, 200)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMarkReversed_RefusesPartiallyConsumedCredit(t *testing.T) {
	conn := setupPointsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	entry := seedCredit(t, conn, availableCredit(uuid.New(), 300, time.Now().Add(24*time.Hour)))

	// A redemption drains part of the credit after the reversal's snapshot:
	// status stays available but remaining no longer matches.
	ok, err := repo.ConsumeCredit(ctx, entry.ID, 100)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.MarkReversed(ctx, entry.ID, enums.PointStatusAvailable, 300)
	require.NoError(t, err)
	assert.False(t, ok, "a credit a redemption depends on must not reverse")

	reloaded, err := repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PointStatusAvailable, reloaded.Status)
	assert.Equal(t, int64(200), reloaded.Remaining)
}

func TestConsumeCredit_PartialAndFullSplits(t *testing.T) {
	conn := setupPointsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	entry := seedCredit(t, conn, availableCredit(uuid.New(), 700, time.Now().Add(24*time.Hour)))

	ok, err := repo.ConsumeCredit(ctx, entry.ID, 400)
	require.NoError(t, err)
	assert.True(t, ok)

	reloaded, err := repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), reloaded.Remaining)
	assert.Equal(t, enums.PointStatusAvailable, reloaded.Status)

	// Over-consumption is refused.
	ok, err = repo.ConsumeCredit(ctx, entry.ID, 301)
	require.NoError(t, err)
	assert.False(t, ok)

	// Draining the credit flips it to used.
	ok, err = repo.ConsumeCredit(ctx, entry.ID, 300)
	require.NoError(t, err)
	assert.True(t, ok)

	reloaded, err = repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), reloaded.Remaining)
	assert.Equal(t, enums.PointStatusUsed, reloaded.Status)
}

func TestSelectRedeemable_OrdersBySoonestExpiry(t *testing.T) {
	conn := setupPointsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	userID := uuid.New()
	later := seedCredit(t, conn, availableCredit(userID, 700, time.Now().Add(48*time.Hour)))
	sooner := seedCredit(t, conn, availableCredit(userID, 300, time.Now().Add(24*time.Hour)))
	// Drained and foreign credits are excluded.
	drained := availableCredit(userID, 100, time.Now().Add(24*time.Hour))
	drained.Remaining = 0
	drained.Status = enums.PointStatusUsed
	seedCredit(t, conn, drained)
	seedCredit(t, conn, availableCredit(uuid.New(), 900, time.Now().Add(24*time.Hour)))
	// Lapsed but not yet swept: still available in the log, not spendable.
	seedCredit(t, conn, availableCredit(userID, 100, time.Now().Add(-time.Hour)))

	rows, err := repo.SelectRedeemable(ctx, userID, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, sooner.ID, rows[0].ID)
	assert.Equal(t, later.ID, rows[1].ID)
}

func TestApplyBalanceDelta_UpsertsAndAccumulates(t *testing.T) {
	conn := setupPointsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	userID := uuid.New()
	require.NoError(t, repo.ApplyBalanceDelta(ctx, userID, BalanceDelta{Pending: 500, TotalEarned: 500}))
	require.NoError(t, repo.ApplyBalanceDelta(ctx, userID, BalanceDelta{Pending: -500, Available: 500}))

	balance, err := repo.GetBalance(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, balance)
	assert.Equal(t, int64(500), balance.Available)
	assert.Equal(t, int64(0), balance.Pending)
	assert.Equal(t, int64(500), balance.TotalEarned)
}

func TestDebitAvailable_GuardsBalanceAndFreeze(t *testing.T) {
	conn := setupPointsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	userID := uuid.New()
	require.NoError(t, repo.ApplyBalanceDelta(ctx, userID, BalanceDelta{Available: 300}))

	ok, err := repo.DebitAvailable(ctx, userID, 400)
	require.NoError(t, err)
	assert.False(t, ok, "over-debit must be refused")

	ok, err = repo.DebitAvailable(ctx, userID, 200)
	require.NoError(t, err)
	assert.True(t, ok)

	frozen, err := repo.FreezeBalance(ctx, userID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, frozen)

	ok, err = repo.DebitAvailable(ctx, userID, 50)
	require.NoError(t, err)
	assert.False(t, ok, "frozen accounts refuse debits")

	unfrozen, err := repo.UnfreezeBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, unfrozen)

	unfrozen, err = repo.UnfreezeBalance(ctx, userID)
	require.NoError(t, err)
	assert.False(t, unfrozen, "second unfreeze observes zero rows")
}

func TestLedgerTotals_FoldsTheLog(t *testing.T) {
	conn := setupPointsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	userID := uuid.New()

	// Available credit partially consumed: 300 of 500 left.
	partial := availableCredit(userID, 500, time.Now().Add(24*time.Hour))
	partial.Remaining = 300
	seedCredit(t, conn, partial)

	// Pending credit counts toward pending only; it has not earned yet.
	seedCredit(t, conn, &models.PointTransaction{
		UserID:    userID,
		Amount:    200,
		Remaining: 200,
		Kind:      enums.PointKindEarnedReferral,
		Status:    enums.PointStatusPending,
	})

	// Reversed credit is excluded from total earned.
	seedCredit(t, conn, &models.PointTransaction{
		UserID: userID,
		Amount: 900,
		Kind:   enums.PointKindEarnedService,
		Status: enums.PointStatusReversed,
	})

	// Debits never count toward total earned.
	seedCredit(t, conn, &models.PointTransaction{
		UserID: userID,
		Amount: -200,
		Kind:   enums.PointKindRedeemed,
		Status: enums.PointStatusUsed,
	})

	// Expired credit reached available once, so its amount stays earned.
	seedCredit(t, conn, &models.PointTransaction{
		UserID: userID,
		Amount: 400,
		Kind:   enums.PointKindEarnedService,
		Status: enums.PointStatusExpired,
	})

	totals, err := repo.LedgerTotals(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), totals.Available)
	assert.Equal(t, int64(200), totals.Pending)
	assert.Equal(t, int64(900), totals.TotalEarned)
}

func TestListBalances_PagesByUserID(t *testing.T) {
	conn := setupPointsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.ApplyBalanceDelta(ctx, uuid.New(), BalanceDelta{Available: int64(i + 1)}))
	}

	first, err := repo.ListBalances(ctx, uuid.Nil, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.True(t, first[0].UserID.String() < first[1].UserID.String())

	rest, err := repo.ListBalances(ctx, first[1].UserID, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.True(t, first[1].UserID.String() < rest[0].UserID.String())
}

func TestHistory_CursorWalksNewestFirst(t *testing.T) {
	conn := setupPointsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	userID := uuid.New()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		entry := availableCredit(userID, int64(100*(i+1)), base.Add(240*time.Hour))
		entry.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		seedCredit(t, conn, entry)
	}

	firstPage, err := repo.History(ctx, historyQuery{userID: userID, limit: 2})
	require.NoError(t, err)
	require.Len(t, firstPage, 2)
	assert.True(t, firstPage[0].CreatedAt.After(firstPage[1].CreatedAt))

	cursor := &pagination.Cursor{CreatedAt: firstPage[1].CreatedAt, ID: firstPage[1].ID}
	secondPage, err := repo.History(ctx, historyQuery{userID: userID, cursor: cursor, limit: 2})
	require.NoError(t, err)
	require.Len(t, secondPage, 1)
	assert.True(t, secondPage[0].CreatedAt.Before(firstPage[1].CreatedAt))
}

func TestAllocationsRoundTrip(t *testing.T) {
	conn := setupPointsTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	redemptionID := uuid.New()
	allocs := []*models.PointRedemptionAllocation{
		{ID: uuid.New(), RedemptionID: redemptionID, CreditTransactionID: uuid.New(), Amount: 300},
		{ID: uuid.New(), RedemptionID: redemptionID, CreditTransactionID: uuid.New(), Amount: 100},
	}
	require.NoError(t, repo.InsertAllocations(ctx, allocs))

	rows, err := repo.AllocationsForRedemption(ctx, redemptionID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(400), rows[0].Amount+rows[1].Amount)
}
