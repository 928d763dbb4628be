package payouts

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/launchthatbrand/portal-api/internal/credit"
	"github.com/launchthatbrand/portal-api/internal/payments"
	"github.com/launchthatbrand/portal-api/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.CreditEntry{}, &models.Referral{},
		&models.PayoutPreference{}, &models.PayoutAccount{},
		&models.PayoutRun{}, &models.PayoutTransfer{},
	))
	return db
}

func newTestRunner(t *testing.T) (*Runner, *gorm.DB, *payments.FakeClient) {
	t.Helper()
	db := openTestDB(t)
	fake := payments.NewFakeClient()
	runner := NewRunner(db, fake, credit.NewService(db), nil)
	return runner, db, fake
}

func seedAffiliate(t *testing.T, db *gorm.DB, userID uint, balanceCents, minPayoutCents int64, policy string, withAccount bool) {
	t.Helper()
	require.NoError(t, db.Create(&models.PayoutPreference{
		UserID:         userID,
		Currency:       "USD",
		MinPayoutCents: minPayoutCents,
		Policy:         policy,
	}).Error)
	if balanceCents != 0 {
		require.NoError(t, db.Create(&models.CreditEntry{
			UserID: userID, Currency: "USD", AmountCents: balanceCents,
			Kind: models.CreditKindCommission,
		}).Error)
	}
	if withAccount {
		require.NoError(t, db.Create(&models.PayoutAccount{
			UserID:           userID,
			Provider:         DefaultProvider,
			ConnectAccountID: fmt.Sprintf("acct_%d", userID),
			Status:           models.PayoutAccountActive,
		}).Error)
	}
}

func baseArgs(dryRun bool) RunArgs {
	return RunArgs{PeriodStart: 1_000, PeriodEnd: 2_000, DryRun: dryRun}
}

func TestRunMonthlyPaysEligibleAffiliate(t *testing.T) {
	runner, db, fake := newTestRunner(t)
	seedAffiliate(t, db, 1, 5000, 0, models.PayoutPolicyCashOnly, true)

	res, err := runner.RunMonthly(context.Background(), baseArgs(false))
	require.NoError(t, err)

	assert.Equal(t, 1, res.ProcessedUsers)
	assert.Equal(t, int64(5000), res.TotalCashCents)
	assert.Zero(t, res.TotalSubscriptionCreditCents)
	assert.Empty(t, res.Errors)
	require.NotNil(t, res.RunID)

	var run models.PayoutRun
	require.NoError(t, db.First(&run, *res.RunID).Error)
	assert.Equal(t, models.PayoutRunCompleted, run.Status)

	var transfer models.PayoutTransfer
	require.NoError(t, db.Where("run_id = ?", run.ID).First(&transfer).Error)
	assert.Equal(t, models.PayoutTransferSent, transfer.Status)
	assert.NotEmpty(t, transfer.ExternalTransferID)

	require.Len(t, fake.Transfers, 1)
	assert.Equal(t, int64(5000), fake.Transfers[0].AmountCents)

	balance, err := credit.NewService(db).Balance(1, "USD")
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestRunMonthlySkipsIneligibleAffiliates(t *testing.T) {
	runner, db, _ := newTestRunner(t)
	seedAffiliate(t, db, 1, 0, 0, models.PayoutPolicyCashOnly, true)       // zero balance
	seedAffiliate(t, db, 2, 400, 500, models.PayoutPolicyCashOnly, true)   // below floor
	seedAffiliate(t, db, 3, 5000, 0, models.PayoutPolicyCashOnly, false)   // no account
	require.NoError(t, db.Create(&models.PayoutAccount{UserID: 4, Provider: DefaultProvider}).Error)
	seedAffiliate(t, db, 4, 5000, 0, models.PayoutPolicyCashOnly, false) // blank connect id

	res, err := runner.RunMonthly(context.Background(), baseArgs(false))
	require.NoError(t, err)

	assert.Zero(t, res.ProcessedUsers)
	assert.Empty(t, res.Errors, "skips are not errors")

	var transfers int64
	db.Model(&models.PayoutTransfer{}).Count(&transfers)
	assert.Zero(t, transfers)
}

func TestRunMonthlySubscriptionSplit(t *testing.T) {
	runner, db, fake := newTestRunner(t)
	seedAffiliate(t, db, 1, 10000, 0, models.PayoutPolicySubscriptionThen, true)
	fake.UpcomingDueCentsByUser[1] = 4000

	res, err := runner.RunMonthly(context.Background(), baseArgs(false))
	require.NoError(t, err)

	assert.Equal(t, int64(6000), res.TotalCashCents)
	assert.Equal(t, int64(4000), res.TotalSubscriptionCreditCents)
	require.Len(t, fake.Credits, 1)
	assert.Equal(t, int64(4000), fake.Credits[0].AmountCents)
	require.Len(t, fake.Transfers, 1)
	assert.Equal(t, int64(6000), fake.Transfers[0].AmountCents)
}

func TestRunMonthlySubscriptionSplitCapsAtBalance(t *testing.T) {
	runner, db, fake := newTestRunner(t)
	seedAffiliate(t, db, 1, 3000, 0, models.PayoutPolicySubscriptionThen, true)
	fake.UpcomingDueCentsByUser[1] = 9000 // due exceeds balance

	res, err := runner.RunMonthly(context.Background(), baseArgs(false))
	require.NoError(t, err)

	assert.Zero(t, res.TotalCashCents)
	assert.Equal(t, int64(3000), res.TotalSubscriptionCreditCents)
	assert.Empty(t, fake.Transfers, "no cash remainder to transfer")
}

func TestRunMonthlyDryRunComputesTotalsWithoutWrites(t *testing.T) {
	runner, db, fake := newTestRunner(t)
	seedAffiliate(t, db, 1, 5000, 0, models.PayoutPolicyCashOnly, true)
	seedAffiliate(t, db, 2, 7000, 0, models.PayoutPolicySubscriptionThen, true)
	fake.UpcomingDueCentsByUser[2] = 2000

	dry, err := runner.RunMonthly(context.Background(), baseArgs(true))
	require.NoError(t, err)

	assert.Nil(t, dry.RunID)
	assert.Equal(t, 2, dry.ProcessedUsers)
	assert.Equal(t, int64(10000), dry.TotalCashCents)
	assert.Equal(t, int64(2000), dry.TotalSubscriptionCreditCents)

	var runs, transfers, debits int64
	db.Model(&models.PayoutRun{}).Count(&runs)
	db.Model(&models.PayoutTransfer{}).Count(&transfers)
	db.Model(&models.CreditEntry{}).Where("amount_cents < 0").Count(&debits)
	assert.Zero(t, runs)
	assert.Zero(t, transfers)
	assert.Zero(t, debits)
	assert.Empty(t, fake.Transfers)
	assert.Empty(t, fake.Credits)

	// A real run over the same fixtures reports identical totals.
	real, err := runner.RunMonthly(context.Background(), baseArgs(false))
	require.NoError(t, err)
	assert.Equal(t, dry.ProcessedUsers, real.ProcessedUsers)
	assert.Equal(t, dry.TotalCashCents, real.TotalCashCents)
	assert.Equal(t, dry.TotalSubscriptionCreditCents, real.TotalSubscriptionCreditCents)
}

func TestRunMonthlyIsolatesPerAffiliateFailures(t *testing.T) {
	runner, db, fake := newTestRunner(t)
	// Affiliate 1 settles via subscription credit, affiliate 2 needs a cash
	// transfer which the provider refuses.
	seedAffiliate(t, db, 1, 3000, 0, models.PayoutPolicySubscriptionThen, true)
	fake.UpcomingDueCentsByUser[1] = 3000
	seedAffiliate(t, db, 2, 5000, 0, models.PayoutPolicyCashOnly, true)
	fake.FailCreateTransfer = true

	res, err := runner.RunMonthly(context.Background(), baseArgs(false))
	require.NoError(t, err)

	assert.Equal(t, 1, res.ProcessedUsers)
	assert.Equal(t, int64(3000), res.TotalSubscriptionCreditCents)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "userId=2")

	var run models.PayoutRun
	require.NoError(t, db.First(&run, *res.RunID).Error)
	assert.Equal(t, models.PayoutRunFailed, run.Status)
}

func TestRunMonthlyCrashBeforeConsumeNeverDoublePays(t *testing.T) {
	runner, db, fake := newTestRunner(t)
	creditSvc := credit.NewService(db)
	seedAffiliate(t, db, 1, 5000, 0, models.PayoutPolicyCashOnly, true)

	// First attempt fails after the pending transfer row is inserted but
	// before any credit is consumed.
	fake.FailCreateTransfer = true
	res, err := runner.RunMonthly(context.Background(), baseArgs(false))
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)

	var pending models.PayoutTransfer
	require.NoError(t, db.Where("status = ?", models.PayoutTransferPending).First(&pending).Error)

	balance, err := creditSvc.Balance(1, "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), balance, "failed settlement must leave the balance untouched")

	// Retry pays exactly once.
	fake.FailCreateTransfer = false
	res, err = runner.RunMonthly(context.Background(), baseArgs(false))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ProcessedUsers)
	assert.Empty(t, res.Errors)

	balance, err = creditSvc.Balance(1, "USD")
	require.NoError(t, err)
	assert.Zero(t, balance)

	var debits int64
	db.Model(&models.CreditEntry{}).Where("amount_cents < 0").Count(&debits)
	assert.Equal(t, int64(1), debits, "exactly one debit across both attempts")
	require.Len(t, fake.Transfers, 1)
}

func TestRunMonthlyRejectsInvalidPeriod(t *testing.T) {
	runner, _, _ := newTestRunner(t)
	_, err := runner.RunMonthly(context.Background(), RunArgs{PeriodStart: 10, PeriodEnd: 10})
	assert.Error(t, err)
}
