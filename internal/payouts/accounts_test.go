package payouts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchthatbrand/portal-api/internal/apperr"
	"github.com/launchthatbrand/portal-api/internal/payments"
	"github.com/launchthatbrand/portal-api/models"
)

func TestEnsureOnboardingLinkCreatesAccountOnFirstCall(t *testing.T) {
	runner, db, fake := newTestRunner(t)

	link, err := runner.EnsureOnboardingLink(context.Background(), OnboardingArgs{
		UserID:     7,
		RefreshURL: "https://app.example.test/payouts/refresh",
		ReturnURL:  "https://app.example.test/payouts/return",
		Email:      "affiliate@example.test",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, link.URL)
	assert.NotEmpty(t, link.ConnectAccountID)

	// External id is persisted locally before it is handed out.
	var account models.PayoutAccount
	require.NoError(t, db.Where("user_id = ?", 7).First(&account).Error)
	assert.Equal(t, link.ConnectAccountID, account.ConnectAccountID)
	assert.Equal(t, models.PayoutAccountPending, account.Status)
	assert.Equal(t, link.ConnectAccountID, fake.Accounts[7])
}

func TestEnsureOnboardingLinkReusesStoredAccount(t *testing.T) {
	runner, db, fake := newTestRunner(t)
	require.NoError(t, db.Create(&models.PayoutAccount{
		UserID: 7, Provider: DefaultProvider,
		ConnectAccountID: "acct_existing", Status: models.PayoutAccountActive,
	}).Error)

	link, err := runner.EnsureOnboardingLink(context.Background(), OnboardingArgs{
		UserID:     7,
		RefreshURL: "https://app.example.test/r",
		ReturnURL:  "https://app.example.test/x",
	})
	require.NoError(t, err)
	assert.Equal(t, "acct_existing", link.ConnectAccountID)
	assert.Empty(t, fake.Accounts, "no new remote account is created")
}

func TestEnsureOnboardingLinkValidatesInput(t *testing.T) {
	runner, _, _ := newTestRunner(t)

	_, err := runner.EnsureOnboardingLink(context.Background(), OnboardingArgs{
		RefreshURL: "https://a", ReturnURL: "https://b",
	})
	assert.Equal(t, apperr.CodeUnauthorized, apperr.GetCode(err))

	_, err = runner.EnsureOnboardingLink(context.Background(), OnboardingArgs{UserID: 1})
	assert.Equal(t, apperr.CodeInvalidInput, apperr.GetCode(err))
}

func TestDisconnectRemovesLocalAndRemote(t *testing.T) {
	runner, db, fake := newTestRunner(t)
	require.NoError(t, db.Create(&models.PayoutAccount{
		UserID: 7, Provider: DefaultProvider, ConnectAccountID: "acct_x",
	}).Error)

	res, err := runner.Disconnect(context.Background(), 7, true)
	require.NoError(t, err)
	assert.True(t, res.DeletedLocal)
	assert.True(t, res.DeletedRemote)
	assert.Equal(t, []string{"acct_x"}, fake.Deleted)

	var count int64
	db.Model(&models.PayoutAccount{}).Where("user_id = ?", 7).Count(&count)
	assert.Zero(t, count)
}

func TestDisconnectClearsLocalWhenRemoteFails(t *testing.T) {
	runner, db, fake := newTestRunner(t)
	require.NoError(t, db.Create(&models.PayoutAccount{
		UserID: 7, Provider: DefaultProvider, ConnectAccountID: "acct_x",
	}).Error)
	fake.FailDeleteAccount = true

	res, err := runner.Disconnect(context.Background(), 7, true)
	require.NoError(t, err)
	assert.True(t, res.DeletedLocal)
	assert.False(t, res.DeletedRemote)
}

func TestDisconnectWithoutAccountIsNoop(t *testing.T) {
	runner, _, _ := newTestRunner(t)
	res, err := runner.Disconnect(context.Background(), 99, true)
	require.NoError(t, err)
	assert.False(t, res.DeletedLocal)
	assert.False(t, res.DeletedRemote)
}

func TestProcessWebhookRecordsCommission(t *testing.T) {
	runner, db, fake := newTestRunner(t)
	require.NoError(t, db.Create(&models.Referral{
		AffiliateUserID: 1, ReferredUserID: 2, RateBps: 3000, Status: "active",
	}).Error)
	fake.PreparedWebhook = payments.WebhookEvent{
		EventID:     "evt_1",
		Kind:        "invoice.paid",
		UserID:      2,
		AmountCents: 10000,
		Currency:    "USD",
		OccurredAt:  1_700_000_000_000,
	}

	handled, err := runner.ProcessWebhook(context.Background(), "sig", []byte("{}"))
	require.NoError(t, err)
	assert.True(t, handled)

	var entry models.CreditEntry
	require.NoError(t, db.Where("external_event_id = ?", "evt_1").First(&entry).Error)
	assert.Equal(t, uint(1), entry.UserID)
	assert.Equal(t, int64(3000), entry.AmountCents)

	// Replaying the same event id must not accrue again.
	handled, err = runner.ProcessWebhook(context.Background(), "sig", []byte("{}"))
	require.NoError(t, err)
	assert.True(t, handled)
	var count int64
	db.Model(&models.CreditEntry{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestProcessWebhookIgnoresOtherEventKinds(t *testing.T) {
	runner, db, fake := newTestRunner(t)
	fake.PreparedWebhook = payments.WebhookEvent{EventID: "evt_2", Kind: "customer.created"}

	handled, err := runner.ProcessWebhook(context.Background(), "sig", []byte("{}"))
	require.NoError(t, err)
	assert.False(t, handled)

	var count int64
	db.Model(&models.CreditEntry{}).Count(&count)
	assert.Zero(t, count)
}

func TestProcessWebhookRejectsBadSignature(t *testing.T) {
	runner, _, fake := newTestRunner(t)
	fake.WebhookErr = apperr.Invalid("Invalid webhook signature", nil)

	handled, err := runner.ProcessWebhook(context.Background(), "sig", []byte("{}"))
	assert.False(t, handled)
	assert.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidInput, apperr.GetCode(err))
}
