package payments

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// FakeClient is the in-memory Client used by tests and by local development
// when no Stripe secret is configured. Every call is recorded; failure modes
// are injectable per method.
type FakeClient struct {
	mu sync.Mutex

	// UpcomingDueCentsByUser feeds GetUpcomingSubscriptionDueCents.
	UpcomingDueCentsByUser map[uint]int64

	// Fail* inject an error return for the matching method.
	FailCreateTransfer bool
	FailApplyCredit    bool
	FailDueLookup      bool
	FailDeleteAccount  bool

	// Recorded calls, in order.
	Transfers []TransferArgs
	Credits   []CreditArgs
	Accounts  map[uint]string
	Deleted   []string

	// PreparedWebhook is returned by VerifyWebhook unless WebhookErr is set.
	PreparedWebhook WebhookEvent
	WebhookErr      error
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		UpcomingDueCentsByUser: make(map[uint]int64),
		Accounts:               make(map[uint]string),
	}
}

func (f *FakeClient) CreateOrGetConnectAccount(_ context.Context, args ConnectAccountArgs) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.Accounts[args.UserID]; ok {
		return id, nil
	}
	id := "acct_" + uuid.NewString()
	f.Accounts[args.UserID] = id
	return id, nil
}

func (f *FakeClient) CreateOnboardingLink(_ context.Context, connectAccountID, _, _ string) (string, error) {
	return "https://connect.example.test/onboarding/" + connectAccountID, nil
}

func (f *FakeClient) CreateTransfer(_ context.Context, args TransferArgs) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreateTransfer {
		return "", fmt.Errorf("fake: transfer refused")
	}
	f.Transfers = append(f.Transfers, args)
	return "tr_" + uuid.NewString(), nil
}

func (f *FakeClient) ApplyCustomerBalanceCredit(_ context.Context, args CreditArgs) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailApplyCredit {
		return "", fmt.Errorf("fake: balance credit refused")
	}
	f.Credits = append(f.Credits, args)
	return "cbtxn_" + uuid.NewString(), nil
}

func (f *FakeClient) GetUpcomingSubscriptionDueCents(_ context.Context, userID uint, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailDueLookup {
		return 0, fmt.Errorf("fake: upcoming invoice lookup refused")
	}
	return f.UpcomingDueCentsByUser[userID], nil
}

func (f *FakeClient) DeleteConnectAccount(_ context.Context, connectAccountID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailDeleteAccount {
		return false, fmt.Errorf("fake: account deletion refused")
	}
	f.Deleted = append(f.Deleted, connectAccountID)
	return true, nil
}

func (f *FakeClient) VerifyWebhook(_ string, _ []byte) (WebhookEvent, error) {
	if f.WebhookErr != nil {
		return WebhookEvent{}, f.WebhookErr
	}
	return f.PreparedWebhook, nil
}
