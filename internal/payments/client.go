// Package payments isolates every remote payment-provider operation the
// portal consumes behind a statically-typed interface, implemented by the
// real Stripe client or by an in-memory fake for tests and local development.
package payments

import "context"

// ConnectAccountArgs describes the payee when creating a connected account.
type ConnectAccountArgs struct {
	UserID             uint
	Email              string
	FullName           string
	BusinessType       string // "individual" or "company"
	ProductDescription string
	WebsiteURL         string
	SupportEmail       string
}

// TransferArgs moves cash to a connected account.
type TransferArgs struct {
	ConnectAccountID string
	UserID           uint
	AmountCents      int64
	Currency         string
	RunID            string
}

// CreditArgs applies a balance credit against the payee's own subscription.
type CreditArgs struct {
	UserID      uint
	AmountCents int64
	Currency    string
	RunID       string
}

// WebhookEvent is the decoded, signature-verified provider event. Kind uses
// the provider's own event names ("invoice.paid" is the one the portal acts
// on); EventID is the provider-unique id used as the idempotency key.
type WebhookEvent struct {
	EventID     string
	Kind        string
	UserID      uint
	AmountCents int64
	Currency    string
	OccurredAt  int64 // unix ms
}

// Client is the full set of remote operations the payout flows consume.
type Client interface {
	// CreateOrGetConnectAccount returns the payee's connected-account id,
	// creating the account when none exists yet.
	CreateOrGetConnectAccount(ctx context.Context, args ConnectAccountArgs) (string, error)

	// CreateOnboardingLink requests a provider-hosted onboarding URL.
	CreateOnboardingLink(ctx context.Context, connectAccountID, refreshURL, returnURL string) (string, error)

	// CreateTransfer sends cash to a connected account and returns the
	// external transfer id.
	CreateTransfer(ctx context.Context, args TransferArgs) (string, error)

	// ApplyCustomerBalanceCredit credits the payee's subscription balance and
	// returns the external balance-transaction id.
	ApplyCustomerBalanceCredit(ctx context.Context, args CreditArgs) (string, error)

	// GetUpcomingSubscriptionDueCents reports the payee's next subscription
	// amount due, zero when they have no upcoming invoice.
	GetUpcomingSubscriptionDueCents(ctx context.Context, userID uint, currency string) (int64, error)

	// DeleteConnectAccount removes the remote connected account. Best-effort
	// callers may ignore the error.
	DeleteConnectAccount(ctx context.Context, connectAccountID string) (bool, error)

	// VerifyWebhook checks the provider signature over the raw payload and
	// decodes the event. A signature failure is an error, never a silent skip.
	VerifyWebhook(signature string, rawBody []byte) (WebhookEvent, error)
}
