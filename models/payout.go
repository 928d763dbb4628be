package models

import "gorm.io/gorm"

// Payout policies. apply_to_subscription_then_payout first applies as much of
// the balance as possible to the affiliate's upcoming subscription invoice and
// only pays out the remainder as cash.
const (
	PayoutPolicyCashOnly         = "payout_only"
	PayoutPolicySubscriptionThen = "apply_to_subscription_then_payout"
)

// PayoutPreference marks a user as an opted-in affiliate and carries their
// settlement configuration.
type PayoutPreference struct {
	gorm.Model
	UserID         uint   `json:"userId" gorm:"uniqueIndex;not null"`
	Currency       string `json:"currency" gorm:"type:varchar(3);default:'USD'"`
	MinPayoutCents int64  `json:"minPayoutCents"`
	Policy         string `json:"policy" gorm:"type:varchar(50);default:'payout_only'"`
}

// PayoutAccount statuses.
const (
	PayoutAccountPending = "pending"
	PayoutAccountActive  = "active"
)

// PayoutAccount holds the external connected-account id for one (user,
// provider) pair. Created lazily on first onboarding request; a blank
// ConnectAccountID means onboarding is incomplete.
type PayoutAccount struct {
	gorm.Model
	UserID           uint   `json:"userId" gorm:"index:idx_payout_user_provider,unique;not null"`
	Provider         string `json:"provider" gorm:"index:idx_payout_user_provider,unique;type:varchar(30);not null"`
	ConnectAccountID string `json:"connectAccountId"`
	Status           string `json:"status" gorm:"type:varchar(20);default:'pending'"`
}

// PayoutRun statuses.
const (
	PayoutRunRunning   = "running"
	PayoutRunCompleted = "completed"
	PayoutRunFailed    = "failed"
)

// PayoutRun is one reconciliation batch over a settlement period. Created at
// batch start and patched to a terminal status at batch end; dry runs create
// no row at all. Status "failed" means the batch recorded at least one
// per-affiliate error, not that nothing was paid.
type PayoutRun struct {
	gorm.Model
	Provider    string `json:"provider" gorm:"type:varchar(30);not null"`
	PeriodStart int64  `json:"periodStart" gorm:"not null"`
	PeriodEnd   int64  `json:"periodEnd" gorm:"not null"`
	Status      string `json:"status" gorm:"type:varchar(20);not null"`
}

// PayoutTransfer statuses.
const (
	PayoutTransferPending = "pending"
	PayoutTransferSent    = "sent"
)

// PayoutTransfer is one affiliate's settlement inside a run. The row is
// inserted pending before any external payment call so a mid-batch crash
// leaves an auditable trail; it is only patched to sent after every external
// operation it records has succeeded.
type PayoutTransfer struct {
	gorm.Model
	RunID                   uint   `json:"runId" gorm:"index;not null"`
	UserID                  uint   `json:"userId" gorm:"index;not null"`
	Currency                string `json:"currency" gorm:"type:varchar(3);not null"`
	CashCents               int64  `json:"cashCents"`
	SubscriptionCreditCents int64  `json:"subscriptionCreditCents"`
	Status                  string `json:"status" gorm:"type:varchar(20);default:'pending'"`
	ExternalTransferID      string `json:"externalTransferId,omitempty"`
	ExternalBalanceTxnID    string `json:"externalBalanceTxnId,omitempty"`
}
