package models

import "gorm.io/gorm"

// Credit entry kinds.
const (
	CreditKindCommission    = "commission"
	CreditKindPayoutConsume = "payout_consume"
	CreditKindAdjustment    = "adjustment"
)

// CreditEntry is one row of the affiliate credit ledger. The balance owed to
// an affiliate is the sum of AmountCents over their entries; commissions are
// positive, payout consumption negative. The ledger is append-only.
//
// ExternalEventID carries the payment provider's event id for commission
// entries and makes webhook replays no-ops. ConsumeKey is "<runID>:<userID>"
// for payout_consume entries so a retried batch can never debit the same
// settlement twice. Both are enforced with unique indexes.
type CreditEntry struct {
	gorm.Model
	UserID          uint    `json:"userId" gorm:"index;not null"`
	Currency        string  `json:"currency" gorm:"type:varchar(3);not null"`
	AmountCents     int64   `json:"amountCents" gorm:"not null"`
	Kind            string  `json:"kind" gorm:"type:varchar(30);not null"`
	Source          string  `json:"source"`
	RunID           *uint   `json:"runId,omitempty" gorm:"index"`
	ExternalEventID *string `json:"externalEventId,omitempty" gorm:"uniqueIndex"`
	ConsumeKey      *string `json:"-" gorm:"uniqueIndex"`
	OccurredAt      int64   `json:"occurredAt"`
}
