// Package credit owns the affiliate credit ledger. Balances are never stored
// as a counter; they are the sum of append-only entries, which is what makes
// the payout idempotency guarantees checkable.
package credit

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"github.com/launchthatbrand/portal-api/models"
)

// Service runs ledger operations against the portal database.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Balance sums the affiliate's ledger for one currency.
func (s *Service) Balance(userID uint, currency string) (int64, error) {
	var balance int64
	err := s.db.Model(&models.CreditEntry{}).
		Where("user_id = ? AND currency = ?", userID, strings.ToUpper(currency)).
		Select("COALESCE(SUM(amount_cents), 0)").
		Row().Scan(&balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// CommissionArgs carries one commissionable payment fact, typically decoded
// from a provider webhook.
type CommissionArgs struct {
	Source          string
	Kind            string
	ExternalEventID string
	ReferredUserID  uint
	AmountCents     int64
	Currency        string
	OccurredAt      int64
}

// RecordCommissionablePayment appends a commission entry for the affiliate
// who referred the payer. The provider event id is the idempotency key:
// replays of the same event insert nothing and return false. Payments by
// users without a referral are ignored.
func (s *Service) RecordCommissionablePayment(args CommissionArgs) (bool, error) {
	if args.ExternalEventID == "" {
		return false, fmt.Errorf("credit: commission requires an external event id")
	}
	if args.AmountCents <= 0 {
		return false, nil
	}

	var referral models.Referral
	err := s.db.Where("referred_user_id = ? AND status = ?", args.ReferredUserID, "active").
		First(&referral).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	commissionCents := args.AmountCents * referral.RateBps / 10000
	if commissionCents <= 0 {
		return false, nil
	}

	eventID := args.ExternalEventID
	entry := models.CreditEntry{
		UserID:          referral.AffiliateUserID,
		Currency:        strings.ToUpper(args.Currency),
		AmountCents:     commissionCents,
		Kind:            models.CreditKindCommission,
		Source:          fmt.Sprintf("%s:%s", args.Source, args.Kind),
		ExternalEventID: &eventID,
		OccurredAt:      args.OccurredAt,
	}

	if err := s.db.Create(&entry).Error; err != nil {
		if isUniqueViolation(err) {
			slog.Info("Commission event already recorded, skipping",
				"external_event_id", args.ExternalEventID)
			return false, nil
		}
		return false, err
	}

	slog.Info("Commission recorded",
		"affiliate_user_id", referral.AffiliateUserID,
		"referred_user_id", args.ReferredUserID,
		"commission_cents", commissionCents,
		"external_event_id", args.ExternalEventID)
	return true, nil
}

// ConsumeArgs debits an affiliate after an external settlement succeeded.
type ConsumeArgs struct {
	UserID                  uint
	RunID                   uint
	CashCents               int64
	SubscriptionCreditCents int64
	Currency                string
	Source                  string
}

// ConsumeForPayout appends the negative settlement entry. The (run, user)
// consume key is unique, so a retried batch that already debited this
// settlement inserts nothing and reports false instead of double-paying.
func (s *Service) ConsumeForPayout(args ConsumeArgs) (bool, error) {
	total := args.CashCents + args.SubscriptionCreditCents
	if total <= 0 {
		return false, nil
	}

	runID := args.RunID
	consumeKey := fmt.Sprintf("%d:%d", args.RunID, args.UserID)
	entry := models.CreditEntry{
		UserID:      args.UserID,
		Currency:    strings.ToUpper(args.Currency),
		AmountCents: -total,
		Kind:        models.CreditKindPayoutConsume,
		Source:      args.Source,
		RunID:       &runID,
		ConsumeKey:  &consumeKey,
	}

	if err := s.db.Create(&entry).Error; err != nil {
		if isUniqueViolation(err) {
			slog.Warn("Payout already consumed for this run, skipping debit",
				"user_id", args.UserID, "run_id", args.RunID)
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// isUniqueViolation matches the duplicate-key errors of both the postgres
// and the sqlite (test) drivers.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
