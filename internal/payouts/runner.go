// Package payouts sequences the affiliate settlement flows: the monthly
// reconciliation batch, connected-account onboarding, and provider webhook
// ingestion.
package payouts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/launchthatbrand/portal-api/internal/apperr"
	"github.com/launchthatbrand/portal-api/internal/credit"
	"github.com/launchthatbrand/portal-api/internal/notify"
	"github.com/launchthatbrand/portal-api/internal/payments"
	"github.com/launchthatbrand/portal-api/models"
)

const DefaultProvider = "stripe"

// Runner executes payout flows against the database, the external payment
// provider, and the internal credit ledger. All dependencies are injected so
// tests can swap the provider for a fake.
type Runner struct {
	db       *gorm.DB
	provider payments.Client
	credit   *credit.Service
	notifier *notify.Service
}

// NewRunner wires a payout runner. notifier may be nil; settlement
// notifications are then skipped.
func NewRunner(db *gorm.DB, provider payments.Client, creditSvc *credit.Service, notifier *notify.Service) *Runner {
	return &Runner{db: db, provider: provider, credit: creditSvc, notifier: notifier}
}

// RunArgs identifies one reconciliation batch.
type RunArgs struct {
	Provider    string `json:"provider"`
	PeriodStart int64  `json:"periodStart" binding:"required"`
	PeriodEnd   int64  `json:"periodEnd" binding:"required"`
	DryRun      bool   `json:"dryRun"`
}

// RunResult aggregates a batch. Errors holds one string per failed affiliate;
// a non-empty list marks the run failed even though other affiliates were
// paid.
type RunResult struct {
	RunID                        *uint    `json:"runId"`
	ProcessedUsers               int      `json:"processedUsers"`
	TotalCashCents               int64    `json:"totalCashCents"`
	TotalSubscriptionCreditCents int64    `json:"totalSubscriptionCreditCents"`
	Errors                       []string `json:"errors"`
}

// RunMonthly processes every affiliate with a stored payout preference and
// attempts to settle their accrued credit balance as cash and/or subscription
// credit. Affiliates are processed strictly sequentially; a failure in one
// settlement is recorded and never aborts the batch.
func (r *Runner) RunMonthly(ctx context.Context, args RunArgs) (RunResult, error) {
	provider := strings.TrimSpace(args.Provider)
	if provider == "" {
		provider = DefaultProvider
	}
	if args.PeriodEnd <= args.PeriodStart {
		return RunResult{}, apperr.Invalid("Invalid payout period", map[string]any{
			"periodStart": args.PeriodStart,
			"periodEnd":   args.PeriodEnd,
		})
	}

	result := RunResult{Errors: []string{}}

	var run *models.PayoutRun
	if !args.DryRun {
		run = &models.PayoutRun{
			Provider:    provider,
			PeriodStart: args.PeriodStart,
			PeriodEnd:   args.PeriodEnd,
			Status:      models.PayoutRunRunning,
		}
		if err := r.db.Create(run).Error; err != nil {
			return result, err
		}
		result.RunID = &run.ID
	}

	var prefs []models.PayoutPreference
	if err := r.db.Order("id asc").Find(&prefs).Error; err != nil {
		return result, err
	}

	for _, pref := range prefs {
		cash, subCredit, err := r.settleAffiliate(ctx, provider, run, pref, args.DryRun)
		if err != nil {
			if errors.Is(err, errSkipped) {
				continue
			}
			msg := fmt.Sprintf("userId=%d: %v", pref.UserID, err)
			slog.Error("Affiliate settlement failed", "user_id", pref.UserID, "error", err)
			result.Errors = append(result.Errors, msg)
			continue
		}
		result.ProcessedUsers++
		result.TotalCashCents += cash
		result.TotalSubscriptionCreditCents += subCredit
	}

	if !args.DryRun && run != nil {
		status := models.PayoutRunCompleted
		if len(result.Errors) > 0 {
			// "failed" records that the batch had at least one error, not
			// that nothing was paid.
			status = models.PayoutRunFailed
		}
		if err := r.db.Model(run).Update("status", status).Error; err != nil {
			return result, err
		}
	}

	slog.Info("Payout batch finished",
		"provider", provider,
		"dry_run", args.DryRun,
		"processed_users", result.ProcessedUsers,
		"total_cash_cents", result.TotalCashCents,
		"total_subscription_credit_cents", result.TotalSubscriptionCreditCents,
		"error_count", len(result.Errors))
	return result, nil
}

// errSkipped marks affiliates that are simply not eligible this period.
var errSkipped = errors.New("skipped")

// settleAffiliate runs the per-affiliate state machine. Each step is gated on
// the previous one succeeding; the affiliate's internal credit is only
// debited after every external operation has completed.
func (r *Runner) settleAffiliate(ctx context.Context, provider string, run *models.PayoutRun, pref models.PayoutPreference, dryRun bool) (int64, int64, error) {
	currency := strings.ToUpper(pref.Currency)
	if currency == "" {
		currency = "USD"
	}

	// Eligibility.
	balanceCents, err := r.credit.Balance(pref.UserID, currency)
	if err != nil {
		return 0, 0, err
	}
	if balanceCents <= 0 || balanceCents < pref.MinPayoutCents {
		return 0, 0, errSkipped
	}

	// Destination: skip silently until onboarding has completed.
	var account models.PayoutAccount
	err = r.db.Where("user_id = ? AND provider = ?", pref.UserID, provider).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, 0, errSkipped
	}
	if err != nil {
		return 0, 0, err
	}
	connectAccountID := strings.TrimSpace(account.ConnectAccountID)
	if connectAccountID == "" {
		return 0, 0, errSkipped
	}

	// Split computation.
	var subscriptionCreditCents int64
	cashCents := balanceCents
	if pref.Policy == models.PayoutPolicySubscriptionThen {
		dueCents, err := r.provider.GetUpcomingSubscriptionDueCents(ctx, pref.UserID, currency)
		if err != nil {
			return 0, 0, err
		}
		subscriptionCreditCents = min64(balanceCents, clampCents(dueCents))
		cashCents = balanceCents - subscriptionCreditCents
	}

	// Dry run: report totals, write nothing.
	if dryRun {
		return cashCents, subscriptionCreditCents, nil
	}

	// Record intent before any external call so a crash past this point
	// leaves an auditable pending row with the balance still intact.
	transfer := models.PayoutTransfer{
		RunID:                   run.ID,
		UserID:                  pref.UserID,
		Currency:                currency,
		CashCents:               cashCents,
		SubscriptionCreditCents: subscriptionCreditCents,
		Status:                  models.PayoutTransferPending,
	}
	if err := r.db.Create(&transfer).Error; err != nil {
		return 0, 0, err
	}

	runKey := strconv.FormatUint(uint64(run.ID), 10)

	var externalBalanceTxnID, externalTransferID string
	if subscriptionCreditCents > 0 {
		externalBalanceTxnID, err = r.provider.ApplyCustomerBalanceCredit(ctx, payments.CreditArgs{
			UserID:      pref.UserID,
			AmountCents: subscriptionCreditCents,
			Currency:    currency,
			RunID:       runKey,
		})
		if err != nil {
			return 0, 0, err
		}
	}
	if cashCents > 0 {
		externalTransferID, err = r.provider.CreateTransfer(ctx, payments.TransferArgs{
			ConnectAccountID: connectAccountID,
			UserID:           pref.UserID,
			AmountCents:      cashCents,
			Currency:         currency,
			RunID:            runKey,
		})
		if err != nil {
			return 0, 0, err
		}
	}

	// Consume internal credit only after the external operations succeeded.
	if _, err := r.credit.ConsumeForPayout(credit.ConsumeArgs{
		UserID:                  pref.UserID,
		RunID:                   run.ID,
		CashCents:               cashCents,
		SubscriptionCreditCents: subscriptionCreditCents,
		Currency:                currency,
		Source:                  "ecommerce:" + provider,
	}); err != nil {
		return 0, 0, err
	}

	if err := r.db.Model(&transfer).Updates(map[string]any{
		"status":                  models.PayoutTransferSent,
		"external_transfer_id":    externalTransferID,
		"external_balance_txn_id": externalBalanceTxnID,
	}).Error; err != nil {
		return 0, 0, err
	}

	// Settlement notifications sit outside the settlement itself: a failure
	// here must not mark a paid affiliate as failed.
	if r.notifier != nil {
		if _, err := r.notifier.Create(notify.CreateArgs{
			UserID:  pref.UserID,
			Type:    models.NotificationTypePaymentSuccess,
			Title:   "Affiliate payout sent",
			Content: fmt.Sprintf("Your payout of %s %.2f is on its way.", currency, float64(cashCents+subscriptionCreditCents)/100),
		}); err != nil {
			slog.Warn("Payout notification failed", "user_id", pref.UserID, "error", err)
		}
	}

	return cashCents, subscriptionCreditCents, nil
}

func clampCents(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
