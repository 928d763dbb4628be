package payouts

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"github.com/launchthatbrand/portal-api/internal/apperr"
	"github.com/launchthatbrand/portal-api/internal/credit"
	"github.com/launchthatbrand/portal-api/internal/payments"
	"github.com/launchthatbrand/portal-api/models"
)

// OnboardingArgs describes an onboarding-link request for one user.
type OnboardingArgs struct {
	UserID             uint
	RefreshURL         string `json:"refreshUrl" binding:"required"`
	ReturnURL          string `json:"returnUrl" binding:"required"`
	Email              string `json:"email"`
	FullName           string `json:"fullName"`
	BusinessType       string `json:"businessType"`
	ProductDescription string `json:"productDescription"`
	WebsiteURL         string `json:"websiteUrl"`
	SupportEmail       string `json:"supportEmail"`
}

// OnboardingLink is the hosted-onboarding handoff returned to the client.
type OnboardingLink struct {
	URL              string `json:"url"`
	ConnectAccountID string `json:"connectAccountId"`
}

// EnsureOnboardingLink makes sure a local PayoutAccount row and an external
// connected account both exist, persisting the external id locally before it
// is used again, then requests a provider-hosted onboarding link.
func (r *Runner) EnsureOnboardingLink(ctx context.Context, args OnboardingArgs) (OnboardingLink, error) {
	if args.UserID == 0 {
		return OnboardingLink{}, apperr.Unauthorized()
	}
	if args.RefreshURL == "" || args.ReturnURL == "" {
		return OnboardingLink{}, apperr.Invalid("refreshUrl and returnUrl are required", nil)
	}

	var account models.PayoutAccount
	err := r.db.Where("user_id = ? AND provider = ?", args.UserID, DefaultProvider).First(&account).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return OnboardingLink{}, err
	}

	connectAccountID := strings.TrimSpace(account.ConnectAccountID)
	if connectAccountID == "" {
		connectAccountID, err = r.provider.CreateOrGetConnectAccount(ctx, payments.ConnectAccountArgs{
			UserID:             args.UserID,
			Email:              args.Email,
			FullName:           args.FullName,
			BusinessType:       args.BusinessType,
			ProductDescription: args.ProductDescription,
			WebsiteURL:         args.WebsiteURL,
			SupportEmail:       args.SupportEmail,
		})
		if err != nil {
			return OnboardingLink{}, err
		}
		if connectAccountID == "" {
			return OnboardingLink{}, apperr.Unavailable("stripe", errors.New("connect account creation returned no id"))
		}

		if account.ID == 0 {
			account = models.PayoutAccount{
				UserID:           args.UserID,
				Provider:         DefaultProvider,
				ConnectAccountID: connectAccountID,
				Status:           models.PayoutAccountPending,
			}
			if err := r.db.Create(&account).Error; err != nil {
				return OnboardingLink{}, err
			}
		} else {
			if err := r.db.Model(&account).Update("connect_account_id", connectAccountID).Error; err != nil {
				return OnboardingLink{}, err
			}
		}
	}

	url, err := r.provider.CreateOnboardingLink(ctx, connectAccountID, args.RefreshURL, args.ReturnURL)
	if err != nil {
		return OnboardingLink{}, err
	}
	return OnboardingLink{URL: url, ConnectAccountID: connectAccountID}, nil
}

// DisconnectResult reports which sides of the teardown succeeded.
type DisconnectResult struct {
	DeletedLocal  bool `json:"deletedLocal"`
	DeletedRemote bool `json:"deletedRemote"`
}

// Disconnect best-effort deletes the remote connected account, then removes
// the local row. A remote failure never blocks clearing the local record.
func (r *Runner) Disconnect(ctx context.Context, userID uint, deleteRemote bool) (DisconnectResult, error) {
	var res DisconnectResult

	var account models.PayoutAccount
	err := r.db.Where("user_id = ? AND provider = ?", userID, DefaultProvider).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return res, nil
	}
	if err != nil {
		return res, err
	}

	connectAccountID := strings.TrimSpace(account.ConnectAccountID)
	if deleteRemote && connectAccountID != "" {
		deleted, err := r.provider.DeleteConnectAccount(ctx, connectAccountID)
		if err != nil {
			slog.Warn("Remote connect account deletion failed, clearing local record anyway",
				"user_id", userID, "connect_account_id", connectAccountID, "error", err)
		} else {
			res.DeletedRemote = deleted
		}
	}

	del := r.db.Unscoped().Delete(&account)
	if del.Error != nil {
		return res, del.Error
	}
	res.DeletedLocal = del.RowsAffected > 0
	return res, nil
}

// ProcessWebhook verifies and decodes a provider webhook and, for invoice
// payments, forwards the payment fact into the commission-recording path
// keyed on the provider's event id.
func (r *Runner) ProcessWebhook(_ context.Context, signature string, rawBody []byte) (handled bool, err error) {
	ev, err := r.provider.VerifyWebhook(signature, rawBody)
	if err != nil {
		return false, err
	}

	if ev.Kind != "invoice.paid" {
		return false, nil
	}
	if ev.UserID == 0 || ev.AmountCents <= 0 || ev.Currency == "" || ev.EventID == "" {
		slog.Warn("Ignoring invoice.paid webhook with incomplete payment fields",
			"event_id", ev.EventID, "user_id", ev.UserID)
		return false, nil
	}

	_, err = r.credit.RecordCommissionablePayment(credit.CommissionArgs{
		Source:          DefaultProvider,
		Kind:            "subscription_invoice_paid",
		ExternalEventID: ev.EventID,
		ReferredUserID:  ev.UserID,
		AmountCents:     ev.AmountCents,
		Currency:        ev.Currency,
		OccurredAt:      ev.OccurredAt,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
