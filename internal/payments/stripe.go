package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/launchthatbrand/portal-api/internal/apperr"
)

const stripeAPIBase = "https://api.stripe.com/v1"

// StripeClient is the production Client implementation over Stripe's REST
// API. Only the handful of endpoints the payout flows need are wrapped.
type StripeClient struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	httpClient    *http.Client

	// tolerance bounds the accepted age of a webhook signature timestamp.
	tolerance time.Duration
}

// NewStripeClient builds a client from the configured secrets. baseURL is
// overridable for tests.
func NewStripeClient(secretKey, webhookSecret, baseURL string) *StripeClient {
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	return &StripeClient{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		tolerance:     5 * time.Minute,
	}
}

func (s *StripeClient) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return apperr.Internal(err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return apperr.Unavailable("stripe", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Unavailable("stripe", err)
	}

	if resp.StatusCode >= 400 {
		var stripeErr struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(raw, &stripeErr)
		slog.Error("Stripe request failed",
			"method", method, "path", path,
			"status", resp.StatusCode, "stripe_error", stripeErr.Error.Message)
		return apperr.Unavailable("stripe",
			fmt.Errorf("stripe %s %s: %d %s", method, path, resp.StatusCode, stripeErr.Error.Message))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return apperr.Internal(err)
		}
	}
	return nil
}

func (s *StripeClient) CreateOrGetConnectAccount(ctx context.Context, args ConnectAccountArgs) (string, error) {
	userKey := strconv.FormatUint(uint64(args.UserID), 10)

	// Reuse an existing account tagged with this user id.
	var search struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	q := url.Values{"query": {fmt.Sprintf("metadata['portalUserId']:'%s'", userKey)}}
	if err := s.do(ctx, http.MethodGet, "/accounts/search?"+q.Encode(), nil, &search); err == nil && len(search.Data) > 0 {
		return search.Data[0].ID, nil
	}

	form := url.Values{
		"type":                     {"express"},
		"metadata[portalUserId]":   {userKey},
		"capabilities[transfers][requested]": {"true"},
	}
	if args.Email != "" {
		form.Set("email", args.Email)
	}
	if args.BusinessType == "individual" || args.BusinessType == "company" {
		form.Set("business_type", args.BusinessType)
	}
	if args.ProductDescription != "" {
		form.Set("business_profile[product_description]", args.ProductDescription)
	}
	if args.WebsiteURL != "" {
		form.Set("business_profile[url]", args.WebsiteURL)
	}
	if args.SupportEmail != "" {
		form.Set("business_profile[support_email]", args.SupportEmail)
	}

	var account struct {
		ID string `json:"id"`
	}
	if err := s.do(ctx, http.MethodPost, "/accounts", form, &account); err != nil {
		return "", err
	}
	if account.ID == "" {
		return "", apperr.Unavailable("stripe", fmt.Errorf("account creation returned no id"))
	}
	return account.ID, nil
}

func (s *StripeClient) CreateOnboardingLink(ctx context.Context, connectAccountID, refreshURL, returnURL string) (string, error) {
	form := url.Values{
		"account":     {connectAccountID},
		"refresh_url": {refreshURL},
		"return_url":  {returnURL},
		"type":        {"account_onboarding"},
	}
	var link struct {
		URL string `json:"url"`
	}
	if err := s.do(ctx, http.MethodPost, "/account_links", form, &link); err != nil {
		return "", err
	}
	if link.URL == "" {
		return "", apperr.Unavailable("stripe", fmt.Errorf("onboarding link returned no url"))
	}
	return link.URL, nil
}

func (s *StripeClient) CreateTransfer(ctx context.Context, args TransferArgs) (string, error) {
	form := url.Values{
		"amount":              {strconv.FormatInt(args.AmountCents, 10)},
		"currency":            {strings.ToLower(args.Currency)},
		"destination":         {args.ConnectAccountID},
		"metadata[runId]":     {args.RunID},
		"metadata[portalUserId]": {strconv.FormatUint(uint64(args.UserID), 10)},
	}
	var transfer struct {
		ID string `json:"id"`
	}
	if err := s.do(ctx, http.MethodPost, "/transfers", form, &transfer); err != nil {
		return "", err
	}
	return transfer.ID, nil
}

func (s *StripeClient) ApplyCustomerBalanceCredit(ctx context.Context, args CreditArgs) (string, error) {
	customerID, err := s.findCustomer(ctx, args.UserID)
	if err != nil {
		return "", err
	}

	// Negative amount credits the customer balance.
	form := url.Values{
		"amount":          {strconv.FormatInt(-args.AmountCents, 10)},
		"currency":        {strings.ToLower(args.Currency)},
		"metadata[runId]": {args.RunID},
	}
	var txn struct {
		ID string `json:"id"`
	}
	if err := s.do(ctx, http.MethodPost, "/customers/"+customerID+"/balance_transactions", form, &txn); err != nil {
		return "", err
	}
	return txn.ID, nil
}

func (s *StripeClient) GetUpcomingSubscriptionDueCents(ctx context.Context, userID uint, currency string) (int64, error) {
	customerID, err := s.findCustomer(ctx, userID)
	if err != nil {
		return 0, err
	}

	var invoice struct {
		AmountDue int64  `json:"amount_due"`
		Currency  string `json:"currency"`
	}
	q := url.Values{"customer": {customerID}}
	err = s.do(ctx, http.MethodGet, "/invoices/upcoming?"+q.Encode(), nil, &invoice)
	if err != nil {
		// No upcoming invoice is not a failure of the split computation.
		if apperr.GetCode(err) == apperr.CodeUnavailable && strings.Contains(err.Error(), "404") {
			return 0, nil
		}
		return 0, err
	}
	if currency != "" && !strings.EqualFold(invoice.Currency, currency) {
		return 0, nil
	}
	if invoice.AmountDue < 0 {
		return 0, nil
	}
	return invoice.AmountDue, nil
}

func (s *StripeClient) DeleteConnectAccount(ctx context.Context, connectAccountID string) (bool, error) {
	var res struct {
		Deleted bool `json:"deleted"`
	}
	if err := s.do(ctx, http.MethodDelete, "/accounts/"+connectAccountID, nil, &res); err != nil {
		return false, err
	}
	return res.Deleted, nil
}

func (s *StripeClient) findCustomer(ctx context.Context, userID uint) (string, error) {
	var search struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	q := url.Values{"query": {fmt.Sprintf("metadata['portalUserId']:'%d'", userID)}}
	if err := s.do(ctx, http.MethodGet, "/customers/search?"+q.Encode(), nil, &search); err != nil {
		return "", err
	}
	if len(search.Data) == 0 {
		return "", apperr.NotFound("stripe customer", userID)
	}
	return search.Data[0].ID, nil
}
