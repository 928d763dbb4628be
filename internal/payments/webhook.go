package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/launchthatbrand/portal-api/internal/apperr"
)

// VerifyWebhook validates a Stripe-Signature header ("t=...,v1=...") against
// the raw payload and decodes the event. The signed payload is
// "<timestamp>.<rawBody>" under HMAC-SHA256 with the webhook secret; any
// verification failure is reported loudly as invalid_input.
func (s *StripeClient) VerifyWebhook(signature string, rawBody []byte) (WebhookEvent, error) {
	ts, sigs, err := parseSignatureHeader(signature)
	if err != nil {
		return WebhookEvent{}, err
	}

	age := time.Since(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if s.tolerance > 0 && age > s.tolerance {
		return WebhookEvent{}, apperr.Invalid("Webhook signature timestamp outside tolerance", nil)
	}

	mac := hmac.New(sha256.New, []byte(s.webhookSecret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	expected := mac.Sum(nil)

	verified := false
	for _, sig := range sigs {
		got, decErr := hex.DecodeString(sig)
		if decErr == nil && hmac.Equal(got, expected) {
			verified = true
			break
		}
	}
	if !verified {
		return WebhookEvent{}, apperr.Invalid("Webhook signature verification failed", nil)
	}

	return decodeWebhookEvent(rawBody)
}

// parseSignatureHeader splits "t=<unix>,v1=<hex>[,v1=<hex>...]".
func parseSignatureHeader(header string) (int64, []string, error) {
	var ts int64
	var sigs []string

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			parsed, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, nil, apperr.Invalid("Malformed webhook signature timestamp", nil)
			}
			ts = parsed
		case "v1":
			sigs = append(sigs, kv[1])
		}
	}

	if ts == 0 || len(sigs) == 0 {
		return 0, nil, apperr.Invalid("Malformed webhook signature header", nil)
	}
	return ts, sigs, nil
}

// stripeEvent is the subset of the event envelope the portal reads.
type stripeEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object struct {
			AmountPaid int64  `json:"amount_paid"`
			Currency   string `json:"currency"`
			Metadata   struct {
				PortalUserID string `json:"portalUserId"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

func decodeWebhookEvent(rawBody []byte) (WebhookEvent, error) {
	var ev stripeEvent
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return WebhookEvent{}, apperr.Invalid("Malformed webhook payload", map[string]any{"cause": err.Error()})
	}
	if ev.ID == "" || ev.Type == "" {
		return WebhookEvent{}, apperr.Invalid("Webhook payload missing event id or type", nil)
	}

	out := WebhookEvent{
		EventID:     ev.ID,
		Kind:        ev.Type,
		AmountCents: ev.Data.Object.AmountPaid,
		Currency:    strings.ToUpper(ev.Data.Object.Currency),
		OccurredAt:  ev.Created * 1000,
	}
	if raw := ev.Data.Object.Metadata.PortalUserID; raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return WebhookEvent{}, apperr.Invalid(fmt.Sprintf("Invalid portalUserId %q in webhook metadata", raw), nil)
		}
		out.UserID = uint(id)
	}
	return out, nil
}
