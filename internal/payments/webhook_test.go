package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchthatbrand/portal-api/internal/apperr"
)

const testWebhookSecret = "whsec_test"

func signPayload(t *testing.T, secret string, ts int64, body []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func invoicePaidBody(eventID string, userID uint, amountCents int64) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"type": "invoice.paid",
		"created": 1735689600,
		"data": {"object": {
			"amount_paid": %d,
			"currency": "usd",
			"metadata": {"portalUserId": "%d"}
		}}
	}`, eventID, amountCents, userID))
}

func TestVerifyWebhookAcceptsValidSignature(t *testing.T) {
	client := NewStripeClient("sk_test", testWebhookSecret, "")
	body := invoicePaidBody("evt_123", 42, 2500)
	header := signPayload(t, testWebhookSecret, time.Now().Unix(), body)

	ev, err := client.VerifyWebhook(header, body)
	require.NoError(t, err)
	assert.Equal(t, "evt_123", ev.EventID)
	assert.Equal(t, "invoice.paid", ev.Kind)
	assert.Equal(t, uint(42), ev.UserID)
	assert.Equal(t, int64(2500), ev.AmountCents)
	assert.Equal(t, "USD", ev.Currency)
	assert.Equal(t, int64(1735689600000), ev.OccurredAt)
}

func TestVerifyWebhookRejectsWrongSecret(t *testing.T) {
	client := NewStripeClient("sk_test", testWebhookSecret, "")
	body := invoicePaidBody("evt_123", 42, 2500)
	header := signPayload(t, "whsec_other", time.Now().Unix(), body)

	_, err := client.VerifyWebhook(header, body)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidInput, apperr.GetCode(err))
}

func TestVerifyWebhookRejectsTamperedBody(t *testing.T) {
	client := NewStripeClient("sk_test", testWebhookSecret, "")
	body := invoicePaidBody("evt_123", 42, 2500)
	header := signPayload(t, testWebhookSecret, time.Now().Unix(), body)

	tampered := invoicePaidBody("evt_123", 42, 9999)
	_, err := client.VerifyWebhook(header, tampered)
	assert.Error(t, err)
}

func TestVerifyWebhookRejectsStaleTimestamp(t *testing.T) {
	client := NewStripeClient("sk_test", testWebhookSecret, "")
	body := invoicePaidBody("evt_123", 42, 2500)
	header := signPayload(t, testWebhookSecret, time.Now().Add(-time.Hour).Unix(), body)

	_, err := client.VerifyWebhook(header, body)
	assert.Error(t, err)
}

func TestVerifyWebhookRejectsMalformedHeader(t *testing.T) {
	client := NewStripeClient("sk_test", testWebhookSecret, "")
	body := invoicePaidBody("evt_123", 42, 2500)

	for _, header := range []string{"", "v1=abc", "t=notanumber,v1=abc"} {
		_, err := client.VerifyWebhook(header, body)
		assert.Error(t, err, "header %q", header)
	}
}

func TestVerifyWebhookAcceptsSecondV1Signature(t *testing.T) {
	// Secret rotation sends multiple v1 entries; any one match passes.
	client := NewStripeClient("sk_test", testWebhookSecret, "")
	body := invoicePaidBody("evt_456", 7, 100)
	ts := time.Now().Unix()
	valid := signPayload(t, testWebhookSecret, ts, body)
	header := fmt.Sprintf("t=%d,v1=%s,%s", ts, hex.EncodeToString([]byte("bogus")), valid[len(fmt.Sprintf("t=%d,", ts)):])

	_, err := client.VerifyWebhook(header, body)
	assert.NoError(t, err)
}
