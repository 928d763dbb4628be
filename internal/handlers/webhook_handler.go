package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/launchthatbrand/portal-api/internal/apperr"
	"github.com/launchthatbrand/portal-api/internal/payouts"
)

// WebhookHandler receives provider webhooks. The route is unauthenticated;
// the payload signature is the authentication.
type WebhookHandler struct {
	runner *payouts.Runner
}

func NewWebhookHandler(runner *payouts.Runner) *WebhookHandler {
	return &WebhookHandler{runner: runner}
}

// StripeWebhook verifies the Stripe-Signature header against the raw body and
// forwards recognized events into the payout pipeline. Unrecognized event
// types are acknowledged so the provider stops retrying them.
func (h *WebhookHandler) StripeWebhook(c *gin.Context) {
	rawBody, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		apperr.Respond(c, apperr.Invalid("Failed to read webhook body", nil))
		return
	}

	handled, err := h.runner.ProcessWebhook(c.Request.Context(), c.GetHeader("Stripe-Signature"), rawBody)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "handled": handled})
}
