package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/launchthatbrand/portal-api/internal/apperr"
	"github.com/launchthatbrand/portal-api/internal/credit"
	"github.com/launchthatbrand/portal-api/internal/payouts"
	"github.com/launchthatbrand/portal-api/models"
)

// PayoutHandler serves the affiliate payout surface: preferences, connected
// account onboarding, balance, and the admin-triggered reconciliation run.
type PayoutHandler struct {
	db     *gorm.DB
	runner *payouts.Runner
	credit *credit.Service
}

func NewPayoutHandler(db *gorm.DB, runner *payouts.Runner, creditSvc *credit.Service) *PayoutHandler {
	return &PayoutHandler{db: db, runner: runner, credit: creditSvc}
}

// RunMonthly triggers a reconciliation batch. Guarded by the payouts_run
// permission at the route level.
func (h *PayoutHandler) RunMonthly(c *gin.Context) {
	var args payouts.RunArgs
	if err := c.ShouldBindJSON(&args); err != nil {
		apperr.Respond(c, apperr.Invalid("Invalid request body", map[string]any{"error": err.Error()}))
		return
	}

	result, err := h.runner.RunMonthly(c.Request.Context(), args)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListRuns lists past reconciliation runs with their transfers, newest first.
func (h *PayoutHandler) ListRuns(c *gin.Context) {
	var totalRows int64
	if err := h.db.Model(&models.PayoutRun{}).Count(&totalRows).Error; err != nil {
		apperr.Respond(c, err)
		return
	}

	runs := []models.PayoutRun{}
	if err := h.db.Scopes(Paginate(c)).Order("id desc").Find(&runs).Error; err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, CreatePaginatedResponse(c, runs, totalRows))
}

// GetBalance returns the caller's current credit balance.
func (h *PayoutHandler) GetBalance(c *gin.Context) {
	userID := c.GetUint("user_id")

	currency := strings.ToUpper(c.DefaultQuery("currency", "USD"))
	balance, err := h.credit.Balance(userID, currency)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"currency": currency, "balanceCents": balance})
}

// GetPreference returns the caller's payout preference, or defaults when none
// is stored.
func (h *PayoutHandler) GetPreference(c *gin.Context) {
	userID := c.GetUint("user_id")

	var pref models.PayoutPreference
	err := h.db.Where("user_id = ?", userID).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusOK, models.PayoutPreference{
			UserID:   userID,
			Currency: "USD",
			Policy:   models.PayoutPolicyCashOnly,
		})
		return
	}
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, pref)
}

// PayoutPreferenceRequest is the upsert payload for payout preferences.
type PayoutPreferenceRequest struct {
	Currency       string `json:"currency"`
	MinPayoutCents int64  `json:"minPayoutCents"`
	Policy         string `json:"policy" binding:"required"`
}

func (h *PayoutHandler) PutPreference(c *gin.Context) {
	userID := c.GetUint("user_id")

	var req PayoutPreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Invalid("Invalid request body", map[string]any{"error": err.Error()}))
		return
	}
	if req.Policy != models.PayoutPolicyCashOnly && req.Policy != models.PayoutPolicySubscriptionThen {
		apperr.Respond(c, apperr.Invalid("Invalid payout policy", map[string]any{"policy": req.Policy}))
		return
	}
	if req.MinPayoutCents < 0 {
		apperr.Respond(c, apperr.Invalid("minPayoutCents must not be negative", nil))
		return
	}
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "USD"
	}

	var pref models.PayoutPreference
	err := h.db.Where("user_id = ?", userID).First(&pref).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		pref = models.PayoutPreference{
			UserID:         userID,
			Currency:       currency,
			MinPayoutCents: req.MinPayoutCents,
			Policy:         req.Policy,
		}
		err = h.db.Create(&pref).Error
	case err == nil:
		err = h.db.Model(&pref).Updates(map[string]any{
			"currency":         currency,
			"min_payout_cents": req.MinPayoutCents,
			"policy":           req.Policy,
		}).Error
	}
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, pref)
}

// CreateOnboardingLink starts or resumes connected-account onboarding for the
// caller.
func (h *PayoutHandler) CreateOnboardingLink(c *gin.Context) {
	userID := c.GetUint("user_id")

	var args payouts.OnboardingArgs
	if err := c.ShouldBindJSON(&args); err != nil {
		apperr.Respond(c, apperr.Invalid("Invalid request body", map[string]any{"error": err.Error()}))
		return
	}
	args.UserID = userID

	link, err := h.runner.EnsureOnboardingLink(c.Request.Context(), args)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

// GetAccount reports the caller's connected-account status.
func (h *PayoutHandler) GetAccount(c *gin.Context) {
	userID := c.GetUint("user_id")

	var account models.PayoutAccount
	err := h.db.Where("user_id = ? AND provider = ?", userID, payouts.DefaultProvider).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusOK, gin.H{"connected": false})
		return
	}
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"connected":        account.ConnectAccountID != "",
		"provider":         account.Provider,
		"connectAccountId": account.ConnectAccountID,
		"status":           account.Status,
	})
}

// Disconnect tears down the caller's connected account. deleteRemote=true
// also deletes the provider-side account.
func (h *PayoutHandler) Disconnect(c *gin.Context) {
	userID := c.GetUint("user_id")

	deleteRemote := c.DefaultQuery("deleteRemote", "true") != "false"
	result, err := h.runner.Disconnect(c.Request.Context(), userID, deleteRemote)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
