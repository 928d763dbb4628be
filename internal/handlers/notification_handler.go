package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/launchthatbrand/portal-api/internal/apperr"
	"github.com/launchthatbrand/portal-api/internal/notify"
	"github.com/launchthatbrand/portal-api/models"
)

// NotificationHandler serves the per-user notification inbox and preference
// endpoints.
type NotificationHandler struct {
	db      *gorm.DB
	service *notify.Service
}

func NewNotificationHandler(db *gorm.DB, service *notify.Service) *NotificationHandler {
	return &NotificationHandler{db: db, service: service}
}

// ListNotifications returns the user's notifications, newest first, paginated
// with the standard page/pageSize parameters. unread=true narrows to unread
// rows.
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	userID := c.GetUint("user_id")

	query := h.db.Model(&models.Notification{}).Where("user_id = ?", userID)
	if c.Query("unread") == "true" {
		query = query.Where("read = ?", false)
	}

	var totalRows int64
	if err := query.Count(&totalRows).Error; err != nil {
		apperr.Respond(c, err)
		return
	}

	notifications := []models.Notification{}
	if err := query.Scopes(Paginate(c)).Order("created_at desc, id desc").Find(&notifications).Error; err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, CreatePaginatedResponse(c, notifications, totalRows))
}

// UnreadCount returns the unread badge value.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID := c.GetUint("user_id")

	var count int64
	err := h.db.Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// NotificationRequest is the admin broadcast payload.
type NotificationRequest struct {
	UserIDs   []uint `json:"userIds" binding:"required"`
	Type      string `json:"type" binding:"required"`
	Title     string `json:"title" binding:"required"`
	Content   string `json:"content"`
	ActionURL string `json:"actionUrl"`
}

// CreateNotifications fans one notification out to a list of recipients.
// Failed recipients are reported alongside the created rows.
func (h *NotificationHandler) CreateNotifications(c *gin.Context) {
	senderID := c.GetUint("user_id")

	var req NotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Invalid("Invalid request body", map[string]any{"error": err.Error()}))
		return
	}

	result := h.service.BatchCreate(req.UserIDs, notify.CreateArgs{
		Type:         req.Type,
		Title:        req.Title,
		Content:      req.Content,
		ActionURL:    req.ActionURL,
		SourceUserID: &senderID,
	})
	c.JSON(http.StatusCreated, result)
}

type markReadRequest struct {
	Read *bool `json:"read"`
}

// MarkRead toggles one notification's read flag. Only the owner may touch it.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID := c.GetUint("user_id")
	notificationID, err := pathID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	read := true
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.Read != nil {
		read = *req.Read
	}

	if err := h.service.MarkRead(userID, uint(notificationID), read); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			apperr.Respond(c, apperr.NotFound("notification", notificationID))
			return
		}
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification updated successfully"})
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID := c.GetUint("user_id")

	updated, err := h.service.MarkAllRead(userID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h *NotificationHandler) DeleteNotification(c *gin.Context) {
	userID := c.GetUint("user_id")
	notificationID, err := pathID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	if err := h.service.Delete(userID, uint(notificationID)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			apperr.Respond(c, apperr.NotFound("notification", notificationID))
			return
		}
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification deleted successfully"})
}

func (h *NotificationHandler) DeleteAllNotifications(c *gin.Context) {
	userID := c.GetUint("user_id")

	deleted, err := h.service.DeleteAll(userID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// ListPreferences returns the user's stored preference rows. Types without a
// row are unset and therefore allowed.
func (h *NotificationHandler) ListPreferences(c *gin.Context) {
	userID := c.GetUint("user_id")

	preferences := []models.NotificationPreference{}
	if err := h.db.Where("user_id = ?", userID).Order("type asc").Find(&preferences).Error; err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, preferences)
}

type preferenceRequest struct {
	Type  string                 `json:"type" binding:"required"`
	State models.PreferenceState `json:"state" binding:"required"`
}

func (h *NotificationHandler) PutPreference(c *gin.Context) {
	userID := c.GetUint("user_id")

	var req preferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Invalid("Invalid request body", map[string]any{"error": err.Error()}))
		return
	}

	if err := h.service.SetPreference(userID, req.Type, req.State); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Preference saved successfully"})
}
