// Package notify creates and manages in-app notifications, respecting
// per-user preference toggles and pushing unread rows to connected sockets.
package notify

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/launchthatbrand/portal-api/models"
)

// Pusher decouples the service from the WebSocket hub so tests can observe
// pushes without sockets.
type Pusher interface {
	Push(n *models.Notification)
}

type Service struct {
	db  *gorm.DB
	hub Pusher
}

// NewService wires the notification store to an optional push channel. A nil
// hub disables pushes but not persistence.
func NewService(db *gorm.DB, hub Pusher) *Service {
	return &Service{db: db, hub: hub}
}

// CreateArgs describes one notification to insert.
type CreateArgs struct {
	UserID       uint
	Type         string
	Title        string
	Content      string
	ActionURL    string
	SourceUserID *uint
	SourceRefID  *uint
	ExpiresAt    *time.Time
}

// Create inserts one notification after consulting the recipient's stored
// preference. An explicit "disabled" preference still creates the row but
// marks it read immediately, preserving history while suppressing unread
// badges; absence of a preference means allowed.
func (s *Service) Create(args CreateArgs) (*models.Notification, error) {
	if args.UserID == 0 {
		return nil, fmt.Errorf("notify: recipient required")
	}
	if args.Type == "" || args.Title == "" {
		return nil, fmt.Errorf("notify: type and title required")
	}

	state, err := s.preferenceState(args.UserID, args.Type)
	if err != nil {
		return nil, err
	}

	content := args.Content
	if content == "" {
		content = formatContent(args)
	}

	n := models.Notification{
		UserID:       args.UserID,
		Type:         args.Type,
		Title:        args.Title,
		Content:      content,
		Read:         state.Suppressed(),
		ActionURL:    args.ActionURL,
		SourceUserID: args.SourceUserID,
		SourceRefID:  args.SourceRefID,
		ExpiresAt:    args.ExpiresAt,
	}
	if err := s.db.Create(&n).Error; err != nil {
		return nil, err
	}

	if !n.Read && s.hub != nil {
		s.hub.Push(&n)
	}
	return &n, nil
}

// BatchResult reports a fan-out outcome. Inserts are independent: one
// recipient failing never rolls back the others.
type BatchResult struct {
	Created int      `json:"created"`
	Errors  []string `json:"errors,omitempty"`
}

// BatchCreate performs the same insert once per recipient.
func (s *Service) BatchCreate(userIDs []uint, args CreateArgs) BatchResult {
	var res BatchResult
	seen := make(map[uint]bool, len(userIDs))

	for _, userID := range userIDs {
		if userID == 0 || seen[userID] {
			continue
		}
		seen[userID] = true

		perUser := args
		perUser.UserID = userID
		if _, err := s.Create(perUser); err != nil {
			slog.Error("Batch notification insert failed", "user_id", userID, "error", err)
			res.Errors = append(res.Errors, fmt.Sprintf("userId=%d: %v", userID, err))
			continue
		}
		res.Created++
	}
	return res
}

// preferenceState resolves the explicit three-state preference; missing rows
// are unset rather than disabled.
func (s *Service) preferenceState(userID uint, notificationType string) (models.PreferenceState, error) {
	var pref models.NotificationPreference
	err := s.db.Where("user_id = ? AND type = ?", userID, notificationType).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.PreferenceUnset, nil
	}
	if err != nil {
		return models.PreferenceUnset, err
	}
	return pref.State, nil
}

// SetPreference upserts one user's toggle for one notification type.
func (s *Service) SetPreference(userID uint, notificationType string, state models.PreferenceState) error {
	switch state {
	case models.PreferenceEnabled, models.PreferenceDisabled, models.PreferenceUnset:
	default:
		return fmt.Errorf("notify: invalid preference state %q", state)
	}

	var pref models.NotificationPreference
	err := s.db.Where("user_id = ? AND type = ?", userID, notificationType).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(&models.NotificationPreference{
			UserID: userID,
			Type:   notificationType,
			State:  state,
		}).Error
	}
	if err != nil {
		return err
	}
	return s.db.Model(&pref).Update("state", state).Error
}

// MarkRead toggles one row owned by the user.
func (s *Service) MarkRead(userID, notificationID uint, read bool) error {
	res := s.db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("read", read)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkAllRead clears the unread set in one statement. The original portal
// walked row by row; a single UPDATE keeps the bounded administrative action
// cheap.
func (s *Service) MarkAllRead(userID uint) (int64, error) {
	res := s.db.Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)
	return res.RowsAffected, res.Error
}

// Delete removes one row owned by the user.
func (s *Service) Delete(userID, notificationID uint) error {
	res := s.db.Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&models.Notification{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteAll removes every notification of one user in one statement.
func (s *Service) DeleteAll(userID uint) (int64, error) {
	res := s.db.Where("user_id = ?", userID).Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}

// formatContent synthesizes a human-readable body for rows created without
// explicit content, keyed on the notification type.
func formatContent(args CreateArgs) string {
	switch args.Type {
	case models.NotificationTypeEventInvite:
		return "You have been invited to an event."
	case models.NotificationTypeEventReminder:
		return "An event on your calendar is starting soon."
	case models.NotificationTypeEventUpdate:
		return "An event on your calendar was updated."
	case models.NotificationTypeCourseUpdate:
		return "A course you follow has new content."
	case models.NotificationTypeOrderConfirmation:
		return "Your order has been confirmed."
	case models.NotificationTypePaymentSuccess:
		return "Your payment was processed successfully."
	case models.NotificationTypePaymentFailed:
		return "A payment could not be processed."
	case models.NotificationTypeGroupInvite:
		return "You have been invited to join a group."
	case models.NotificationTypeMention:
		return "Someone mentioned you."
	case models.NotificationTypeSystemAnnouncement:
		return args.Title
	default:
		return args.Title
	}
}
