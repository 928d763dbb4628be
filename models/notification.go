package models

import (
	"time"

	"gorm.io/gorm"
)

// Notification types understood by the content formatter. The column is free
// text so new types do not require a migration.
const (
	NotificationTypeMessage            = "message"
	NotificationTypeMention            = "mention"
	NotificationTypeGroupInvite        = "groupInvite"
	NotificationTypeEventInvite        = "eventInvite"
	NotificationTypeEventReminder      = "eventReminder"
	NotificationTypeEventUpdate        = "eventUpdate"
	NotificationTypeCourseUpdate       = "courseUpdate"
	NotificationTypeOrderConfirmation  = "orderConfirmation"
	NotificationTypePaymentSuccess     = "paymentSuccess"
	NotificationTypePaymentFailed      = "paymentFailed"
	NotificationTypeSystemAnnouncement = "systemAnnouncement"
)

// Notification is one in-app notification row. Rows are only ever mutated via
// the Read toggle and deleted individually or in bulk per user.
type Notification struct {
	gorm.Model
	UserID       uint       `json:"userId" gorm:"index;not null"`
	Type         string     `json:"type" gorm:"type:varchar(50);not null"`
	Title        string     `json:"title" gorm:"not null"`
	Content      string     `json:"content"`
	Read         bool       `json:"read" gorm:"index"`
	ActionURL    string     `json:"actionUrl,omitempty"`
	SourceUserID *uint      `json:"sourceUserId,omitempty"`
	SourceRefID  *uint      `json:"sourceRefId,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

// PreferenceState is the explicit three-state preference value. "unset" means
// the user never configured the type and the opt-out default applies.
type PreferenceState string

const (
	PreferenceEnabled  PreferenceState = "enabled"
	PreferenceDisabled PreferenceState = "disabled"
	PreferenceUnset    PreferenceState = "unset"
)

// Suppressed reports whether a notification of this state should be created
// already marked read. Only an explicit "disabled" suppresses; absence of a
// preference means allowed.
func (s PreferenceState) Suppressed() bool {
	return s == PreferenceDisabled
}

// NotificationPreference stores one user's toggle for one notification type.
// Missing rows resolve to PreferenceUnset.
type NotificationPreference struct {
	gorm.Model
	UserID uint            `json:"userId" gorm:"index:idx_pref_user_type,unique;not null"`
	Type   string          `json:"type" gorm:"index:idx_pref_user_type,unique;type:varchar(50);not null"`
	State  PreferenceState `json:"state" gorm:"type:varchar(10);not null;default:'unset'"`
}
