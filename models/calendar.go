package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
)

// Calendar groups events and carries the visibility rules for them. A user may
// see an event iff at least one calendar containing it is owned by, shared
// with, or public to that user.
type Calendar struct {
	gorm.Model
	Name        string `json:"name" gorm:"not null"`
	Description string `json:"description"`
	Color       string `json:"color"`
	OwnerID     uint   `json:"ownerId" gorm:"index;not null"`
	IsDefault   bool   `json:"isDefault"`
	IsPublic    bool   `json:"isPublic" gorm:"index"`
}

// Event visibility values.
const (
	VisibilityPublic     = "public"
	VisibilityPrivate    = "private"
	VisibilityRestricted = "restricted"
)

// Recurrence is the stored recurrence rule of a template event. Instances are
// never persisted; they are materialized per query by internal/recurrence.
type Recurrence struct {
	Frequency    string   `json:"frequency"` // daily, weekly, monthly, yearly
	Interval     int      `json:"interval"`
	Count        *int     `json:"count,omitempty"`
	Until        *int64   `json:"until,omitempty"` // unix ms
	ByDay        []string `json:"byDay,omitempty"` // MO TU WE TH FR SA SU
	ByMonthDay   []int    `json:"byMonthDay,omitempty"`
	ByMonth      []int    `json:"byMonth,omitempty"`
	ExcludeDates []int64  `json:"excludeDates,omitempty"` // unix ms occurrence starts
}

var validFrequencies = map[string]bool{
	"daily": true, "weekly": true, "monthly": true, "yearly": true,
}

// Validate checks the stored rule shape before persisting it.
func (r *Recurrence) Validate() error {
	if r == nil {
		return nil
	}
	if !validFrequencies[r.Frequency] {
		return fmt.Errorf("invalid recurrence frequency %q", r.Frequency)
	}
	if r.Interval < 1 {
		return fmt.Errorf("recurrence interval must be >= 1, got %d", r.Interval)
	}
	for _, d := range r.ByDay {
		switch d {
		case "MO", "TU", "WE", "TH", "FR", "SA", "SU":
		default:
			return fmt.Errorf("invalid recurrence byDay value %q", d)
		}
	}
	return nil
}

// Value serializes the rule into a jsonb column.
func (r *Recurrence) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

// Scan deserializes the rule from a jsonb column.
func (r *Recurrence) Scan(value any) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return fmt.Errorf("unsupported recurrence column type %T", value)
	}
}

// Event is either a concrete event or, when Recurrence is set, a recurring
// template expanded on read. Times are unix milliseconds in UTC.
type Event struct {
	gorm.Model
	Title       string      `json:"title" gorm:"not null"`
	Description string      `json:"description"`
	StartTime   int64       `json:"startTime" gorm:"index;not null"`
	EndTime     int64       `json:"endTime" gorm:"not null"`
	AllDay      bool        `json:"allDay"`
	Timezone    string      `json:"timezone"`
	Type        string      `json:"type" gorm:"type:varchar(50);default:'other'"`
	Color       string      `json:"color,omitempty"`
	Location    string      `json:"location,omitempty"`
	Visibility  string      `json:"visibility" gorm:"type:varchar(20);default:'private'"`
	CreatedBy   uint        `json:"createdBy" gorm:"index"`
	Recurrence  *Recurrence `json:"recurrence,omitempty" gorm:"type:jsonb"`
}

// OverlapsWindow reports whether the event intersects [startDate, endDate],
// inclusive on both bounds.
func (e *Event) OverlapsWindow(startDate, endDate int64) bool {
	return e.StartTime <= endDate && e.EndTime >= startDate
}

// CalendarEvent links an event into a calendar. An event can appear on several
// calendars; IsPrimary marks the one it was created on.
type CalendarEvent struct {
	gorm.Model
	CalendarID uint `json:"calendarId" gorm:"index:idx_calendar_event,unique;not null"`
	EventID    uint `json:"eventId" gorm:"index:idx_calendar_event,unique;index;not null"`
	IsPrimary  bool `json:"isPrimary"`
}

// CalendarPermission grants a user access to a calendar they do not own.
type CalendarPermission struct {
	gorm.Model
	CalendarID uint   `json:"calendarId" gorm:"index:idx_calendar_user,unique;not null"`
	UserID     uint   `json:"userId" gorm:"index:idx_calendar_user,unique;index;not null"`
	Role       string `json:"role" gorm:"type:varchar(20);default:'viewer'"` // viewer, editor
}
