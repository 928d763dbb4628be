package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/launchthatbrand/portal-api/internal/apperr"
	"github.com/launchthatbrand/portal-api/models"
)

const dayMs = int64(24 * 60 * 60 * 1000)

// EventRequest is the create/update payload for an event.
type EventRequest struct {
	Title       string             `json:"title" binding:"required"`
	Description string             `json:"description"`
	StartTime   int64              `json:"startTime" binding:"required"`
	EndTime     int64              `json:"endTime" binding:"required"`
	AllDay      bool               `json:"allDay"`
	Timezone    string             `json:"timezone"`
	Type        string             `json:"type"`
	Color       string             `json:"color"`
	Location    string             `json:"location"`
	Visibility  string             `json:"visibility"`
	CalendarIDs []uint             `json:"calendarIds"`
	Recurrence  *models.Recurrence `json:"recurrence"`

	// Update-only. ApplyToSeries=false on a recurring template turns the
	// update into a single-occurrence exception at OccurrenceStart.
	ApplyToSeries   *bool  `json:"applyToSeries"`
	OccurrenceStart *int64 `json:"occurrenceStart"`
}

func validateEventRequest(req *EventRequest) error {
	if req.EndTime < req.StartTime {
		return apperr.Invalid("Event end before start", map[string]any{
			"startTime": req.StartTime,
			"endTime":   req.EndTime,
		})
	}
	if err := req.Recurrence.Validate(); err != nil {
		return apperr.Invalid(err.Error(), nil)
	}
	return nil
}

// CreateEvent creates an event and links it into the target calendars. The
// first calendar id is the primary link; with no ids given, the user's
// default calendar is used.
func (h *CalendarHandler) CreateEvent(c *gin.Context) {
	userID := c.GetUint("user_id")

	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Invalid("Invalid request body", map[string]any{"error": err.Error()}))
		return
	}
	if err := validateEventRequest(&req); err != nil {
		apperr.Respond(c, err)
		return
	}

	calendarIDs := req.CalendarIDs
	if len(calendarIDs) == 0 {
		var defaultCalendar models.Calendar
		err := h.db.Where("owner_id = ? AND is_default = ?", userID, true).First(&defaultCalendar).Error
		if err != nil {
			apperr.Respond(c, apperr.Invalid("No target calendar: supply calendarIds or create a default calendar", nil))
			return
		}
		calendarIDs = []uint{defaultCalendar.ID}
	}
	for _, calendarID := range calendarIDs {
		ok, err := h.canEditCalendar(userID, calendarID)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		if !ok {
			apperr.Respond(c, apperr.Forbidden("calendar_edit"))
			return
		}
	}

	event := models.Event{
		Title:       req.Title,
		Description: req.Description,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		AllDay:      req.AllDay,
		Timezone:    req.Timezone,
		Type:        req.Type,
		Color:       req.Color,
		Location:    req.Location,
		Visibility:  req.Visibility,
		CreatedBy:   userID,
		Recurrence:  req.Recurrence,
	}
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&event).Error; err != nil {
			return err
		}
		for i, calendarID := range calendarIDs {
			link := models.CalendarEvent{
				CalendarID: calendarID,
				EventID:    event.ID,
				IsPrimary:  i == 0,
			}
			if err := tx.Create(&link).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

// UpdateEvent updates an event. For a recurring template with
// applyToSeries=false, the named occurrence is excluded from the series and a
// standalone exception event is created with the new fields.
func (h *CalendarHandler) UpdateEvent(c *gin.Context) {
	userID := c.GetUint("user_id")
	eventID, err := pathID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Invalid("Invalid request body", map[string]any{"error": err.Error()}))
		return
	}
	if err := validateEventRequest(&req); err != nil {
		apperr.Respond(c, err)
		return
	}

	event, err := h.loadEditableEvent(userID, eventID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	if event.Recurrence != nil && req.ApplyToSeries != nil && !*req.ApplyToSeries {
		if req.OccurrenceStart == nil {
			apperr.Respond(c, apperr.Invalid("occurrenceStart is required when applyToSeries is false", nil))
			return
		}
		exception, err := h.createSeriesException(userID, event, *req.OccurrenceStart, &req)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, exception)
		return
	}

	err = h.db.Model(event).Updates(map[string]any{
		"title":       req.Title,
		"description": req.Description,
		"start_time":  req.StartTime,
		"end_time":    req.EndTime,
		"all_day":     req.AllDay,
		"timezone":    req.Timezone,
		"type":        req.Type,
		"color":       req.Color,
		"location":    req.Location,
		"visibility":  req.Visibility,
		"recurrence":  req.Recurrence,
	}).Error
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// createSeriesException excludes one occurrence from the template and inserts
// a standalone event carrying the edited fields, linked into the same
// calendars as the template.
func (h *CalendarHandler) createSeriesException(userID uint, template *models.Event, occurrenceStart int64, req *EventRequest) (*models.Event, error) {
	exception := models.Event{
		Title:       req.Title,
		Description: req.Description,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		AllDay:      req.AllDay,
		Timezone:    req.Timezone,
		Type:        req.Type,
		Color:       req.Color,
		Location:    req.Location,
		Visibility:  req.Visibility,
		CreatedBy:   userID,
	}
	err := h.db.Transaction(func(tx *gorm.DB) error {
		rule := *template.Recurrence
		rule.ExcludeDates = appendExcludeDate(rule.ExcludeDates, occurrenceStart)
		if err := tx.Model(template).Update("recurrence", &rule).Error; err != nil {
			return err
		}

		if err := tx.Create(&exception).Error; err != nil {
			return err
		}
		var links []models.CalendarEvent
		if err := tx.Where("event_id = ?", template.ID).Find(&links).Error; err != nil {
			return err
		}
		for _, link := range links {
			exceptionLink := models.CalendarEvent{
				CalendarID: link.CalendarID,
				EventID:    exception.ID,
				IsPrimary:  link.IsPrimary,
			}
			if err := tx.Create(&exceptionLink).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &exception, nil
}

// DeleteEvent deletes an event. For recurring templates the "option" query
// parameter selects the scope: "all" (default) removes the series, "this"
// excludes one occurrence, "future" truncates the series before the
// occurrence.
func (h *CalendarHandler) DeleteEvent(c *gin.Context) {
	userID := c.GetUint("user_id")
	eventID, err := pathID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	event, err := h.loadEditableEvent(userID, eventID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	option := c.DefaultQuery("option", "all")
	switch option {
	case "all":
		err = h.deleteEventRow(event)
	case "this", "future":
		if event.Recurrence == nil {
			apperr.Respond(c, apperr.Invalid("Delete option requires a recurring event", map[string]any{"option": option}))
			return
		}
		occurrenceStart, parseErr := strconv.ParseInt(c.Query("occurrenceStart"), 10, 64)
		if parseErr != nil {
			apperr.Respond(c, apperr.Invalid("Query parameter 'occurrenceStart' must be unix milliseconds", nil))
			return
		}
		if option == "this" {
			err = h.excludeOccurrence(event, occurrenceStart)
		} else {
			err = h.truncateSeries(event, occurrenceStart)
		}
	default:
		apperr.Respond(c, apperr.Invalid("Invalid delete option", map[string]any{"option": option}))
		return
	}
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Event deleted successfully"})
}

func (h *CalendarHandler) deleteEventRow(event *models.Event) error {
	return h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", event.ID).Delete(&models.CalendarEvent{}).Error; err != nil {
			return err
		}
		return tx.Delete(event).Error
	})
}

func (h *CalendarHandler) excludeOccurrence(event *models.Event, occurrenceStart int64) error {
	rule := *event.Recurrence
	rule.ExcludeDates = appendExcludeDate(rule.ExcludeDates, occurrenceStart)
	return h.db.Model(event).Update("recurrence", &rule).Error
}

// truncateSeries ends the series the day before the occurrence. Truncating at
// the first occurrence removes the whole series.
func (h *CalendarHandler) truncateSeries(event *models.Event, occurrenceStart int64) error {
	if occurrenceStart <= event.StartTime {
		return h.deleteEventRow(event)
	}
	rule := *event.Recurrence
	until := occurrenceStart - dayMs
	rule.Until = &until
	rule.Count = nil
	return h.db.Model(event).Update("recurrence", &rule).Error
}

// loadEditableEvent fetches the event and authorizes the edit: the creator or
// an editor of any containing calendar may modify it.
func (h *CalendarHandler) loadEditableEvent(userID uint, eventID int) (*models.Event, error) {
	var event models.Event
	if err := h.db.First(&event, eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("event", eventID)
		}
		return nil, err
	}
	if event.CreatedBy == userID {
		return &event, nil
	}

	var links []models.CalendarEvent
	if err := h.db.Where("event_id = ?", event.ID).Find(&links).Error; err != nil {
		return nil, err
	}
	for _, link := range links {
		ok, err := h.canEditCalendar(userID, link.CalendarID)
		if err != nil {
			var appErr *apperr.Error
			if errors.As(err, &appErr) && appErr.Code == apperr.CodeNotFound {
				continue
			}
			return nil, err
		}
		if ok {
			return &event, nil
		}
	}
	return nil, apperr.Forbidden("calendar_edit")
}

func appendExcludeDate(dates []int64, ts int64) []int64 {
	for _, d := range dates {
		if d == ts {
			return dates
		}
	}
	return append(dates, ts)
}
