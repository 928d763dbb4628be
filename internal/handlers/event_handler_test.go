package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchthatbrand/portal-api/internal/apperr"
	"github.com/launchthatbrand/portal-api/models"
)

func reloadEvent(t *testing.T, h *CalendarHandler, id uint) models.Event {
	t.Helper()
	var event models.Event
	require.NoError(t, h.db.First(&event, id).Error)
	return event
}

func TestExcludeOccurrenceAppendsOnce(t *testing.T) {
	db := openTestDB(t)
	h := NewCalendarHandler(db)
	cal := seedCalendar(t, db, 1, false)
	template := seedEvent(t, db, cal.ID, 1, 0, 3_600_000, &models.Recurrence{Frequency: "daily", Interval: 1})

	require.NoError(t, h.excludeOccurrence(&template, dayMs))
	stored := reloadEvent(t, h, template.ID)
	require.NotNil(t, stored.Recurrence)
	assert.Equal(t, []int64{dayMs}, stored.Recurrence.ExcludeDates)

	// Excluding the same occurrence again is a no-op.
	require.NoError(t, h.excludeOccurrence(&stored, dayMs))
	stored = reloadEvent(t, h, template.ID)
	assert.Equal(t, []int64{dayMs}, stored.Recurrence.ExcludeDates)
}

func TestTruncateSeriesSetsUntilAndClearsCount(t *testing.T) {
	db := openTestDB(t)
	h := NewCalendarHandler(db)
	cal := seedCalendar(t, db, 1, false)
	count := 10
	template := seedEvent(t, db, cal.ID, 1, 0, 3_600_000, &models.Recurrence{
		Frequency: "daily", Interval: 1, Count: &count,
	})

	occurrence := 5 * dayMs
	require.NoError(t, h.truncateSeries(&template, occurrence))

	stored := reloadEvent(t, h, template.ID)
	require.NotNil(t, stored.Recurrence)
	require.NotNil(t, stored.Recurrence.Until)
	assert.Equal(t, occurrence-dayMs, *stored.Recurrence.Until)
	assert.Nil(t, stored.Recurrence.Count)
}

func TestTruncateSeriesAtFirstOccurrenceDeletesSeries(t *testing.T) {
	db := openTestDB(t)
	h := NewCalendarHandler(db)
	cal := seedCalendar(t, db, 1, false)
	template := seedEvent(t, db, cal.ID, 1, 0, 3_600_000, &models.Recurrence{Frequency: "daily", Interval: 1})

	require.NoError(t, h.truncateSeries(&template, 0))

	var count int64
	db.Model(&models.Event{}).Where("id = ?", template.ID).Count(&count)
	assert.Zero(t, count)
	db.Model(&models.CalendarEvent{}).Where("event_id = ?", template.ID).Count(&count)
	assert.Zero(t, count, "calendar links are removed with the series")
}

func TestCreateSeriesExceptionExcludesAndClones(t *testing.T) {
	db := openTestDB(t)
	h := NewCalendarHandler(db)
	cal := seedCalendar(t, db, 1, false)
	template := seedEvent(t, db, cal.ID, 1, 0, 3_600_000, &models.Recurrence{Frequency: "daily", Interval: 1})

	occurrence := 2 * dayMs
	req := EventRequest{
		Title:     "moved occurrence",
		StartTime: occurrence + 3_600_000,
		EndTime:   occurrence + 2*3_600_000,
	}
	exception, err := h.createSeriesException(1, &template, occurrence, &req)
	require.NoError(t, err)
	require.NotNil(t, exception)
	assert.Nil(t, exception.Recurrence)
	assert.Equal(t, "moved occurrence", exception.Title)

	stored := reloadEvent(t, h, template.ID)
	assert.Contains(t, stored.Recurrence.ExcludeDates, occurrence)

	// The exception is linked into the template's calendars.
	var links []models.CalendarEvent
	require.NoError(t, db.Where("event_id = ?", exception.ID).Find(&links).Error)
	require.Len(t, links, 1)
	assert.Equal(t, cal.ID, links[0].CalendarID)
}

func TestLoadEditableEventAuthorization(t *testing.T) {
	db := openTestDB(t)
	h := NewCalendarHandler(db)
	cal := seedCalendar(t, db, 1, false)
	event := seedEvent(t, db, cal.ID, 1, 1000, 2000, nil)

	// Creator edits.
	_, err := h.loadEditableEvent(1, int(event.ID))
	require.NoError(t, err)

	// A stranger may not.
	_, err = h.loadEditableEvent(2, int(event.ID))
	assert.Equal(t, apperr.CodeForbidden, apperr.GetCode(err))

	// An editor grant on the containing calendar allows it.
	require.NoError(t, db.Create(&models.CalendarPermission{CalendarID: cal.ID, UserID: 2, Role: "editor"}).Error)
	_, err = h.loadEditableEvent(2, int(event.ID))
	require.NoError(t, err)

	// A viewer grant does not.
	require.NoError(t, db.Create(&models.CalendarPermission{CalendarID: cal.ID, UserID: 3, Role: "viewer"}).Error)
	_, err = h.loadEditableEvent(3, int(event.ID))
	assert.Equal(t, apperr.CodeForbidden, apperr.GetCode(err))

	// Unknown event is not_found, never forbidden.
	_, err = h.loadEditableEvent(1, 999)
	assert.Equal(t, apperr.CodeNotFound, apperr.GetCode(err))
}
