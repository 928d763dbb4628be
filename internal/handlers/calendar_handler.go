package handlers

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/launchthatbrand/portal-api/internal/apperr"
	"github.com/launchthatbrand/portal-api/internal/recurrence"
	"github.com/launchthatbrand/portal-api/models"
)

const (
	eventFetchBatchSize    = 200
	defaultEventsPageLimit = 100
	maxEventsPageLimit     = 500
)

// Cursor is the pagination cursor for resolved event pages. It is an offset
// into the fully resolved and sorted instance list for the same query window
// and filter; it is only stable while the underlying events do not change.
// Clients must treat it as opaque.
type Cursor int

// ParseCursor decodes the cursor query parameter. An empty value means the
// first page.
func ParseCursor(s string) (Cursor, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, apperr.Invalid("Invalid cursor", map[string]any{"cursor": s})
	}
	return Cursor(n), nil
}

func (c Cursor) String() string { return strconv.Itoa(int(c)) }

// CalendarHandler serves calendar CRUD and the windowed event resolution
// queries.
type CalendarHandler struct {
	db *gorm.DB
}

func NewCalendarHandler(db *gorm.DB) *CalendarHandler {
	return &CalendarHandler{db: db}
}

// CalendarRequest is the create/update payload for a calendar.
type CalendarRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Color       string `json:"color"`
	IsDefault   bool   `json:"isDefault"`
	IsPublic    bool   `json:"isPublic"`
}

// ListCalendars returns every calendar the current user can see.
func (h *CalendarHandler) ListCalendars(c *gin.Context) {
	userID := c.GetUint("user_id")

	ids, err := h.accessibleCalendarIDs(userID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	calendars := []models.Calendar{}
	if len(ids) > 0 {
		if err := h.db.Where("id IN ?", ids).Order("id asc").Find(&calendars).Error; err != nil {
			apperr.Respond(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, calendars)
}

func (h *CalendarHandler) CreateCalendar(c *gin.Context) {
	userID := c.GetUint("user_id")

	var req CalendarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Invalid("Invalid request body", map[string]any{"error": err.Error()}))
		return
	}

	calendar := models.Calendar{
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
		OwnerID:     userID,
		IsDefault:   req.IsDefault,
		IsPublic:    req.IsPublic,
	}
	if err := h.db.Create(&calendar).Error; err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, calendar)
}

func (h *CalendarHandler) UpdateCalendar(c *gin.Context) {
	userID := c.GetUint("user_id")
	calendarID, err := pathID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	var req CalendarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Respond(c, apperr.Invalid("Invalid request body", map[string]any{"error": err.Error()}))
		return
	}

	var calendar models.Calendar
	if err := h.db.First(&calendar, calendarID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			apperr.Respond(c, apperr.NotFound("calendar", calendarID))
			return
		}
		apperr.Respond(c, err)
		return
	}
	if calendar.OwnerID != userID {
		apperr.Respond(c, apperr.Forbidden("calendar_edit"))
		return
	}

	updates := map[string]any{
		"name":        req.Name,
		"description": req.Description,
		"color":       req.Color,
		"is_default":  req.IsDefault,
		"is_public":   req.IsPublic,
	}
	if err := h.db.Model(&calendar).Updates(updates).Error; err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, calendar)
}

// DeleteCalendar removes the calendar together with its event links and
// permission grants. Events themselves survive; they may still be linked into
// other calendars.
func (h *CalendarHandler) DeleteCalendar(c *gin.Context) {
	userID := c.GetUint("user_id")
	calendarID, err := pathID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	var calendar models.Calendar
	if err := h.db.First(&calendar, calendarID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			apperr.Respond(c, apperr.NotFound("calendar", calendarID))
			return
		}
		apperr.Respond(c, err)
		return
	}
	if calendar.OwnerID != userID {
		apperr.Respond(c, apperr.Forbidden("calendar_edit"))
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("calendar_id = ?", calendarID).Delete(&models.CalendarEvent{}).Error; err != nil {
			return err
		}
		if err := tx.Where("calendar_id = ?", calendarID).Delete(&models.CalendarPermission{}).Error; err != nil {
			return err
		}
		return tx.Delete(&calendar).Error
	})
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Calendar deleted successfully"})
}

// eventsQuery is the decoded GET /api/calendar/events query string.
type eventsQuery struct {
	windowStart int64
	windowEnd   int64
	calendarIDs []uint
	expand      bool
	cursor      Cursor
	limit       int
	paginate    bool
}

// eventsPage is the resolved response shape.
type eventsPage struct {
	Events  []recurrence.Instance `json:"events"`
	HasMore bool                  `json:"hasMore"`
	Cursor  *string               `json:"cursor"`
}

// ListEvents resolves every event instance visible to the current user within
// the requested window.
func (h *CalendarHandler) ListEvents(c *gin.Context) {
	userID := c.GetUint("user_id")

	q, err := parseEventsQuery(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	page, err := h.resolveEvents(c, userID, q)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func parseEventsQuery(c *gin.Context) (eventsQuery, error) {
	var q eventsQuery

	start, err := strconv.ParseInt(c.Query("start"), 10, 64)
	if err != nil {
		return q, apperr.Invalid("Query parameter 'start' must be unix milliseconds", nil)
	}
	end, err := strconv.ParseInt(c.Query("end"), 10, 64)
	if err != nil {
		return q, apperr.Invalid("Query parameter 'end' must be unix milliseconds", nil)
	}
	if end < start {
		return q, apperr.Invalid("Window end before window start", map[string]any{"start": start, "end": end})
	}
	q.windowStart, q.windowEnd = start, end

	if raw := c.Query("calendarIds"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return q, apperr.Invalid("Invalid calendarIds filter", map[string]any{"calendarIds": raw})
			}
			q.calendarIDs = append(q.calendarIDs, uint(id))
		}
	}

	q.expand = c.DefaultQuery("expand", "true") != "false"

	cursor, err := ParseCursor(c.Query("cursor"))
	if err != nil {
		return q, err
	}
	q.cursor = cursor

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return q, apperr.Invalid("Query parameter 'limit' must be a positive integer", nil)
		}
		if limit > maxEventsPageLimit {
			limit = maxEventsPageLimit
		}
		q.limit = limit
		q.paginate = true
	} else if q.cursor > 0 {
		q.limit = defaultEventsPageLimit
		q.paginate = true
	}

	return q, nil
}

// accessibleCalendarIDs returns the deduplicated union of calendars the user
// owns, calendars shared with the user, and public calendars.
func (h *CalendarHandler) accessibleCalendarIDs(userID uint) ([]uint, error) {
	var ids []uint
	err := h.db.Model(&models.Calendar{}).
		Distinct().
		Joins("LEFT JOIN calendar_permissions ON calendar_permissions.calendar_id = calendars.id AND calendar_permissions.user_id = ? AND calendar_permissions.deleted_at IS NULL", userID).
		Where("calendars.owner_id = ? OR calendars.is_public = ? OR calendar_permissions.id IS NOT NULL", userID, true).
		Pluck("calendars.id", &ids).Error
	return ids, err
}

func intersectIDs(accessible, filter []uint) []uint {
	if len(filter) == 0 {
		return accessible
	}
	allowed := make(map[uint]bool, len(accessible))
	for _, id := range accessible {
		allowed[id] = true
	}
	var out []uint
	for _, id := range filter {
		if allowed[id] {
			out = append(out, id)
		}
	}
	return out
}

// resolveEvents runs the full resolution pipeline: visible calendar set,
// linked event ids, batched event fetch, window filter, optional recurrence
// expansion, deterministic sort, optional pagination.
func (h *CalendarHandler) resolveEvents(c *gin.Context, userID uint, q eventsQuery) (eventsPage, error) {
	empty := eventsPage{Events: []recurrence.Instance{}}

	accessible, err := h.accessibleCalendarIDs(userID)
	if err != nil {
		return empty, err
	}
	calendarIDs := intersectIDs(accessible, q.calendarIDs)
	if len(calendarIDs) == 0 {
		return empty, nil
	}

	var eventIDs []uint
	if err := h.db.Model(&models.CalendarEvent{}).
		Distinct().
		Where("calendar_id IN ?", calendarIDs).
		Pluck("event_id", &eventIDs).Error; err != nil {
		return empty, err
	}
	if len(eventIDs) == 0 {
		return empty, nil
	}

	events, err := h.fetchEventsBatched(c, eventIDs)
	if err != nil {
		return empty, err
	}

	instances := []recurrence.Instance{}
	for _, ev := range events {
		if q.expand {
			expanded, err := recurrence.Expand(ev, q.windowStart, q.windowEnd)
			if err != nil {
				return empty, err
			}
			instances = append(instances, expanded...)
			continue
		}
		// Unexpanded mode returns raw rows; recurring templates always pass
		// so the client can expand them itself.
		if ev.Recurrence != nil || ev.OverlapsWindow(q.windowStart, q.windowEnd) {
			instances = append(instances, recurrence.FromEvent(ev))
		}
	}

	sort.SliceStable(instances, func(i, j int) bool {
		if instances[i].StartTime != instances[j].StartTime {
			return instances[i].StartTime < instances[j].StartTime
		}
		return instances[i].ID < instances[j].ID
	})

	if !q.paginate {
		return eventsPage{Events: instances}, nil
	}

	offset := int(q.cursor)
	if offset >= len(instances) {
		return eventsPage{Events: []recurrence.Instance{}}, nil
	}
	pageEnd := offset + q.limit
	hasMore := pageEnd < len(instances)
	if !hasMore {
		pageEnd = len(instances)
	}

	page := eventsPage{Events: instances[offset:pageEnd], HasMore: hasMore}
	if hasMore {
		next := Cursor(pageEnd).String()
		page.Cursor = &next
	}
	return page, nil
}

// fetchEventsBatched loads the events in fixed-size id batches, one goroutine
// per batch.
func (h *CalendarHandler) fetchEventsBatched(c *gin.Context, eventIDs []uint) ([]models.Event, error) {
	g, ctx := errgroup.WithContext(c.Request.Context())
	var mu sync.Mutex
	var events []models.Event

	for start := 0; start < len(eventIDs); start += eventFetchBatchSize {
		end := start + eventFetchBatchSize
		if end > len(eventIDs) {
			end = len(eventIDs)
		}
		batch := eventIDs[start:end]
		g.Go(func() error {
			var chunk []models.Event
			if err := h.db.WithContext(ctx).Where("id IN ?", batch).Find(&chunk).Error; err != nil {
				return err
			}
			mu.Lock()
			events = append(events, chunk...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return events, nil
}

// GetEvent returns one stored event. A missing row is not_found; an existing
// row with no accessible containing calendar is forbidden.
func (h *CalendarHandler) GetEvent(c *gin.Context) {
	userID := c.GetUint("user_id")
	eventID, err := pathID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	var event models.Event
	if err := h.db.First(&event, eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			apperr.Respond(c, apperr.NotFound("event", eventID))
			return
		}
		apperr.Respond(c, err)
		return
	}

	ok, err := h.canReadEvent(userID, uint(eventID))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if !ok {
		apperr.Respond(c, apperr.Forbidden("calendar_view"))
		return
	}
	c.JSON(http.StatusOK, recurrence.FromEvent(event))
}

// SearchEvents finds accessible events by title substring.
func (h *CalendarHandler) SearchEvents(c *gin.Context) {
	userID := c.GetUint("user_id")
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		apperr.Respond(c, apperr.Invalid("Query parameter 'q' is required", nil))
		return
	}

	accessible, err := h.accessibleCalendarIDs(userID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	results := []recurrence.Instance{}
	if len(accessible) == 0 {
		c.JSON(http.StatusOK, results)
		return
	}

	var events []models.Event
	err = h.db.
		Joins("JOIN calendar_events ON calendar_events.event_id = events.id AND calendar_events.deleted_at IS NULL").
		Where("calendar_events.calendar_id IN ?", accessible).
		Where("LOWER(events.title) LIKE ?", "%"+strings.ToLower(query)+"%").
		Distinct("events.*").
		Order("events.start_time asc").
		Limit(50).
		Find(&events).Error
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	for _, ev := range events {
		results = append(results, recurrence.FromEvent(ev))
	}
	c.JSON(http.StatusOK, results)
}

// canReadEvent reports whether any calendar containing the event is
// accessible to the user.
func (h *CalendarHandler) canReadEvent(userID, eventID uint) (bool, error) {
	accessible, err := h.accessibleCalendarIDs(userID)
	if err != nil {
		return false, err
	}
	if len(accessible) == 0 {
		return false, nil
	}
	var count int64
	err = h.db.Model(&models.CalendarEvent{}).
		Where("event_id = ? AND calendar_id IN ?", eventID, accessible).
		Count(&count).Error
	return count > 0, err
}

// canEditCalendar reports whether the user owns the calendar or holds an
// editor grant on it.
func (h *CalendarHandler) canEditCalendar(userID, calendarID uint) (bool, error) {
	var calendar models.Calendar
	if err := h.db.First(&calendar, calendarID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, apperr.NotFound("calendar", int(calendarID))
		}
		return false, err
	}
	if calendar.OwnerID == userID {
		return true, nil
	}
	var count int64
	err := h.db.Model(&models.CalendarPermission{}).
		Where("calendar_id = ? AND user_id = ? AND role = ?", calendarID, userID, "editor").
		Count(&count).Error
	return count > 0, err
}

func pathID(c *gin.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, apperr.Invalid("Invalid id in path", map[string]any{"id": c.Param("id")})
	}
	return id, nil
}
