package recurrence

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/launchthatbrand/portal-api/models"
)

func ms(t time.Time) int64 { return t.UnixMilli() }

func makeEvent(id uint, start, end time.Time, rule *models.Recurrence) models.Event {
	return models.Event{
		Model:      gorm.Model{ID: id},
		Title:      "standup",
		StartTime:  ms(start),
		EndTime:    ms(end),
		Type:       "meeting",
		Visibility: models.VisibilityPrivate,
		Recurrence: rule,
	}
}

func TestExpandSingleEventWindowOverlap(t *testing.T) {
	ev := makeEvent(1, time.UnixMilli(100), time.UnixMilli(200), nil)

	cases := []struct {
		name       string
		start, end int64
		want       bool
	}{
		{"window inside event", 150, 150, true},
		{"window ends at event start", 0, 100, true},
		{"window starts at event end", 200, 300, true},
		{"window after event", 201, 300, false},
		{"window before event", 0, 99, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Expand(ev, tc.start, tc.end)
			require.NoError(t, err)
			if tc.want {
				require.Len(t, got, 1)
				assert.Equal(t, "1", got[0].ID)
				assert.False(t, got[0].IsRecurringInstance)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestExpandDailyRecurrence(t *testing.T) {
	start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	ev := makeEvent(7, start, end, &models.Recurrence{Frequency: "daily", Interval: 1})

	windowStart := ms(start)
	windowEnd := ms(start.AddDate(0, 0, 6).Add(time.Hour))

	got, err := Expand(ev, windowStart, windowEnd)
	require.NoError(t, err)
	require.Len(t, got, 7)

	for i, inst := range got {
		assert.True(t, inst.IsRecurringInstance)
		assert.Equal(t, uint(7), inst.OriginalEventID)
		assert.Equal(t, ms(start.AddDate(0, 0, i)), inst.StartTime)
		assert.Equal(t, inst.StartTime+int64(30*time.Minute/time.Millisecond), inst.EndTime)
		// Every instance must overlap the requested window.
		assert.LessOrEqual(t, inst.StartTime, windowEnd)
		assert.GreaterOrEqual(t, inst.EndTime, windowStart)
	}
}

func TestExpandHonorsCount(t *testing.T) {
	start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	count := 3
	ev := makeEvent(2, start, start.Add(time.Hour), &models.Recurrence{
		Frequency: "daily",
		Interval:  1,
		Count:     &count,
	})

	got, err := Expand(ev, ms(start), ms(start.AddDate(0, 1, 0)))
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestExpandHonorsUntil(t *testing.T) {
	start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	until := ms(start.AddDate(0, 0, 2)) // third occurrence starts exactly at until
	ev := makeEvent(3, start, start.Add(time.Hour), &models.Recurrence{
		Frequency: "daily",
		Interval:  1,
		Until:     &until,
	})

	got, err := Expand(ev, ms(start), ms(start.AddDate(0, 1, 0)))
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestExpandWeeklyByDay(t *testing.T) {
	// Monday 2025-03-03. Rule: every week on MO and WE.
	start := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	ev := makeEvent(4, start, start.Add(time.Hour), &models.Recurrence{
		Frequency: "weekly",
		Interval:  1,
		ByDay:     []string{"MO", "WE"},
	})

	got, err := Expand(ev, ms(start), ms(start.AddDate(0, 0, 13)))
	require.NoError(t, err)
	require.Len(t, got, 4) // MO WE / MO WE

	for _, inst := range got {
		wd := time.UnixMilli(inst.StartTime).UTC().Weekday()
		assert.Contains(t, []time.Weekday{time.Monday, time.Wednesday}, wd)
	}
}

func TestExpandSkipsExcludedDates(t *testing.T) {
	start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	excluded := ms(start.AddDate(0, 0, 1))
	ev := makeEvent(5, start, start.Add(time.Hour), &models.Recurrence{
		Frequency:    "daily",
		Interval:     1,
		ExcludeDates: []int64{excluded},
	})

	got, err := Expand(ev, ms(start), ms(start.AddDate(0, 0, 2).Add(2*time.Hour)))
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, inst := range got {
		assert.NotEqual(t, excluded, inst.StartTime)
	}
}

func TestExpandIncludesOccurrenceSpanningWindowStart(t *testing.T) {
	// Two-hour daily event; window opens mid-occurrence.
	start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	ev := makeEvent(6, start, start.Add(2*time.Hour), &models.Recurrence{Frequency: "daily", Interval: 1})

	windowStart := ms(start.AddDate(0, 0, 1).Add(time.Hour)) // 10:00 on day two
	windowEnd := ms(start.AddDate(0, 0, 1).Add(90 * time.Minute))

	got, err := Expand(ev, windowStart, windowEnd)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ms(start.AddDate(0, 0, 1)), got[0].StartTime)
}

func TestExpandRejectsInvertedWindow(t *testing.T) {
	ev := makeEvent(8, time.UnixMilli(0), time.UnixMilli(100), nil)
	_, err := Expand(ev, 100, 50)
	assert.Error(t, err)
}

func TestExpandInstanceIDFormat(t *testing.T) {
	start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	ev := makeEvent(9, start, start.Add(time.Hour), &models.Recurrence{Frequency: "daily", Interval: 1})

	got, err := Expand(ev, ms(start), ms(start.Add(time.Hour)))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, fmt.Sprintf("9_%d", ms(start)), got[0].ID)
}
