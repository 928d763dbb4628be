package recurrence

import (
	"fmt"
	"strconv"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/launchthatbrand/portal-api/models"
)

// maxInstancesPerEvent caps expansion of a single template. Rules without an
// UNTIL or COUNT are otherwise unbounded.
const maxInstancesPerEvent = 1000

// Instance is one concrete occurrence of an event inside a query window.
// Instances of a recurring template are materialized per query and never
// persisted; OriginalEventID points back to the template row.
type Instance struct {
	ID                  string             `json:"id"`
	Title               string             `json:"title"`
	Description         string             `json:"description,omitempty"`
	StartTime           int64              `json:"startTime"`
	EndTime             int64              `json:"endTime"`
	AllDay              bool               `json:"allDay"`
	Timezone            string             `json:"timezone,omitempty"`
	Type                string             `json:"type"`
	Color               string             `json:"color,omitempty"`
	Location            string             `json:"location,omitempty"`
	Visibility          string             `json:"visibility"`
	CreatedBy           uint               `json:"createdBy"`
	Recurrence          *models.Recurrence `json:"recurrence,omitempty"`
	IsRecurringInstance bool               `json:"isRecurringInstance,omitempty"`
	OriginalEventID     uint               `json:"originalEventId,omitempty"`
}

// FromEvent converts a stored event into a single non-expanded instance.
func FromEvent(ev models.Event) Instance {
	return Instance{
		ID:          strconv.FormatUint(uint64(ev.ID), 10),
		Title:       ev.Title,
		Description: ev.Description,
		StartTime:   ev.StartTime,
		EndTime:     ev.EndTime,
		AllDay:      ev.AllDay,
		Timezone:    ev.Timezone,
		Type:        ev.Type,
		Color:       ev.Color,
		Location:    ev.Location,
		Visibility:  ev.Visibility,
		CreatedBy:   ev.CreatedBy,
		Recurrence:  ev.Recurrence,
	}
}

var weekdayByCode = map[string]rrule.Weekday{
	"MO": rrule.MO, "TU": rrule.TU, "WE": rrule.WE, "TH": rrule.TH,
	"FR": rrule.FR, "SA": rrule.SA, "SU": rrule.SU,
}

var frequencyByName = map[string]rrule.Frequency{
	"daily":   rrule.DAILY,
	"weekly":  rrule.WEEKLY,
	"monthly": rrule.MONTHLY,
	"yearly":  rrule.YEARLY,
}

// Expand materializes the occurrences of ev that overlap the inclusive window
// [windowStart, windowEnd] (unix ms). Non-recurring events pass through as a
// single instance iff they overlap; recurring templates are expanded through
// their rule with excluded dates removed and the template duration preserved.
func Expand(ev models.Event, windowStart, windowEnd int64) ([]Instance, error) {
	if windowEnd < windowStart {
		return nil, fmt.Errorf("recurrence: window end %d before start %d", windowEnd, windowStart)
	}

	if ev.Recurrence == nil {
		if !ev.OverlapsWindow(windowStart, windowEnd) {
			return nil, nil
		}
		return []Instance{FromEvent(ev)}, nil
	}

	rule := ev.Recurrence
	freq, ok := frequencyByName[rule.Frequency]
	if !ok {
		return nil, fmt.Errorf("recurrence: unknown frequency %q", rule.Frequency)
	}

	interval := rule.Interval
	if interval < 1 {
		interval = 1
	}

	opt := rrule.ROption{
		Freq:     freq,
		Interval: interval,
		Dtstart:  time.UnixMilli(ev.StartTime).UTC(),
	}
	if rule.Count != nil {
		opt.Count = *rule.Count
	}
	if rule.Until != nil {
		opt.Until = time.UnixMilli(*rule.Until).UTC()
	}
	for _, code := range rule.ByDay {
		wd, ok := weekdayByCode[code]
		if !ok {
			return nil, fmt.Errorf("recurrence: unknown byDay value %q", code)
		}
		opt.Byweekday = append(opt.Byweekday, wd)
	}
	opt.Bymonthday = append(opt.Bymonthday, rule.ByMonthDay...)
	opt.Bymonth = append(opt.Bymonth, rule.ByMonth...)

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("recurrence: invalid rule for event %d: %w", ev.ID, err)
	}

	var set rrule.Set
	set.RRule(r)
	for _, ex := range rule.ExcludeDates {
		set.ExDate(time.UnixMilli(ex).UTC())
	}

	// An occurrence starting before the window can still overlap it for the
	// length of the template duration, so the Between lower bound is pulled
	// back by that much and the exact overlap check runs per occurrence.
	duration := ev.EndTime - ev.StartTime
	if duration < 0 {
		duration = 0
	}
	lower := time.UnixMilli(windowStart - duration).UTC()
	upper := time.UnixMilli(windowEnd).UTC()

	starts := set.Between(lower, upper, true)
	if len(starts) > maxInstancesPerEvent {
		starts = starts[:maxInstancesPerEvent]
	}

	instances := make([]Instance, 0, len(starts))
	for _, occStart := range starts {
		startMs := occStart.UnixMilli()
		endMs := startMs + duration
		if startMs > windowEnd || endMs < windowStart {
			continue
		}

		inst := FromEvent(ev)
		inst.ID = fmt.Sprintf("%d_%d", ev.ID, startMs)
		inst.StartTime = startMs
		inst.EndTime = endMs
		inst.IsRecurringInstance = true
		inst.OriginalEventID = ev.ID
		instances = append(instances, inst)
	}
	return instances, nil
}
