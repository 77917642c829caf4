package calendarsync

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/example/clinic-scheduler/internal/application"
)

const productID = "-//clinic-scheduler//occurrence sync//EN"

// uidDomain qualifies occurrence ids so that UIDs are globally unique.
const uidDomain = "clinic-scheduler"

func occurrenceUID(occurrenceID string) string {
	return fmt.Sprintf("%s@%s", occurrenceID, uidDomain)
}

// EventCalendar renders a single occurrence event as an iCalendar object.
// Cancelled and deleted occurrences use METHOD:CANCEL so that subscribers
// remove them.
func EventCalendar(event application.OccurrenceEvent, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)

	status := ical.ObjectStatusConfirmed
	switch event.Kind {
	case application.EventCancelled, application.EventDeleted:
		cal.SetMethod(ical.MethodCancel)
		status = ical.ObjectStatusCancelled
	default:
		cal.SetMethod(ical.MethodRequest)
	}

	vevent := cal.AddEvent(occurrenceUID(event.OccurrenceID))
	vevent.SetDtStampTime(stamp.UTC())
	vevent.SetStartAt(event.Start.UTC())
	vevent.SetEndAt(event.End.UTC())
	vevent.SetStatus(status)
	vevent.SetSummary("Appointment")
	if event.SeriesID != "" {
		vevent.SetProperty(ical.ComponentPropertyRelatedTo, event.SeriesID)
	}
	return cal.Serialize()
}

// SeriesFeed renders the occurrences of a series as a published calendar.
// Cancellations are included with STATUS:CANCELLED. Documented and no-show
// occurrences stay confirmed.
func SeriesFeed(series application.Series, occurrences []application.Occurrence, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)
	cal.SetName(fmt.Sprintf("Series %s", series.ID))
	cal.SetXWRTimezone(series.Timezone)

	for _, occurrence := range occurrences {
		vevent := cal.AddEvent(occurrenceUID(occurrence.ID))
		vevent.SetDtStampTime(stamp.UTC())
		vevent.SetStartAt(occurrence.StartAt.UTC())
		vevent.SetEndAt(occurrence.EndAt.UTC())
		if !occurrence.CreatedAt.IsZero() {
			vevent.SetCreatedTime(occurrence.CreatedAt.UTC())
		}
		if !occurrence.UpdatedAt.IsZero() {
			vevent.SetModifiedAt(occurrence.UpdatedAt.UTC())
		}
		vevent.SetSummary(summaryOf(occurrence))
		if occurrence.Description != nil && *occurrence.Description != "" {
			vevent.SetDescription(*occurrence.Description)
		}
		vevent.SetStatus(statusOf(occurrence.Status))
		vevent.SetProperty(ical.ComponentPropertyCategories, string(occurrence.Status))
		vevent.SetProperty(ical.ComponentPropertyRelatedTo, series.ID)
	}
	return cal.Serialize()
}

func summaryOf(occurrence application.Occurrence) string {
	if occurrence.Title != nil && *occurrence.Title != "" {
		return *occurrence.Title
	}
	return "Appointment"
}

func statusOf(status application.OccurrenceStatus) ical.ObjectStatus {
	if status == application.StatusCancelled || status == application.StatusLateCancel {
		return ical.ObjectStatusCancelled
	}
	return ical.ObjectStatusConfirmed
}
