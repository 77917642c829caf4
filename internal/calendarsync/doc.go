// Package calendarsync forwards occurrence changes to external calendars.
//
// Core writes publish events through a Dispatcher, which queues them and
// delivers them to an Adapter on a background goroutine. Delivery failures
// are logged and never reach the caller that published the event. The
// package also renders a series' occurrences as an iCalendar feed.
package calendarsync
