// Package http provides HTTP handlers and middleware for the occurrence engine.
//
// The router exposes the following endpoints:
//   - POST /series: stores a series and generates its first occurrences. Body is
//     the `createSeriesRequest` payload defined in dto.go. A failed initial
//     generation still returns 201 with `generation_error` set.
//   - GET /series/{id}, PUT /series/{id}: read or edit a series. Edits carry a
//     `scope` of this_only, this_and_future, or entire_series (the default) and an
//     `occurrence_id` for the first two.
//   - POST /series/{id}/generate: materializes occurrences. Body is optional
//     ({"months_ahead","from_date","max_occurrences"}).
//   - POST /series/{id}/activate, POST /series/{id}/deactivate: flip the active
//     flag. Deactivation cancels future scheduled occurrences.
//   - GET /series/{id}/occurrences?from=&to=: lists occurrences in a RFC3339 range.
//   - GET /series/{id}/calendar.ics: the same listing as an iCalendar feed.
//   - PUT /occurrences/{id}/status: transitions a scheduled occurrence.
//   - POST /recurrence/rule, POST /recurrence/parse: the rule builder. The first
//     renders a config as rule text with up to three upcoming instants, the second
//     reads rule text back into a config.
//
// Errors are JSON bodies of the form {"error_code","message","errors"} with
// Japanese messages.
package http
