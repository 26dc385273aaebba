package enrich

import (
	"sort"
	"time"
)

// Event type and name pairs the ingest stage selects for. The API
// spells event names with spaces, unlike the sub-status codes the
// matching whitelist carries.
const (
	EventTypeSale    = "SALE"
	EventTypeListing = "LISTING"
	EventTypeRental  = "RENTAL"

	EventNameSold            = "SOLD"
	EventNamePendingSale     = "PENDING SALE"
	EventNameDelistedForRent = "DELISTED FOR RENT"
)

// SelectEvent picks the event to land from a property's history.
// Events are scanned newest first. A primary match with a price above
// zero wins immediately. Otherwise the newest primary and newest
// fallback are remembered and whichever has a usable price is
// preferred; with no usable price the primary is returned if found,
// then the fallback, then nothing. Pass empty fallback strings to
// select on the primary pair alone.
func SelectEvent(events []Event, primaryType, primaryName, fallbackType, fallbackName string) *Event {
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		// ISO dates order lexicographically.
		return sorted[i].EventDate > sorted[j].EventDate
	})

	var primary, fallback *Event
	for i := range sorted {
		ev := &sorted[i]
		switch {
		case ev.EventType == primaryType && ev.EventName == primaryName:
			if ev.Price > 0 {
				return ev
			}
			if primary == nil {
				primary = ev
			}
		case fallbackType != "" && ev.EventType == fallbackType && ev.EventName == fallbackName:
			if fallback == nil {
				fallback = ev
			}
		}
	}

	if fallback != nil && fallback.Price > 0 {
		return fallback
	}
	if primary != nil {
		return primary
	}
	return fallback
}

// subtractMonths steps a date back by whole months, clamping the day to
// the target month's length (Mar 31 minus one month is Feb 28/29).
func subtractMonths(t time.Time, months int) time.Time {
	month := int(t.Month()) - months
	year := t.Year()
	for month <= 0 {
		month += 12
		year--
	}
	day := t.Day()
	if last := daysInMonth(year, time.Month(month)); day > last {
		day = last
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, t.Location())
}

// daysInMonth returns the number of days in a month; day zero of the
// following month normalizes to its last day.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
