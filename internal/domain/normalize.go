package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrMissingID marks a feed entry with no upstream identifier. Such entries
// cannot be deduplicated and are skipped, never silently discarded.
var ErrMissingID = errors.New("feed entry has no upstream identifier")

// placeholderTitle is the last resort of the title fallback chain; the store
// requires a non-empty title.
const placeholderTitle = "NO TITLE"

// subEventVocabulary is the fixed set of weather phenomena scanned for in
// statement descriptions. Match output preserves this order.
var subEventVocabulary = []string{
	"Thunderstorm",
	"Strong Storm",
	"Wind",
	"Rain",
	"Hail",
	"Tornado",
	"Flood",
}

// statementEvents are the generic event categories whose descriptions get a
// sub-event scan; other events are specific enough on their own.
var statementEvents = map[string]bool{
	"Severe Weather Statement":  true,
	"Special Weather Statement": true,
}

// ParseFeedEntry converts one raw feed entry into a canonical Alert under
// the given batch identifier. It returns ErrMissingID when the entry carries
// no upstream identifier. A malformed expiry timestamp never fails the
// entry; the alert is ingested with zero expiry instead.
func ParseFeedEntry(props FeedProperties, batch int64) (Alert, error) {
	if props.ID == "" {
		return Alert{}, ErrMissingID
	}

	expires, expiresUTC := parseExpiry(props.Expires)

	return Alert{
		ID:           AlertID(props.ID),
		Title:        titleFor(props),
		Event:        props.Event,
		Details:      extractSubEvents(props.Event, props.Description),
		Description:  props.Description,
		Expires:      expires,
		ExpiresUTC:   expiresUTC,
		URL:          props.URI,
		APIURL:       props.APIURL,
		FIPSCodes:    []string(props.Geocode.FIPS6),
		UGCCodes:     []string(props.Geocode.UGC),
		CreatedBatch: batch,
	}, nil
}

// titleFor applies the fallback chain: headline, event name, upstream
// identifier, fixed placeholder. The result is never empty.
func titleFor(props FeedProperties) string {
	switch {
	case props.Headline != "":
		return props.Headline
	case props.Event != "":
		return props.Event
	case props.ID != "":
		return props.ID
	default:
		return placeholderTitle
	}
}

// extractSubEvents scans a statement description for the fixed phenomenon
// vocabulary, case-insensitively, and joins the hits in vocabulary order.
// Purely cosmetic context for the notification message, not used for matching.
func extractSubEvents(event, description string) string {
	if !statementEvents[event] || description == "" {
		return ""
	}

	summary := strings.ToUpper(description)
	var found []string
	for _, item := range subEventVocabulary {
		if strings.Contains(summary, strings.ToUpper(item)) {
			found = append(found, item)
		}
	}
	return strings.Join(found, ", ")
}

// parseExpiry parses an RFC 3339 expiry timestamp into its canonical string
// and UTC epoch forms. Any parse failure yields ("", 0) rather than an
// error — a single malformed date must not abort ingestion.
func parseExpiry(value string) (string, int64) {
	if value == "" {
		return "", 0
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return "", 0
	}
	return t.Format(time.RFC3339), t.UTC().Unix()
}
