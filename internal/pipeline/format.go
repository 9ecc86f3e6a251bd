package pipeline

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/noaa-alert-relay/internal/domain"
)

// idSuffixLen is how many trailing characters of the identity hash are
// appended to a notification message so repeated alerts for the same county
// stay distinguishable on a phone lock screen.
const idSuffixLen = 5

// AlertTitle builds the notification title from the matched county.
func AlertTitle(a domain.Alert) string {
	return fmt.Sprintf("%s (%s) Weather Alert", a.CountyName, a.CountyState)
}

// AlertMessage builds the notification body from the alert title. When a
// statement carries extracted sub-events, they are spliced in ahead of
// "issued" so the phenomena read inline: "Special Weather Statement
// (Hail, Wind) issued ...". The message ends with the tail of the identity
// hash.
func AlertMessage(a domain.Alert) string {
	msg := a.Title
	if a.Details != "" {
		msg = strings.Replace(msg, "issued", "("+a.Details+") issued", 1)
	}
	return fmt.Sprintf("%s (%s)", msg, idSuffix(a.ID))
}

func idSuffix(id string) string {
	if len(id) <= idSuffixLen {
		return id
	}
	return id[len(id)-idSuffixLen:]
}
