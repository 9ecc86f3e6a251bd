package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Alert is one ingested feed entry. Upstream fields are immutable once
// stored; CountyName and CountyState are populated transiently by the
// matcher for alerts from the current run and are never persisted.
type Alert struct {
	ID          string
	Title       string
	Event       string
	Details     string // sub-event tags extracted from the description
	Description string
	Expires     string // RFC 3339 form, empty when absent or unparseable
	ExpiresUTC  int64  // epoch seconds, 0 when absent or unparseable
	URL         string // public alert page
	APIURL      string // detail API endpoint
	FIPSCodes   []string
	UGCCodes    []string

	// CreatedBatch is the run identifier under which this alert was first
	// inserted. Set once at creation, never updated.
	CreatedBatch int64

	CountyName  string
	CountyState string
}

// AlertID derives the stable identity hash for an upstream identifier.
// It is a pure function of the identifier: the same upstream alert hashes
// to the same ID across runs, enabling idempotent inserts.
func AlertID(upstreamID string) string {
	sum := sha256.Sum256([]byte(upstreamID))
	return hex.EncodeToString(sum[:])
}

// Detail holds the descriptive fields fetched from an alert's API endpoint.
// Every field defaults to the empty string when absent upstream.
type Detail struct {
	Headline     string
	Event        string
	Issuer       string
	Description  string
	Instructions string
	Area         string
}

// Notification is an outbound push message.
type Notification struct {
	Title   string
	Message string
	URL     string
}

// Feed is the upstream GeoJSON document listing current alerts.
type Feed struct {
	Features []FeedEntry `json:"features"`
}

// FeedEntry is one feature of the feed document.
type FeedEntry struct {
	Properties FeedProperties `json:"properties"`
}

// FeedProperties carries the alert fields the relay consumes.
type FeedProperties struct {
	ID          string  `json:"id"`
	Headline    string  `json:"headline"`
	Event       string  `json:"event"`
	Description string  `json:"description"`
	Expires     string  `json:"expires"`
	URI         string  `json:"uri"`
	APIURL      string  `json:"@id"`
	Geocode     Geocode `json:"geocode"`
}

// Geocode groups the geographic area codes of a feed entry. Either member
// may be absent, a single string, or a list of strings.
type Geocode struct {
	FIPS6 CodeList `json:"FIPS6"`
	UGC   CodeList `json:"UGC"`
}

// CodeList is an ordered set of geographic codes that accepts both the
// single-string and list forms the upstream feed produces.
type CodeList []string

// UnmarshalJSON decodes either a JSON string or a JSON array of strings.
func (c *CodeList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*c = CodeList{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("geocode list: %w", err)
	}
	*c = CodeList(list)
	return nil
}
