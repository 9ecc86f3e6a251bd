// Package domain models National Weather Service (NWS) active alerts.
//
// # Data Source
//
// Alerts originate from the NWS public alert API at
// https://api.weather.gov/alerts, a GeoJSON feed re-fetched on an interval.
// Each feature's "properties" object carries the alert identifier, headline,
// event name, free-text description, expiry timestamp, public and API URLs,
// and a "geocode" group with FIPS6 and UGC area codes. The geocode members
// arrive as either a single string or a list depending on how many areas the
// alert covers; [CodeList] normalizes both shapes.
//
// # Identity
//
// Alert IDs are deterministic SHA-256 hashes of the upstream identifier
// string. Re-fetching the same upstream alert in a later run produces the
// same ID, which is what makes the store's insert-or-ignore dedup work — no
// cursor or distributed coordination is needed. See [AlertID].
//
// # Geographic codes
//
// Two independent identifier schemes locate an alert:
//
//	FIPS: 6 ASCII digits, e.g. "008005" (Arapahoe County, CO)
//	UGC:  2 letters + 3 digits, e.g. "COC005"
//
// A watch-list entry ([County]) always carries a UGC code and may carry a
// FIPS code. Watched counties are assumed geographically disjoint, so when
// an alert's codes touch more than one watch entry the first candidate wins.
package domain
